package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/memstore"
	"github.com/vovakirdan/laneduel/internal/identity"
	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
	"github.com/vovakirdan/laneduel/internal/storage"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testEnv() Env {
	return Env{
		Game:    config.Default(),
		Runtime: core.RuntimeConfig{ScreenW: 100, ScreenH: 30, TickRate: 60},
		Player:  identity.Identity{ID: "me", DisplayName: "Me"},
		Session: "test",
	}
}

func TestMapKey(t *testing.T) {
	km := NewKeyMapper()
	tests := []struct {
		msg  tea.KeyMsg
		want core.Action
		quit bool
	}{
		{runes("a"), core.ActionLaneLeft, false},
		{tea.KeyMsg{Type: tea.KeyLeft}, core.ActionLaneLeft, false},
		{runes("d"), core.ActionLaneRight, false},
		{tea.KeyMsg{Type: tea.KeyRight}, core.ActionLaneRight, false},
		{tea.KeyMsg{Type: tea.KeySpace}, core.ActionToggle, false},
		{tea.KeyMsg{Type: tea.KeyEnter}, core.ActionConfirm, false},
		{tea.KeyMsg{Type: tea.KeyEsc}, core.ActionBack, false},
		{runes("p"), core.ActionPause, false},
		{runes("r"), core.ActionRestart, false},
		{runes("q"), core.ActionQuit, true},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, core.ActionQuit, true},
		{runes("z"), core.ActionNone, false},
	}
	for _, tt := range tests {
		got, quit := km.MapKey(tt.msg)
		if got != tt.want || quit != tt.quit {
			t.Errorf("MapKey(%q) = %v, %v; want %v, %v", tt.msg.String(), got, quit, tt.want, tt.quit)
		}
	}
}

func TestMenuItems(t *testing.T) {
	env := testEnv()
	m := NewMenuModel(env)
	var kinds []MenuKind
	for _, it := range m.items {
		kinds = append(kinds, it.Kind)
	}
	if len(kinds) != 3 || kinds[0] != MenuPlay || kinds[1] != MenuPlay || kinds[2] != MenuQuit {
		t.Errorf("offline menu kinds = %v", kinds)
	}

	env.Coordinator = multiplayer.NewCoordinator(memstore.New(docstore.Options{}), multiplayer.CoordinatorConfig{})
	defer env.Coordinator.Stop()
	env.DB = openDB(t)
	m = NewMenuModel(env)
	if len(m.items) != 6 {
		t.Fatalf("online menu has %d items, want 6", len(m.items))
	}
	if m.items[2].Kind != MenuHost || m.items[3].Kind != MenuJoin || m.items[4].Kind != MenuScores {
		t.Errorf("online menu = %+v", m.items)
	}

	view := m.View()
	if !strings.Contains(view, "Host a duel") || !strings.Contains(view, "driving as Me") {
		t.Errorf("menu view missing entries:\n%s", view)
	}
}

func TestSessionNavigation(t *testing.T) {
	s := NewSessionModel(testEnv())

	next, _ := s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	s = next.(SessionModel)
	if s.screen != screenSolo {
		t.Fatalf("screen = %v after selecting a mode, want solo", s.screen)
	}
	if !strings.Contains(s.View(), "Score") {
		t.Error("solo view should show the HUD")
	}

	next, _ = s.Update(tea.KeyMsg{Type: tea.KeyEsc})
	s = next.(SessionModel)
	if s.screen != screenMenu {
		t.Fatalf("screen = %v after esc on an idle run, want menu", s.screen)
	}

	next, cmd := s.Update(runes("q"))
	s = next.(SessionModel)
	if !s.quitting || cmd == nil {
		t.Error("q in the menu should quit")
	}
}

func TestSessionResize(t *testing.T) {
	s := NewSessionModel(testEnv())
	next, _ := s.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	s = next.(SessionModel)
	if s.env.Runtime.ScreenW != 120 || s.env.Runtime.ScreenH != 40 {
		t.Errorf("runtime = %+v", s.env.Runtime)
	}
}

func openDB(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tui.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // Test teardown
		db.Close()
	})
	return db
}

func TestScoreboardTabs(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	for _, r := range []struct {
		who   string
		id    string
		score int
	}{{"me", "r1", 120}, {"other", "r2", 300}} {
		rep := progression.Report{RunID: r.id, Mode: "endless", Seed: 7, Score: r.score}
		if _, err := db.ApplyReport(ctx, r.who, rep); err != nil {
			t.Fatal(err)
		}
	}

	m := NewScoreboardModel(db, "me", 100, 30)
	if m.current().ID != "daily" || len(m.rows) != 0 {
		t.Fatalf("first tab = %s with %d rows", m.current().ID, len(m.rows))
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(ScoreboardModel)
	if m.current().ID != "endless" || len(m.rows) != 2 {
		t.Fatalf("endless tab rows = %d, want 2", len(m.rows))
	}
	if m.rows[0][1] != "300" || m.rows[1][2] != "you" {
		t.Errorf("rows = %v", m.rows)
	}

	next, _ = m.Update(runes("m"))
	m = next.(ScoreboardModel)
	if len(m.rows) != 1 {
		t.Errorf("mine-only rows = %d, want 1", len(m.rows))
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(ScoreboardModel)
	if m.current().ID != duelsTab {
		t.Fatalf("tab = %s, want duels", m.current().ID)
	}
	if !strings.Contains(m.View(), "No duels recorded yet") {
		t.Error("empty duels tab should say so")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !next.(ScoreboardModel).IsGoingBack() {
		t.Error("esc should go back")
	}
}

func TestDuelJoinCodeEntry(t *testing.T) {
	env := testEnv()
	env.Coordinator = multiplayer.NewCoordinator(memstore.New(docstore.Options{}), multiplayer.CoordinatorConfig{})
	defer env.Coordinator.Stop()

	d := NewDuelModel(env, false, 0)
	if d.State() != DuelEnterCode {
		t.Fatalf("joiner starts in %v", d.State())
	}
	for _, k := range "abc234" {
		next, _ := d.Update(runes(string(k)))
		d = next.(DuelModel)
	}
	next, cmd := d.Update(tea.KeyMsg{Type: tea.KeyEnter})
	d = next.(DuelModel)
	if d.State() != DuelConnecting || cmd == nil {
		t.Fatalf("state = %v after enter", d.State())
	}

	// No such room in the empty store.
	next, _ = d.Update(d.connect("ABC234")())
	d = next.(DuelModel)
	if d.State() != DuelEnterCode || d.lastError == "" {
		t.Errorf("state = %v, error %q; want code entry with an error", d.State(), d.lastError)
	}
}
