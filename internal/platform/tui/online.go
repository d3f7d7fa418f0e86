package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/games/lanes"
	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/room"
)

// DuelState is the current screen of the duel flow.
type DuelState int

const (
	DuelEnterCode  DuelState = iota // joiner types the room code
	DuelConnecting                  // create/join request in flight
	DuelLobby                       // in the room, waiting for start
	DuelPlaying                     // round running
	DuelRoundEnd                    // between rounds
	DuelEnded                       // match over
)

type connectedMsg struct {
	match *multiplayer.Match
	room  room.Room
}

type connectFailedMsg struct {
	err error
}

type duelEventMsg struct {
	event multiplayer.Event
}

var (
	duelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	duelCodeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).
			Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("57")).Padding(0, 2)
	duelErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	duelHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	duelWinStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	duelLoseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// DuelModel hosts or joins a room and plays the match.
type DuelModel struct {
	state     DuelState
	host      bool
	bestOf    int
	env       Env
	keyMapper *KeyMapper
	session   *multiplayer.ChannelSession
	match     *multiplayer.Match

	codeInput textinput.Model
	spinner   spinner.Model
	screen    *core.Screen

	room      room.Room
	frame     *multiplayer.FrameEvent
	roundEnd  *multiplayer.RoundEndedEvent
	result    *multiplayer.MatchResult
	lastError string

	backToMenu bool
	quitting   bool
}

// NewDuelModel creates the duel flow. A host creates a room right away; a
// joiner is asked for the code first.
func NewDuelModel(env Env, host bool, bestOf int) DuelModel {
	ti := textinput.New()
	ti.Placeholder = strings.Repeat("X", env.Game.Room.CodeLength)
	ti.CharLimit = env.Game.Room.CodeLength
	ti.Width = env.Game.Room.CodeLength + 2
	ti.Prompt = "code: "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("57"))

	if bestOf <= 0 {
		bestOf = env.Game.Room.BestOf
	}
	id := multiplayer.SessionID(fmt.Sprintf("%s#%s", env.Session, uuid.NewString()[:8]))

	m := DuelModel{
		state:     DuelEnterCode,
		host:      host,
		bestOf:    bestOf,
		env:       env,
		keyMapper: NewKeyMapper(),
		session:   multiplayer.NewChannelSession(id, 0),
		codeInput: ti,
		spinner:   sp,
		screen:    core.NewScreen(env.Runtime.ScreenW, env.Runtime.ScreenH),
	}
	if host {
		m.state = DuelConnecting
	}
	if env.Done != nil {
		sess := m.session
		go func() {
			select {
			case <-env.Done:
				sess.Close()
			case <-sess.Done():
			}
		}()
	}
	return m
}

// Init starts hosting, or the code prompt for joiners.
func (m DuelModel) Init() tea.Cmd {
	if m.host {
		return tea.Batch(m.spinner.Tick, m.connect(""))
	}
	if m.state == DuelConnecting {
		return tea.Batch(m.spinner.Tick, m.connect(m.codeInput.Value()))
	}
	return textinput.Blink
}

func requestTimeout(cfg config.Config) time.Duration {
	if cfg.Room.RequestTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return config.Ms(cfg.Room.RequestTimeoutMs)
}

// connect creates (host) or joins the room off the update loop.
func (m DuelModel) connect(code string) tea.Cmd {
	env, sess, host, bestOf := m.env, m.session, m.host, m.bestOf
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(env.Game))
		defer cancel()

		var (
			match *multiplayer.Match
			r     room.Room
			err   error
		)
		if host {
			match, r, err = env.Coordinator.Host(ctx, sess, env.roomPlayer(), bestOf)
		} else {
			match, r, err = env.Coordinator.Join(ctx, sess, env.roomPlayer(), code)
		}
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{match: match, room: r}
	}
}

// waitForEvent returns a command that waits for the next match event.
func (m DuelModel) waitForEvent() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		select {
		case evt := <-sess.Events():
			return duelEventMsg{event: evt}
		case <-sess.Done():
			return nil
		}
	}
}

// Update handles messages.
func (m DuelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.env = m.env.resized(msg.Width, msg.Height)
		m.screen.Resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if m.state != DuelConnecting && m.state != DuelLobby {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectedMsg:
		m.match = msg.match
		m.room = msg.room
		m.state = DuelLobby
		m.lastError = ""
		return m, tea.Batch(m.waitForEvent(), m.spinner.Tick)

	case connectFailedMsg:
		m.lastError = describeJoinError(msg.err)
		if m.host {
			m.state = DuelEnded
		} else {
			m.state = DuelEnterCode
			m.codeInput.Focus()
		}
		return m, nil

	case duelEventMsg:
		return m.handleEvent(msg.event)
	}

	if m.state == DuelEnterCode {
		var cmd tea.Cmd
		m.codeInput, cmd = m.codeInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m DuelModel) handleEvent(evt multiplayer.Event) (tea.Model, tea.Cmd) {
	switch e := evt.(type) {
	case multiplayer.RoomEvent:
		m.room = e.Room
		if e.Room.Status == room.StatusLobby {
			m.state = DuelLobby
		}
	case multiplayer.RoundStartedEvent:
		m.state = DuelPlaying
		m.roundEnd = nil
		m.frame = nil
		m.lastError = ""
	case multiplayer.FrameEvent:
		m.frame = &e
	case multiplayer.RoundEndedEvent:
		m.state = DuelRoundEnd
		m.roundEnd = &e
	case multiplayer.MatchEndedEvent:
		m.state = DuelEnded
		m.result = &e.Result
		return m, nil
	case multiplayer.ErrorEvent:
		m.lastError = e.Err.Error()
	}
	return m, m.waitForEvent()
}

func describeJoinError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "room store did not answer"
	case errors.Is(err, multiplayer.ErrAlreadyInMatch):
		return "already in a match"
	case errors.Is(err, room.ErrCourseMismatch):
		return "host plays a different course config"
	}
	return err.Error()
}

func (m DuelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == DuelEnterCode {
		return m.handleCodeKey(msg)
	}

	var frame core.InputFrame
	if m.keyMapper.MapKeyToFrame(msg, &frame) {
		m.leave()
		m.quitting = true
		return m, tea.Quit
	}

	switch {
	case frame.Has(core.ActionBack):
		m.leave()
		m.backToMenu = true
		return m, nil
	case m.state == DuelEnded:
		if frame.Has(core.ActionConfirm) {
			m.leave()
			m.backToMenu = true
		}
		return m, nil
	case m.match == nil:
		return m, nil
	case m.state == DuelRoundEnd && frame.Has(core.ActionConfirm):
		m.match.Send(multiplayer.NextRoundMsg{})
	case len(frame.Actions) > 0:
		m.match.Send(multiplayer.InputMsg{Input: frame})
	}
	return m, nil
}

func (m DuelModel) handleCodeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.leave()
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.leave()
		m.backToMenu = true
		return m, nil
	case "enter":
		code := room.NormalizeCode(m.codeInput.Value())
		if code == "" {
			return m, nil
		}
		m.codeInput.SetValue(code)
		m.codeInput.Blur()
		m.state = DuelConnecting
		m.lastError = ""
		return m, tea.Batch(m.spinner.Tick, m.connect(code))
	}
	var cmd tea.Cmd
	m.codeInput, cmd = m.codeInput.Update(msg)
	return m, cmd
}

// leave gives up the room and stops event delivery.
func (m *DuelModel) leave() {
	if m.match != nil {
		m.match.Send(multiplayer.LeaveMsg{})
	}
	m.session.Close()
}

// View renders the current state.
func (m DuelModel) View() string {
	if m.quitting {
		return ""
	}
	switch m.state {
	case DuelEnterCode:
		return m.viewEnterCode()
	case DuelConnecting:
		return m.viewConnecting()
	case DuelLobby:
		return m.viewLobby()
	case DuelPlaying, DuelRoundEnd:
		return m.viewTrack()
	case DuelEnded:
		return m.viewEnded()
	}
	return ""
}

func (m DuelModel) lines(parts ...string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, p := range parts {
		for _, line := range strings.Split(p, "\n") {
			b.WriteString(centerText(line, m.env.Runtime.ScreenW))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m DuelModel) errLine() string {
	if m.lastError == "" {
		return ""
	}
	return duelErrStyle.Render("Error: " + m.lastError)
}

func (m DuelModel) viewEnterCode() string {
	return m.lines(
		duelTitleStyle.Render("JOIN A DUEL"),
		"",
		"Enter the room code:",
		"",
		m.codeInput.View(),
		"",
		m.errLine(),
		"",
		duelHintStyle.Render("Enter: Join  |  Esc: Back"),
	)
}

func (m DuelModel) viewConnecting() string {
	what := "Creating room"
	if !m.host {
		what = "Joining " + m.codeInput.Value()
	}
	return m.lines(
		duelTitleStyle.Render("CONNECTING"),
		"",
		m.spinner.View()+" "+what,
		"",
		duelHintStyle.Render("Esc: Cancel"),
	)
}

func slotName(s room.Slot) string {
	switch {
	case s.Empty():
		return "-"
	case s.DisplayName != "":
		return s.DisplayName
	}
	return s.Identity
}

func (m DuelModel) viewLobby() string {
	r := m.room
	opponent := r.Players.P2
	waiting := opponent.Empty()

	status := m.spinner.View() + " Waiting for an opponent to join..."
	hint := "Esc: Leave  |  Q: Quit"
	switch {
	case !waiting && m.match != nil && m.match.Side() == room.SideP1:
		status = slotName(opponent) + " joined"
		hint = "Enter: Start  |  Esc: Leave  |  Q: Quit"
	case !waiting:
		status = m.spinner.View() + " Waiting for " + slotName(r.Players.P1) + " to start..."
	}

	return m.lines(
		duelTitleStyle.Render("DUEL LOBBY"),
		"",
		"Share this code with your opponent:",
		duelCodeStyle.Render(r.Code),
		"",
		fmt.Sprintf("best of %d", r.BestOf),
		fmt.Sprintf("P1: %s   P2: %s", slotName(r.Players.P1), slotName(r.Players.P2)),
		"",
		status,
		"",
		m.errLine(),
		duelHintStyle.Render(hint),
	)
}

func (m DuelModel) viewTrack() string {
	if m.frame == nil {
		return m.lines(duelTitleStyle.Render("GET READY"))
	}
	f := m.frame
	me := f.Scores.Get(f.Side)
	them := f.Scores.Get(f.Side.Other())
	caption := fmt.Sprintf("R%d/%d %d-%d vs %s", f.Round, f.BestOf, me, them, slotName(f.Opponent))
	lanes.DrawTrack(m.screen, f.State, lanes.View{Geometry: f.Geometry, Ghost: f.Ghost, Caption: caption})

	mid := m.screen.Height() / 2
	if e := m.roundEnd; e != nil {
		text, color := " ROUND LOST ", core.ColorAlert
		if e.Winner == e.Side {
			text, color = " ROUND WON ", core.ColorGreen
		}
		m.screen.DrawTextCentered(mid-2, text, color)
		m.screen.DrawTextCentered(mid-1, fmt.Sprintf(" %d - %d ", e.Scores.Get(e.Side), e.Scores.Get(e.Side.Other())), core.ColorHUD)
		next := " waiting for the next round "
		if e.Advancing {
			next = " Enter: continue "
		}
		m.screen.DrawTextCentered(mid+3, next, core.ColorGray)
	} else if f.State.Phase == lanes.PhaseGameOver {
		m.screen.DrawTextCentered(mid+3, " waiting for the round result ", core.ColorGray)
	}
	if m.lastError != "" {
		m.screen.DrawTextCentered(m.screen.Height()-1, " "+m.lastError+" ", core.ColorAlert)
	}
	return RenderScreen(m.screen)
}

func (m DuelModel) viewEnded() string {
	if m.result == nil {
		return m.lines(
			duelTitleStyle.Render("DUEL"),
			"",
			m.errLine(),
			"",
			duelHintStyle.Render("Enter/Esc: Menu  |  Q: Quit"),
		)
	}
	r := m.result
	headline := duelLoseStyle.Render("YOU LOST")
	if r.Won() {
		headline = duelWinStyle.Render("YOU WON")
	}
	how := map[room.Reason]string{
		room.ReasonRounds:  "on rounds",
		room.ReasonForfeit: "by forfeit",
		room.ReasonLeft:    "opponent left",
	}[r.Reason]
	if r.Reason == room.ReasonLeft && !r.Won() {
		how = "you left"
	}
	mine, theirs := r.Score1, r.Score2
	if r.Side == room.SideP2 {
		mine, theirs = theirs, mine
	}
	return m.lines(
		duelTitleStyle.Render("MATCH OVER"),
		"",
		headline,
		fmt.Sprintf("%d - %d %s", mine, theirs, how),
		fmt.Sprintf("%d rounds in %s", r.Rounds, r.Duration.Round(time.Second)),
		"",
		duelHintStyle.Render("Enter/Esc: Menu  |  Q: Quit"),
	)
}

// BackToMenu returns true if user wants to go back to menu.
func (m DuelModel) BackToMenu() bool {
	return m.backToMenu
}

// IsQuitting returns true if user wants to quit entirely.
func (m DuelModel) IsQuitting() bool {
	return m.quitting
}

// State returns the current screen.
func (m DuelModel) State() DuelState {
	return m.state
}

// RunDuel plays one duel in its own Bubble Tea program.
func RunDuel(env Env, host bool, bestOf int) error {
	p := tea.NewProgram(standaloneDuel{NewDuelModel(env, host, bestOf)}, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunJoin joins the room with the given code without asking for it.
func RunJoin(env Env, code string) error {
	m := NewDuelModel(env, false, 0)
	m.codeInput.SetValue(room.NormalizeCode(code))
	m.codeInput.Blur()
	m.state = DuelConnecting
	p := tea.NewProgram(standaloneDuel{m}, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// standaloneDuel quits the program where a session would return to the menu.
type standaloneDuel struct {
	DuelModel
}

func (s standaloneDuel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := s.DuelModel.Update(msg)
	s.DuelModel = next.(DuelModel)
	if s.BackToMenu() {
		return s, tea.Quit
	}
	return s, cmd
}
