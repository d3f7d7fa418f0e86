package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/games/lanes"
	"github.com/vovakirdan/laneduel/internal/progression"
	"github.com/vovakirdan/laneduel/internal/registry"
)

// reportingGame is a mode that hands out its terminal report.
type reportingGame interface {
	SetReporter(best int, fn func(lanes.Result))
}

// resultBox survives Model copies; the game's callback fills it.
type resultBox struct {
	pending *lanes.Result
}

type bestMsg int

type recordedMsg struct {
	profile progression.Profile
	ok      bool
}

// Model is the Bubble Tea model for a solo run.
type Model struct {
	game       registry.Game
	screen     *core.Screen
	env        Env
	reporter   *progression.Reporter
	results    *resultBox
	keyMapper  *KeyMapper
	inputFrame core.InputFrame
	gameState  core.GameState
	profile    *progression.Profile
	quitting   bool
	backToMenu bool
	standalone bool // no menu to return to
}

// NewModel creates a new Bubble Tea model for the given mode.
func NewModel(game registry.Game, env Env) Model {
	m := Model{
		game:       game,
		screen:     core.NewScreen(env.Runtime.ScreenW, env.Runtime.ScreenH),
		env:        env,
		reporter:   env.reporter(),
		results:    &resultBox{},
		keyMapper:  NewKeyMapper(),
		inputFrame: core.NewInputFrame(),
	}
	m.installReporter(0)
	return m
}

func (m Model) installReporter(best int) {
	rg, ok := m.game.(reportingGame)
	if !ok {
		return
	}
	box := m.results
	rg.SetReporter(best, func(res lanes.Result) {
		box.pending = &res
	})
}

// Init resets the game, loads the personal best and starts the tick loop.
func (m Model) Init() tea.Cmd {
	m.game.Reset(m.env.Runtime)
	reporter := m.reporter
	return tea.Batch(
		func() tea.Msg { return bestMsg(reporter.Best(context.Background())) },
		tickCmd(m.env.Runtime.TickRate),
	)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.env = m.env.resized(msg.Width, msg.Height)
		m.screen.Resize(msg.Width, msg.Height)
		return m, nil

	case bestMsg:
		m.installReporter(int(msg))
		if !m.gameState.Started {
			m.game.Reset(m.env.Runtime)
		}
		return m, nil

	case recordedMsg:
		if msg.ok {
			p := msg.profile
			m.profile = &p
		}
		return m, nil

	case TickMsg:
		return m.handleTick()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+s" {
		m.saveScreenshot()
		return m, nil
	}
	if m.keyMapper.MapKeyToFrame(msg, &m.inputFrame) {
		m.quitting = true
		return m, tea.Quit
	}
	if m.inputFrame.Has(core.ActionBack) && (m.gameState.GameOver || m.gameState.Paused || !m.gameState.Started) {
		m.backToMenu = true
		if m.standalone {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	if m.inputFrame.Has(core.ActionRestart) && m.gameState.GameOver {
		m.env.Runtime.Seed = 0
		m.game.Reset(m.env.Runtime)
		m.gameState = m.game.State()
		m.profile = nil
		m.inputFrame.Clear()
		return m, tickCmd(m.env.Runtime.TickRate)
	}

	result := m.game.Step(m.inputFrame)
	m.gameState = result.State
	m.inputFrame.Clear()

	cmds := []tea.Cmd{tickCmd(m.env.Runtime.TickRate)}
	if res := m.results.pending; res != nil {
		m.results.pending = nil
		cmds = append(cmds, m.record(*res))
	}
	return m, tea.Batch(cmds...)
}

// record submits the run off the update loop.
func (m Model) record(res lanes.Result) tea.Cmd {
	rep := progression.ReportFrom(m.game.ID(), m.env.Player.DisplayName, res)
	reporter := m.reporter
	return func() tea.Msg {
		p, ok := reporter.Submit(context.Background(), rep)
		return recordedMsg{profile: p, ok: ok}
	}
}

// saveScreenshot saves the current screen to a file.
func (m *Model) saveScreenshot() {
	m.game.Render(m.screen)

	dir := filepath.Join(config.ExpandHome("~/.laneduel"), "screenshots")
	//nolint:errcheck // Best-effort directory creation
	os.MkdirAll(dir, 0o755)

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", m.game.ID(), timestamp))

	//nolint:errcheck // Best-effort save, game continues regardless
	os.WriteFile(path, []byte(m.screen.String()), 0o600)
}

// View renders the current state to a string for display.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	m.game.Render(m.screen)
	if m.gameState.GameOver {
		y := m.screen.Height()/2 + 2
		if m.profile != nil {
			m.screen.DrawTextCentered(y, fmt.Sprintf(" best %d  coins %d ", m.profile.Best, m.profile.Balance), core.ColorHUD)
		}
		m.screen.DrawTextCentered(y+1, " R: again  B: menu  Q: quit ", core.ColorGray)
	}
	return RenderScreen(m.screen)
}

// IsQuitting returns true if user requested to quit entirely.
func (m Model) IsQuitting() bool {
	return m.quitting
}

// BackToMenu returns true if user requested to go back to menu.
func (m Model) BackToMenu() bool {
	return m.backToMenu
}

// Run plays one mode in its own Bubble Tea program.
func Run(game registry.Game, env Env) error {
	model := NewModel(game, env)
	model.standalone = true
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
