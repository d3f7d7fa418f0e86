package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/laneduel/internal/registry"
)

type screen int

const (
	screenMenu screen = iota
	screenSolo
	screenDuel
	screenScores
)

// SessionModel manages one terminal session: menu -> run, duel or
// scoreboard -> menu. It serves both the local menu and SSH users.
type SessionModel struct {
	env      Env
	screen   screen
	menu     MenuModel
	solo     Model
	duel     DuelModel
	scores   ScoreboardModel
	quitting bool
}

// NewSessionModel creates a new session model.
func NewSessionModel(env Env) SessionModel {
	return SessionModel{
		env:  env,
		menu: NewMenuModel(env),
	}
}

// Init initializes the session.
func (m SessionModel) Init() tea.Cmd {
	return m.menu.Init()
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.env = m.env.resized(wsm.Width, wsm.Height)
	}

	switch m.screen {
	case screenSolo:
		return m.updateSolo(msg)
	case screenDuel:
		return m.updateDuel(msg)
	case screenScores:
		return m.updateScores(msg)
	}
	return m.updateMenu(msg)
}

func (m SessionModel) toMenu() (tea.Model, tea.Cmd) {
	m.screen = screenMenu
	m.menu = NewMenuModel(m.env)
	return m, m.menu.Init()
}

func (m SessionModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.menu.Update(msg)
	m.menu = next.(MenuModel)

	if m.menu.IsQuitting() {
		return m.quit()
	}
	selected := m.menu.Selected()
	if selected == nil {
		return m, cmd
	}

	switch selected.Kind {
	case MenuPlay:
		game, err := registry.Create(selected.GameID)
		if err != nil {
			m.env.log().Error("cannot create mode", "mode", selected.GameID, "error", err)
			return m.toMenu()
		}
		m.solo = NewModel(game, m.env)
		m.screen = screenSolo
		return m, m.solo.Init()
	case MenuHost, MenuJoin:
		m.duel = NewDuelModel(m.env, selected.Kind == MenuHost, 0)
		m.screen = screenDuel
		return m, m.duel.Init()
	case MenuScores:
		m.scores = NewScoreboardModel(m.env.DB, m.env.Player.ID, m.env.Runtime.ScreenW, m.env.Runtime.ScreenH)
		m.screen = screenScores
		return m, m.scores.Init()
	}
	return m.quit()
}

func (m SessionModel) updateSolo(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.solo.Update(msg)
	m.solo = next.(Model)
	switch {
	case m.solo.IsQuitting():
		return m.quit()
	case m.solo.BackToMenu():
		return m.toMenu()
	}
	return m, cmd
}

func (m SessionModel) updateDuel(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.duel.Update(msg)
	m.duel = next.(DuelModel)
	switch {
	case m.duel.IsQuitting():
		return m.quit()
	case m.duel.BackToMenu():
		return m.toMenu()
	}
	return m, cmd
}

func (m SessionModel) updateScores(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.scores.Update(msg)
	m.scores = next.(ScoreboardModel)
	switch {
	case m.scores.IsQuitting():
		return m.quit()
	case m.scores.IsGoingBack():
		return m.toMenu()
	}
	return m, cmd
}

// View renders the current screen.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}
	switch m.screen {
	case screenSolo:
		return m.solo.View()
	case screenDuel:
		return m.duel.View()
	case screenScores:
		return m.scores.View()
	}
	return m.menu.View()
}

// RunSession runs the menu-driven session in the local terminal.
func RunSession(env Env) error {
	p := tea.NewProgram(NewSessionModel(env), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
