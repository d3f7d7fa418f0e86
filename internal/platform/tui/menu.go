package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/laneduel/internal/registry"
)

// MenuKind says what a menu entry opens.
type MenuKind int

const (
	MenuPlay MenuKind = iota
	MenuHost
	MenuJoin
	MenuScores
	MenuQuit
)

// MenuItem is one selectable menu line.
type MenuItem struct {
	Kind   MenuKind
	GameID string // for MenuPlay
	Title  string
}

var (
	menuTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	menuCursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	menuFooterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	menuIdentityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// MenuModel is the Bubble Tea model for the main menu.
type MenuModel struct {
	items     []MenuItem
	cursor    int
	env       Env
	keyMapper *KeyMapper
	quitting  bool
	selected  *MenuItem
}

// NewMenuModel builds the menu. Duel entries need a coordinator and the
// scoreboard needs a database.
func NewMenuModel(env Env) MenuModel {
	var items []MenuItem
	for _, g := range registry.List() {
		items = append(items, MenuItem{Kind: MenuPlay, GameID: g.ID, Title: g.Title})
	}
	if env.Coordinator != nil {
		items = append(items,
			MenuItem{Kind: MenuHost, Title: "Host a duel"},
			MenuItem{Kind: MenuJoin, Title: "Join a duel"},
		)
	}
	if env.DB != nil {
		items = append(items, MenuItem{Kind: MenuScores, Title: "Scores"})
	}
	items = append(items, MenuItem{Kind: MenuQuit, Title: "Quit"})

	return MenuModel{
		items:     items,
		env:       env,
		keyMapper: NewKeyMapper(),
	}
}

// Init initializes the menu model.
func (m MenuModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu.
func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.env = m.env.resized(msg.Width, msg.Height)
	}
	return m, nil
}

func (m MenuModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.keyMapper.MapKeyToMenuAction(msg) {
	case MenuActionQuit:
		m.quitting = true
	case MenuActionUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case MenuActionDown:
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case MenuActionSelect:
		item := m.items[m.cursor]
		if item.Kind == MenuQuit {
			m.quitting = true
			break
		}
		m.selected = &item
	case MenuActionScoreboard:
		if m.env.DB != nil {
			m.selected = &MenuItem{Kind: MenuScores, Title: "Scores"}
		}
	}
	return m, nil
}

// View renders the menu.
func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}
	width := m.env.Runtime.ScreenW

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(centerText(menuTitleStyle.Render("L A N E   D U E L"), width))
	b.WriteString("\n")
	if name := m.env.Player.DisplayName; name != "" {
		b.WriteString(centerText(menuIdentityStyle.Render("driving as "+name), width))
	}
	b.WriteString("\n\n")

	for i, item := range m.items {
		line := "  " + item.Title
		if i == m.cursor {
			line = menuCursorStyle.Render("> " + item.Title)
		}
		b.WriteString(centerText(line, width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	controls := "Up/Down: Navigate  |  Enter: Select  |  Q: Quit"
	if m.env.DB != nil {
		controls = "Up/Down: Navigate  |  Enter: Select  |  Tab: Scores  |  Q: Quit"
	}
	b.WriteString(centerText(menuFooterStyle.Render(controls), width))
	b.WriteString("\n")
	return b.String()
}

// Selected returns the selected menu item, or nil if none selected.
func (m MenuModel) Selected() *MenuItem {
	return m.selected
}

// IsQuitting returns true if user requested to quit.
func (m MenuModel) IsQuitting() bool {
	return m.quitting
}
