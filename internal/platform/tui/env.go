package tui

import (
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/identity"
	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
	"github.com/vovakirdan/laneduel/internal/room"
	"github.com/vovakirdan/laneduel/internal/storage"
)

// Env is what every screen of one terminal session shares.
type Env struct {
	Game    config.Config
	Runtime core.RuntimeConfig
	Player  identity.Identity
	Session multiplayer.SessionID

	// DB records runs and backs the scoreboard. Nil disables both.
	DB storage.DB
	// Coordinator runs duels. Nil hides the duel entries.
	Coordinator *multiplayer.Coordinator

	Logger *log.Logger

	// Done is closed when the terminal session ends, e.g. an SSH
	// disconnect. Running duels leave their rooms then.
	Done <-chan struct{}
}

func (e Env) log() *log.Logger {
	if e.Logger == nil {
		return log.Default()
	}
	return e.Logger
}

func (e Env) reporter() *progression.Reporter {
	var store progression.Store
	if e.DB != nil {
		store = e.DB
	}
	return progression.NewReporter(store, e.Player.ID, config.Ms(e.Game.Room.ReportTimeoutMs), e.log())
}

func (e Env) roomPlayer() room.Player {
	return room.Player{Identity: e.Player.ID, DisplayName: e.Player.DisplayName}
}

func (e Env) resized(w, h int) Env {
	e.Runtime.ScreenW = w
	e.Runtime.ScreenH = h
	return e
}
