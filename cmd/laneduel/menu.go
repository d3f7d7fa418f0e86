package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/platform/tui"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive menu",
	Long: `Open the session menu: pick a mode, host or join a duel, or browse
the scoreboard. Duel entries are hidden when the room store cannot be
opened.`,
	Run: runMenu,
}

func runMenu(_ *cobra.Command, _ []string) {
	env, cleanup := localEnv(context.Background(), true)
	err := tui.RunSession(env)
	cleanup()

	if err != nil {
		fail("running menu: %v", err)
	}
}
