package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/platform/tui"
	"github.com/vovakirdan/laneduel/internal/registry"
)

var playCmd = &cobra.Command{
	Use:   "play [mode]",
	Short: "Play a single-player mode",
	Long: `Start a run in the given mode (endless if omitted).

Controls:
  A/Left, D/Right  - Change lane
  Space/Enter      - Start
  P                - Pause
  R                - Restart (after game over)
  Ctrl+S           - Screenshot
  Q/Ctrl+C         - Quit

Modes:
  endless - Fresh course every run (or --seed for a fixed one)
  daily   - Everyone drives the same course today

Examples:
  laneduel play
  laneduel play daily
  laneduel play endless --seed 1234`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) {
	modeID := "endless"
	if len(args) == 1 {
		modeID = args[0]
	}

	if !registry.Exists(modeID) {
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", modeID)
		fmt.Fprintln(os.Stderr, "Run 'laneduel list' to see available modes.")
		os.Exit(1)
	}

	env, cleanup := localEnv(context.Background(), false)

	game, err := registry.Create(modeID)
	if err != nil {
		cleanup()
		fail("cannot create mode: %v", err)
	}

	runErr := tui.Run(game, env)
	cleanup()

	if runErr != nil {
		fail("running game: %v", runErr)
	}
}
