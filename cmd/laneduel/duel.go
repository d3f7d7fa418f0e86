package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/platform/tui"
	"github.com/vovakirdan/laneduel/internal/room"
)

var flagBestOf int

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a duel",
	Long: `Create a duel room and show its code. Give the code to your rival;
the first round starts when both drivers press Enter in the lobby.

Both sides must use the same room store, e.g. the same SQLite file on one
machine or a relay started with 'laneduel relay'.

Examples:
  laneduel host
  laneduel host --best-of 5
  laneduel --rooms ws://10.0.0.5:8787/v1/ws host`,
	Args: cobra.NoArgs,
	Run:  runHost,
}

var joinCmd = &cobra.Command{
	Use:   "join [code]",
	Short: "Join a duel by room code",
	Long: `Join the duel room with the given code. Without a code you are asked
for one. Codes are case-insensitive.

Examples:
  laneduel join K7M2QX
  laneduel join`,
	Args: cobra.MaximumNArgs(1),
	Run:  runJoin,
}

func init() {
	hostCmd.Flags().IntVar(&flagBestOf, "best-of", 0, "Rounds in the match (odd; 0 = config default)")
}

func runHost(_ *cobra.Command, _ []string) {
	if flagBestOf < 0 || (flagBestOf > 0 && flagBestOf%2 == 0) {
		fail("--best-of must be an odd number")
	}
	runDuel(true, flagBestOf, "")
}

func runJoin(_ *cobra.Command, args []string) {
	code := ""
	if len(args) == 1 {
		code = room.NormalizeCode(args[0])
	}
	runDuel(false, 0, code)
}

func runDuel(host bool, bestOf int, code string) {
	env, cleanup := localEnv(context.Background(), true)
	if env.Coordinator == nil {
		cleanup()
		fail("no room store available; see 'laneduel stores'")
	}

	var err error
	if code != "" {
		err = tui.RunJoin(env, code)
	} else {
		err = tui.RunDuel(env, host, bestOf)
	}
	cleanup()

	if err != nil {
		fail("running duel: %v", err)
	}
}
