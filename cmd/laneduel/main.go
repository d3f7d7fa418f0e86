// laneduel is a three-lane dodging game for the terminal with head-to-head
// duels over a shared room store.
//
// Usage:
//
//	laneduel list              - List single-player modes
//	laneduel play [mode]       - Play endless (default) or daily
//	laneduel menu              - Interactive menu with duels and scores
//	laneduel host              - Open a duel room and wait for a rival
//	laneduel join <code>       - Join a duel room
//	laneduel scores            - Show profile, best runs and recent duels
//	laneduel serve             - Start the SSH server for remote play
//	laneduel relay             - Serve a room store to other machines
//	laneduel stores            - List room store drivers
//
// Global flags:
//
//	--config <path>  - Game config YAML (default: ~/.laneduel/config.yaml)
//	--rooms <url>    - Room store URL (default: sqlite://~/.laneduel/rooms.db)
//	--db <dsn>       - Progression database path or postgres:// URL
//	--fps <rate>     - Tick rate (default: 60)
//	--seed <value>   - Generator seed for reproducible runs
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Store drivers register themselves
	_ "github.com/vovakirdan/laneduel/internal/docstore/firestoredb"
	_ "github.com/vovakirdan/laneduel/internal/docstore/memstore"
	_ "github.com/vovakirdan/laneduel/internal/docstore/relaystore"
	_ "github.com/vovakirdan/laneduel/internal/docstore/sqlitestore"

	// Modes register themselves
	_ "github.com/vovakirdan/laneduel/internal/games/lanes"
)

var (
	// Global flags
	flagConfig   string
	flagRooms    string
	flagDB       string
	flagName     string
	flagFPS      int
	flagSeed     uint32
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "laneduel",
	Short: "Lane Duel - dodge traffic in your terminal, alone or head to head",
	Long: `Lane Duel is a three-lane dodging game. Steer between lanes, avoid
blockers and pits, and survive as the course speeds up.

Duels pair two players through a shared room store: one hosts and reads
out a short room code, the other joins with it. Both play the same seeded
course and the best of N rounds wins.

Available commands:
  list     - Show single-player modes
  play     - Play a mode directly
  menu     - Interactive menu
  host     - Host a duel
  join     - Join a duel by code
  scores   - View progression and history
  serve    - Start SSH server for remote play
  relay    - Share a room store over WebSocket
  stores   - List room store drivers

Examples:
  laneduel play
  laneduel play daily
  laneduel host --best-of 5
  laneduel join K7M2QX
  laneduel --rooms ws://duel.example.com:8787/v1/ws host
  laneduel serve --ssh :2222`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to game config YAML")
	pf.StringVar(&flagRooms, "rooms", "", "Room store URL (see 'laneduel stores')")
	pf.StringVar(&flagDB, "db", "", "Progression database: file path or postgres:// URL")
	pf.StringVar(&flagName, "name", "", "Display name (stored with your identity)")
	pf.IntVar(&flagFPS, "fps", 60, "Tick rate (frames per second)")
	pf.Uint32Var(&flagSeed, "seed", 0, "Generator seed (0 = fresh seed per run)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(storesCmd)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
