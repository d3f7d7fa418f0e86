package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/relay"
)

var flagRelayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve a room store over WebSocket",
	Long: `Serve the room store given by --rooms (default: a local SQLite file)
to other machines. Clients point at it with
--rooms ws://<host><addr>/v1/ws.

Use --rooms memory:// for a relay that keeps rooms only in memory.

Examples:
  laneduel relay
  laneduel relay --addr :9000 --rooms memory://
  laneduel relay --rooms "firestore://my-project?credentials=key.json"`,
	Args: cobra.NoArgs,
	Run:  runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&flagRelayAddr, "addr", ":8787", "Listen address (host:port)")
}

func runRelay(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadGameConfig()
	logger, closeLog := newLogger(cfg, false, "relay")
	defer closeLog()

	rooms, url, err := openRooms(ctx, cfg, logger)
	if err != nil {
		fail("cannot open room store %s: %v", url, err)
	}
	defer rooms.Close()

	fmt.Printf("Relaying %s on %s\n", url, flagRelayAddr)
	fmt.Println("Press Ctrl+C to stop")

	if err := relay.NewServer(rooms, relay.Options{Addr: flagRelayAddr, Logger: logger}).Run(ctx); err != nil {
		fail("relay error: %v", err)
	}
}
