package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List room store drivers",
	Long: `Shows the URL schemes accepted by --rooms. Both drivers of a duel must
use the same store.`,
	Run: runStores,
}

func runStores(_ *cobra.Command, _ []string) {
	drivers := docstore.Drivers()

	width := len("Scheme")
	for _, d := range drivers {
		if len(d.Scheme) > width {
			width = len(d.Scheme)
		}
	}

	fmt.Println("Room stores:")
	fmt.Println()
	fmt.Printf("  %-*s  %s\n", width, "Scheme", "Description")
	fmt.Printf("  %-*s  %s\n", width, "------", "-----------")
	for _, d := range drivers {
		fmt.Printf("  %-*s  %s\n", width, d.Scheme, d.Summary)
	}
	fmt.Println()
	fmt.Println("Default: sqlite://~/.laneduel/rooms.db (same machine only)")
}
