package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List single-player modes",
	Long:  `Shows the single-player modes. Duels are started with 'host' and 'join'.`,
	Run:   runList,
}

func runList(cmd *cobra.Command, args []string) {
	modes := registry.List()

	if len(modes) == 0 {
		fmt.Println("No modes available.")
		return
	}

	fmt.Println("Available modes:")
	fmt.Println()

	maxIDLen := 2 // "ID" header
	for _, m := range modes {
		if len(m.ID) > maxIDLen {
			maxIDLen = len(m.ID)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxIDLen, "ID", "Title")
	fmt.Printf("  %-*s  %s\n", maxIDLen, "--", "-----")
	for _, m := range modes {
		fmt.Printf("  %-*s  %s\n", maxIDLen, m.ID, m.Title)
	}

	fmt.Println()
	fmt.Println("Run 'laneduel play <id>' to start a run.")
}
