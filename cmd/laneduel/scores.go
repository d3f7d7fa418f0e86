package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/laneduel/internal/registry"
	"github.com/vovakirdan/laneduel/internal/storage"
)

var (
	flagScoresAll   bool
	flagScoresLimit int
)

var scoresCmd = &cobra.Command{
	Use:   "scores [mode]",
	Short: "Show progression, best runs and recent duels",
	Long: `Display your profile (best score and coin balance), the top runs of a
mode and your most recent duels.

Examples:
  laneduel scores
  laneduel scores daily
  laneduel scores endless --all --limit 20`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScores,
}

func init() {
	scoresCmd.Flags().BoolVar(&flagScoresAll, "all", false, "Show runs of every player, not just yours")
	scoresCmd.Flags().IntVar(&flagScoresLimit, "limit", 10, "Number of rows per table")
}

func runScores(cmd *cobra.Command, args []string) {
	modeID := "endless"
	if len(args) == 1 {
		modeID = args[0]
	}
	if !registry.Exists(modeID) {
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", modeID)
		fmt.Fprintln(os.Stderr, "Run 'laneduel list' to see available modes.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := loadGameConfig()
	logger, closeLog := newLogger(cfg, false, "laneduel")
	defer closeLog()

	who, err := currentIdentity(ctx, cfg)
	if err != nil {
		fail("cannot determine identity: %v", err)
	}

	db := openDB(ctx, cfg, logger)
	if db == nil {
		os.Exit(1)
	}
	defer db.Close()

	if err := printScores(ctx, db, who.ID, who.DisplayName, modeID); err != nil {
		fail("%v", err)
	}
}

func printScores(ctx context.Context, db storage.DB, me, name, modeID string) error {
	profile, err := db.Profile(ctx, me)
	if err != nil {
		return fmt.Errorf("reading profile: %w", err)
	}
	fmt.Printf("%s\n", name)
	fmt.Printf("  Best: %d   Coins: %d   Runs: %d\n", profile.Best, profile.Balance, profile.Runs)
	fmt.Println()

	owner := me
	scope := "Your"
	if flagScoresAll {
		owner = ""
		scope = "All"
	}
	scores, err := db.TopScores(ctx, owner, modeID, flagScoresLimit)
	if err != nil {
		return fmt.Errorf("reading scores: %w", err)
	}

	fmt.Printf("%s best runs - %s\n", scope, modeID)
	if len(scores) == 0 {
		fmt.Println("  No runs recorded yet.")
		fmt.Printf("  Play 'laneduel play %s' to set the first score!\n", modeID)
	} else {
		fmt.Printf("  %-4s  %-8s  %-6s  %-10s  %s\n", "Rank", "Score", "Coins", "Seed", "Date")
		fmt.Printf("  %-4s  %-8s  %-6s  %-10s  %s\n", "----", "-----", "-----", "----", "----")
		for i, e := range scores {
			fmt.Printf("  %-4d  %-8d  %-6d  %-10d  %s\n",
				i+1, e.Score, e.Reward, e.Seed, e.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
	}
	fmt.Println()

	stats, err := db.Stats(ctx, me)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	if len(stats) > 0 {
		modes := make([]string, 0, len(stats))
		for m := range stats {
			modes = append(modes, m)
		}
		sort.Strings(modes)

		fmt.Println("Per mode")
		for _, m := range modes {
			s := stats[m]
			fmt.Printf("  %-8s  runs %-4d  high %-6d  avg %.0f\n", m, s.Runs, s.HighScore, s.AvgScore)
		}
		fmt.Println()
	}

	matches, err := db.RecentMatches(ctx, me, flagScoresLimit)
	if err != nil {
		return fmt.Errorf("reading duels: %w", err)
	}
	fmt.Println("Recent duels")
	if len(matches) == 0 {
		fmt.Println("  No duels recorded yet.")
		return nil
	}
	for _, m := range matches {
		mySide := "p1"
		if m.P2Identity == me {
			mySide = "p2"
		}
		outcome := "lost"
		switch m.Winner {
		case "":
			outcome = "none"
		case mySide:
			outcome = "won"
		}
		fmt.Printf("  %s  %-6s  %-4s  %d-%d  (%s)\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04"), m.RoomCode, outcome, m.Score1, m.Score2, m.Reason)
	}
	return nil
}
