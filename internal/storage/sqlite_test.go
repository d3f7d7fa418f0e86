package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
	"github.com/vovakirdan/laneduel/internal/room"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // Test teardown
		store.Close()
	})
	return store
}

func report(id string, score int) progression.Report {
	return progression.Report{RunID: id, Mode: "endless", Seed: 42, Score: score, Reward: score / 10}
}

func TestStoreOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreNestedPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "deep", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() with nested path failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}

func TestApplyReport(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	best, err := store.GetBest(ctx, "alice")
	if err != nil || best != 0 {
		t.Fatalf("GetBest() for unknown = %d, %v; want 0, nil", best, err)
	}

	steps := []struct {
		rep         progression.Report
		wantBest    int
		wantBalance int
		wantRuns    int
	}{
		{report("r1", 100), 100, 10, 1},
		{report("r2", 50), 100, 15, 2},
		{report("r3", 230), 230, 38, 3},
		{report("r3", 230), 230, 38, 3}, // same run again
	}
	for i, s := range steps {
		p, err := store.ApplyReport(ctx, "alice", s.rep)
		if err != nil {
			t.Fatalf("step %d: ApplyReport() failed: %v", i, err)
		}
		if p.Best != s.wantBest || p.Balance != s.wantBalance || p.Runs != s.wantRuns {
			t.Errorf("step %d: got best=%d balance=%d runs=%d, want %d/%d/%d",
				i, p.Best, p.Balance, p.Runs, s.wantBest, s.wantBalance, s.wantRuns)
		}
	}

	best, err = store.GetBest(ctx, "alice")
	if err != nil || best != 230 {
		t.Errorf("GetBest() = %d, %v; want 230", best, err)
	}

	if _, err := store.ApplyReport(ctx, "", report("r9", 1)); err == nil {
		t.Error("ApplyReport() without identity should fail")
	}
}

func TestDisplayNameKeptWhenEmpty(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	rep := report("r1", 10)
	rep.DisplayName = "Alice"
	if _, err := store.ApplyReport(ctx, "alice", rep); err != nil {
		t.Fatal(err)
	}
	p, err := store.ApplyReport(ctx, "alice", report("r2", 5))
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", p.DisplayName)
	}
}

func TestTopScores(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	for i, score := range []int{100, 50, 200} {
		if _, err := store.ApplyReport(ctx, "alice", report(string(rune('a'+i)), score)); err != nil {
			t.Fatal(err)
		}
	}
	daily := report("d1", 500)
	daily.Mode = "daily"
	if _, err := store.ApplyReport(ctx, "bob", daily); err != nil {
		t.Fatal(err)
	}

	scores, err := store.TopScores(ctx, "alice", "", 10)
	if err != nil {
		t.Fatalf("TopScores() failed: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("Expected 3 scores, got %d", len(scores))
	}
	for i, want := range []int{200, 100, 50} {
		if scores[i].Score != want {
			t.Errorf("scores[%d] = %d, want %d", i, scores[i].Score, want)
		}
	}
	if scores[0].Seed != 42 {
		t.Errorf("Seed = %d, want 42", scores[0].Seed)
	}

	all, err := store.TopScores(ctx, "", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Score != 500 || all[0].Identity != "bob" {
		t.Errorf("TopScores(all, 2) = %+v", all)
	}

	onlyDaily, err := store.TopScores(ctx, "", "daily", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyDaily) != 1 {
		t.Errorf("Expected 1 daily score, got %d", len(onlyDaily))
	}

	stats, err := store.Stats(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	st := stats["endless"]
	if st == nil || st.Runs != 3 || st.HighScore != 200 || st.TotalScore != 350 {
		t.Errorf("Stats() = %+v", st)
	}

	if err := store.ClearScores(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	scores, _ = store.TopScores(ctx, "alice", "", 10)
	if len(scores) != 0 {
		t.Errorf("Expected no scores after clear, got %d", len(scores))
	}
	if best, _ := store.GetBest(ctx, "alice"); best != 200 {
		t.Errorf("profile best = %d after clearing history, want 200", best)
	}
}

func TestMatchHistory(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	var saver multiplayer.MatchResultSaver = store
	results := []multiplayer.MatchResult{
		{Code: "ABC234", Side: room.SideP1, P1Identity: "alice", P2Identity: "bob",
			Score1: 2, Score2: 0, Winner: room.SideP1, Reason: room.ReasonRounds, Rounds: 2, Duration: 42 * time.Second},
		{Code: "XYZ789", Side: room.SideP2, P1Identity: "carol", P2Identity: "alice",
			Score1: 0, Score2: 0, Winner: room.SideP1, Reason: room.ReasonForfeit, Rounds: 1},
		{Code: "QQQ222", Side: room.SideP1, P1Identity: "bob", P2Identity: "carol"},
	}
	for _, r := range results {
		if err := saver.SaveMatchResult(ctx, r); err != nil {
			t.Fatalf("SaveMatchResult() failed: %v", err)
		}
	}

	mine, err := store.RecentMatches(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("Expected 2 matches for alice, got %d", len(mine))
	}
	if mine[0].RoomCode != "XYZ789" || mine[0].Reason != "forfeit" {
		t.Errorf("newest match = %+v", mine[0])
	}
	if mine[1].Duration != 42*time.Second || mine[1].Winner != "p1" {
		t.Errorf("oldest match = %+v", mine[1])
	}

	all, err := store.RecentMatches(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("Expected limit 2, got %d", len(all))
	}
}

func TestOpenDSNSelectsSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dsn.db")
	db, err := OpenDSN(context.Background(), "sqlite://"+dbPath)
	if err != nil {
		t.Fatalf("OpenDSN() failed: %v", err)
	}
	defer db.Close()

	if _, ok := db.(*Store); !ok {
		t.Errorf("OpenDSN() = %T, want *Store", db)
	}
}
