// Package storage persists progression, run history and match history.
// SQLite (pure-Go modernc.org/sqlite driver) is the local default;
// PostgreSQL through pgx serves shared deployments such as the SSH server.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
)

// ScoreEntry is one recorded run.
type ScoreEntry struct {
	ID        int64
	RunID     string
	Identity  string
	Mode      string
	Seed      uint32
	Score     int
	Reward    int
	CreatedAt time.Time
}

// MatchEntry is one recorded head-to-head match.
type MatchEntry struct {
	ID         int64
	RoomCode   string
	Side       string // side of the client that recorded it
	P1Identity string
	P2Identity string
	Score1     int
	Score2     int
	Winner     string // "p1", "p2" or empty
	Reason     string
	Rounds     int
	Duration   time.Duration
	CreatedAt  time.Time
}

// ModeStats aggregates the runs of one mode.
type ModeStats struct {
	Mode       string
	Runs       int
	HighScore  int
	AvgScore   float64
	TotalScore int64
	LastPlayed time.Time
}

// DB is what the CLI and TUI need from a backend.
type DB interface {
	progression.Store
	multiplayer.MatchResultSaver

	Profile(ctx context.Context, identity string) (progression.Profile, error)
	TopScores(ctx context.Context, identity, mode string, limit int) ([]ScoreEntry, error)
	RecentMatches(ctx context.Context, identity string, limit int) ([]MatchEntry, error)
	Stats(ctx context.Context, identity string) (map[string]*ModeStats, error)
	Close() error
}

var (
	_ DB = (*Store)(nil)
	_ DB = (*PostgresStore)(nil)
)

// OpenDSN opens PostgreSQL for postgres:// URLs and SQLite for anything
// else, which is taken as a file path.
func OpenDSN(ctx context.Context, dsn string) (DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn)
	}
	return Open(strings.TrimPrefix(dsn, "sqlite://"))
}

func matchEntryFrom(r multiplayer.MatchResult) MatchEntry {
	return MatchEntry{
		RoomCode:   r.Code,
		Side:       string(r.Side),
		P1Identity: r.P1Identity,
		P2Identity: r.P2Identity,
		Score1:     r.Score1,
		Score2:     r.Score2,
		Winner:     string(r.Winner),
		Reason:     string(r.Reason),
		Rounds:     r.Rounds,
		Duration:   r.Duration,
	}
}

// parseTime handles both time.Time and the text form SQLite returns.
func parseTime(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
