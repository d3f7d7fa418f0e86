package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	dbPath = config.ExpandHome(dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		//nolint:errcheck // Already failing
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		//nolint:errcheck // Already failing
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			identity TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			best INTEGER NOT NULL DEFAULT 0,
			balance INTEGER NOT NULL DEFAULT 0,
			runs INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			identity TEXT NOT NULL,
			mode TEXT NOT NULL,
			seed INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL,
			reward INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_scores_identity ON scores(identity, mode);
		CREATE INDEX IF NOT EXISTS idx_scores_top ON scores(mode, score DESC);

		CREATE TABLE IF NOT EXISTS online_matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_code TEXT NOT NULL,
			side TEXT NOT NULL,
			p1_identity TEXT NOT NULL,
			p2_identity TEXT NOT NULL,
			score1 INTEGER NOT NULL DEFAULT 0,
			score2 INTEGER NOT NULL DEFAULT 0,
			winner TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			rounds INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_online_matches_p1 ON online_matches(p1_identity);
		CREATE INDEX IF NOT EXISTS idx_online_matches_p2 ON online_matches(p2_identity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetBest returns the personal best of identity, 0 if unknown.
func (s *Store) GetBest(ctx context.Context, identity string) (int, error) {
	var best sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT best FROM profiles WHERE identity = ?", identity).Scan(&best)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: cannot query best: %w", err)
	}
	return int(best.Int64), nil
}

// ApplyReport records the run and updates the profile in one transaction.
// A run id that was already recorded leaves everything unchanged.
func (s *Store) ApplyReport(ctx context.Context, identity string, rep progression.Report) (progression.Profile, error) {
	if identity == "" {
		return progression.Profile{}, progression.ErrUnknownIdentity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	//nolint:errcheck // No-op after Commit
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scores (run_id, identity, mode, seed, score, reward)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		rep.RunID, identity, rep.Mode, int64(rep.Seed), rep.Score, rep.Reward,
	)
	if err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot save score: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot save score: %w", err)
	}

	if inserted == 1 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (identity, display_name, best, balance, runs, updated_at)
			 VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
			 ON CONFLICT(identity) DO UPDATE SET
				display_name = COALESCE(NULLIF(excluded.display_name, ''), profiles.display_name),
				best = MAX(profiles.best, excluded.best),
				balance = profiles.balance + excluded.balance,
				runs = profiles.runs + 1,
				updated_at = CURRENT_TIMESTAMP`,
			identity, rep.DisplayName, rep.Score, rep.Reward,
		)
		if err != nil {
			return progression.Profile{}, fmt.Errorf("storage: cannot update profile: %w", err)
		}
	}

	p, err := scanProfile(tx.QueryRowContext(ctx, profileQuery, identity), identity)
	if err != nil {
		return progression.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot commit: %w", err)
	}
	return p, nil
}

const profileQuery = `SELECT identity, display_name, best, balance, runs, updated_at FROM profiles WHERE identity = ?`

func scanProfile(row *sql.Row, identity string) (progression.Profile, error) {
	var p progression.Profile
	var updatedAt any
	err := row.Scan(&p.Identity, &p.DisplayName, &p.Best, &p.Balance, &p.Runs, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.Profile{Identity: identity}, nil
	}
	if err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot read profile: %w", err)
	}
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// Profile returns the profile of identity; unknown players get a zero one.
func (s *Store) Profile(ctx context.Context, identity string) (progression.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, profileQuery, identity), identity)
}

// TopScores retrieves the best runs, highest first. Empty identity or mode
// match everything.
func (s *Store) TopScores(ctx context.Context, identity, mode string, limit int) ([]ScoreEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, identity, mode, seed, score, reward, created_at
		 FROM scores
		 WHERE (? = '' OR identity = ?) AND (? = '' OR mode = ?)
		 ORDER BY score DESC, id ASC
		 LIMIT ?`,
		identity, identity, mode, mode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query scores: %w", err)
	}
	defer rows.Close()

	var entries []ScoreEntry
	for rows.Next() {
		var e ScoreEntry
		var seed int64
		var createdAt any
		if err := rows.Scan(&e.ID, &e.RunID, &e.Identity, &e.Mode, &seed, &e.Score, &e.Reward, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.Seed = uint32(seed) //nolint:gosec // written from a uint32
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return entries, nil
}

// ClearScores deletes the run history of identity. The profile is kept.
func (s *Store) ClearScores(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scores WHERE identity = ?", identity); err != nil {
		return fmt.Errorf("storage: cannot clear scores: %w", err)
	}
	return nil
}

// SaveMatchResult implements multiplayer.MatchResultSaver.
func (s *Store) SaveMatchResult(ctx context.Context, r multiplayer.MatchResult) error {
	e := matchEntryFrom(r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO online_matches
		 (room_code, side, p1_identity, p2_identity, score1, score2, winner, reason, rounds, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RoomCode, e.Side, e.P1Identity, e.P2Identity, e.Score1, e.Score2,
		e.Winner, e.Reason, e.Rounds, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save online match: %w", err)
	}
	return nil
}

// RecentMatches returns the latest matches identity played, newest first.
// An empty identity returns everybody's.
func (s *Store) RecentMatches(ctx context.Context, identity string, limit int) ([]MatchEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_code, side, p1_identity, p2_identity, score1, score2,
		        winner, reason, rounds, duration_ms, created_at
		 FROM online_matches
		 WHERE ? = '' OR p1_identity = ? OR p2_identity = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		identity, identity, identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query online matches: %w", err)
	}
	defer rows.Close()

	var results []MatchEntry
	for rows.Next() {
		var e MatchEntry
		var durationMs int64
		var createdAt any
		if err := rows.Scan(&e.ID, &e.RoomCode, &e.Side, &e.P1Identity, &e.P2Identity,
			&e.Score1, &e.Score2, &e.Winner, &e.Reason, &e.Rounds, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan online match: %w", err)
		}
		e.Duration = msDuration(durationMs)
		e.CreatedAt = parseTime(createdAt)
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return results, nil
}

// Stats aggregates identity's runs per mode.
func (s *Store) Stats(ctx context.Context, identity string) (map[string]*ModeStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode, COUNT(*), MAX(score), AVG(score), SUM(score), MAX(created_at)
		 FROM scores
		 WHERE identity = ?
		 GROUP BY mode`,
		identity,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*ModeStats)
	for rows.Next() {
		var st ModeStats
		var lastPlayed any
		if err := rows.Scan(&st.Mode, &st.Runs, &st.HighScore, &st.AvgScore, &st.TotalScore, &lastPlayed); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		st.LastPlayed = parseTime(lastPlayed)
		stats[st.Mode] = &st
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return stats, nil
}
