package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/progression"
)

// PostgresStore keeps the same tables in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: cannot connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			identity TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			best INTEGER NOT NULL DEFAULT 0,
			balance INTEGER NOT NULL DEFAULT 0,
			runs INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS scores (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			identity TEXT NOT NULL,
			mode TEXT NOT NULL,
			seed BIGINT NOT NULL DEFAULT 0,
			score INTEGER NOT NULL,
			reward INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_scores_identity ON scores(identity, mode);
		CREATE INDEX IF NOT EXISTS idx_scores_top ON scores(mode, score DESC);

		CREATE TABLE IF NOT EXISTS online_matches (
			id BIGSERIAL PRIMARY KEY,
			room_code TEXT NOT NULL,
			side TEXT NOT NULL,
			p1_identity TEXT NOT NULL,
			p2_identity TEXT NOT NULL,
			score1 INTEGER NOT NULL DEFAULT 0,
			score2 INTEGER NOT NULL DEFAULT 0,
			winner TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			rounds INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_online_matches_p1 ON online_matches(p1_identity);
		CREATE INDEX IF NOT EXISTS idx_online_matches_p2 ON online_matches(p2_identity);
	`)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetBest returns the personal best of identity, 0 if unknown.
func (s *PostgresStore) GetBest(ctx context.Context, identity string) (int, error) {
	var best int
	err := s.pool.QueryRow(ctx, "SELECT best FROM profiles WHERE identity = $1", identity).Scan(&best)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: cannot query best: %w", err)
	}
	return best, nil
}

// ApplyReport records the run and updates the profile in one transaction.
func (s *PostgresStore) ApplyReport(ctx context.Context, identity string, rep progression.Report) (progression.Profile, error) {
	if identity == "" {
		return progression.Profile{}, progression.ErrUnknownIdentity
	}

	var p progression.Profile
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO scores (run_id, identity, mode, seed, score, reward)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id) DO NOTHING`,
			rep.RunID, identity, rep.Mode, int64(rep.Seed), rep.Score, rep.Reward,
		)
		if err != nil {
			return fmt.Errorf("storage: cannot save score: %w", err)
		}

		if tag.RowsAffected() == 1 {
			_, err = tx.Exec(ctx,
				`INSERT INTO profiles (identity, display_name, best, balance, runs)
				 VALUES ($1, $2, $3, $4, 1)
				 ON CONFLICT (identity) DO UPDATE SET
					display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), profiles.display_name),
					best = GREATEST(profiles.best, EXCLUDED.best),
					balance = profiles.balance + EXCLUDED.balance,
					runs = profiles.runs + 1,
					updated_at = now()`,
				identity, rep.DisplayName, rep.Score, rep.Reward,
			)
			if err != nil {
				return fmt.Errorf("storage: cannot update profile: %w", err)
			}
		}

		p, err = s.profile(ctx, tx, identity)
		return err
	})
	if err != nil {
		return progression.Profile{}, err
	}
	return p, nil
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) profile(ctx context.Context, q rowQuerier, identity string) (progression.Profile, error) {
	var p progression.Profile
	err := q.QueryRow(ctx,
		`SELECT identity, display_name, best, balance, runs, updated_at FROM profiles WHERE identity = $1`,
		identity,
	).Scan(&p.Identity, &p.DisplayName, &p.Best, &p.Balance, &p.Runs, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return progression.Profile{Identity: identity}, nil
	}
	if err != nil {
		return progression.Profile{}, fmt.Errorf("storage: cannot read profile: %w", err)
	}
	return p, nil
}

// Profile returns the profile of identity; unknown players get a zero one.
func (s *PostgresStore) Profile(ctx context.Context, identity string) (progression.Profile, error) {
	return s.profile(ctx, s.pool, identity)
}

// TopScores retrieves the best runs, highest first.
func (s *PostgresStore) TopScores(ctx context.Context, identity, mode string, limit int) ([]ScoreEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, identity, mode, seed, score, reward, created_at
		 FROM scores
		 WHERE ($1 = '' OR identity = $1) AND ($2 = '' OR mode = $2)
		 ORDER BY score DESC, id ASC
		 LIMIT $3`,
		identity, mode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query scores: %w", err)
	}
	defer rows.Close()

	var entries []ScoreEntry
	for rows.Next() {
		var e ScoreEntry
		var seed int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Identity, &e.Mode, &seed, &e.Score, &e.Reward, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.Seed = uint32(seed) //nolint:gosec // written from a uint32
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return entries, nil
}

// SaveMatchResult implements multiplayer.MatchResultSaver.
func (s *PostgresStore) SaveMatchResult(ctx context.Context, r multiplayer.MatchResult) error {
	e := matchEntryFrom(r)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO online_matches
		 (room_code, side, p1_identity, p2_identity, score1, score2, winner, reason, rounds, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.RoomCode, e.Side, e.P1Identity, e.P2Identity, e.Score1, e.Score2,
		e.Winner, e.Reason, e.Rounds, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save online match: %w", err)
	}
	return nil
}

// RecentMatches returns the latest matches identity played, newest first.
func (s *PostgresStore) RecentMatches(ctx context.Context, identity string, limit int) ([]MatchEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_code, side, p1_identity, p2_identity, score1, score2,
		        winner, reason, rounds, duration_ms, created_at
		 FROM online_matches
		 WHERE $1 = '' OR p1_identity = $1 OR p2_identity = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query online matches: %w", err)
	}
	defer rows.Close()

	var results []MatchEntry
	for rows.Next() {
		var e MatchEntry
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.RoomCode, &e.Side, &e.P1Identity, &e.P2Identity,
			&e.Score1, &e.Score2, &e.Winner, &e.Reason, &e.Rounds, &durationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan online match: %w", err)
		}
		e.Duration = msDuration(durationMs)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return results, nil
}

// Stats aggregates identity's runs per mode.
func (s *PostgresStore) Stats(ctx context.Context, identity string) (map[string]*ModeStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT mode, COUNT(*), MAX(score), AVG(score)::float8, SUM(score), MAX(created_at)
		 FROM scores
		 WHERE identity = $1
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
		if err := rows.Scan(&st.Mode, &st.Runs, &st.HighScore, &st.AvgScore, &st.TotalScore, &st.LastPlayed); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		stats[st.Mode] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return stats, nil
}
