package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"draftgap/internal/matchup"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS matchups (
		id BIGSERIAL PRIMARY KEY,
		champion_id TEXT NOT NULL,
		opponent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		rank_tier TEXT NOT NULL,
		wins BIGINT NOT NULL DEFAULT 0,
		games BIGINT NOT NULL DEFAULT 0,
		patch TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE(champion_id, opponent_id, role, rank_tier, patch)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matchups_lookup ON matchups(champion_id, role, rank_tier)`,
	`CREATE INDEX IF NOT EXISTS idx_matchups_opponent ON matchups(opponent_id, role, rank_tier)`,
	`CREATE TABLE IF NOT EXISTS processed_matches (
		match_id TEXT PRIMARY KEY,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS collection_runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		mode TEXT NOT NULL,
		players INT NOT NULL DEFAULT 0,
		missing_puuid INT NOT NULL DEFAULT 0,
		matches INT NOT NULL DEFAULT 0,
		duplicates INT NOT NULL DEFAULT 0,
		other_queue INT NOT NULL DEFAULT 0,
		failed INT NOT NULL DEFAULT 0,
		matchup_rows INT NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
}

const (
	pgUpsert = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + EXCLUDED.wins,
			games = matchups.games + EXCLUDED.games,
			updated_at = EXCLUDED.updated_at`

	pgMarkProcessed = `
		INSERT INTO processed_matches (match_id, processed_at) VALUES ($1, $2)
		ON CONFLICT (match_id) DO NOTHING`

	pgClaimProcessed = `
		INSERT INTO processed_matches (match_id, processed_at) VALUES ($1, $2)
		ON CONFLICT (match_id) DO NOTHING
		RETURNING match_id`

	pgMergeAsChampion = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		SELECT $1, opponent_id, role, rank_tier, wins, games, patch, $2
		FROM matchups
		WHERE champion_id = $3
		ON CONFLICT (champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + EXCLUDED.wins,
			games = matchups.games + EXCLUDED.games,
			updated_at = EXCLUDED.updated_at`

	pgMergeAsOpponent = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		SELECT champion_id, $1, role, rank_tier, wins, games, patch, $2
		FROM matchups
		WHERE opponent_id = $3
		ON CONFLICT (champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + EXCLUDED.wins,
			games = matchups.games + EXCLUDED.games,
			updated_at = EXCLUDED.updated_at`

	pgRecordRun = `
		INSERT INTO collection_runs (run_id, started_at, finished_at, mode, players, missing_puuid,
			matches, duplicates, other_queue, failed, matchup_rows, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			players = EXCLUDED.players,
			missing_puuid = EXCLUDED.missing_puuid,
			matches = EXCLUDED.matches,
			duplicates = EXCLUDED.duplicates,
			other_queue = EXCLUDED.other_queue,
			failed = EXCLUDED.failed,
			matchup_rows = EXCLUDED.matchup_rows,
			error = EXCLUDED.error`
)

// pgStore is the PostgreSQL backend.
type pgStore struct {
	pool     *pgxpool.Pool
	readOnly bool
	now      func() time.Time
}

func openPostgres(ctx context.Context, dsn string, readOnly bool) (*pgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if readOnly {
		cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &pgStore{pool: pool, readOnly: readOnly, now: time.Now}
	if !readOnly {
		for _, q := range postgresSchema {
			if _, err := pool.Exec(ctx, q); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to create schema: %w", err)
			}
		}
	}
	return s, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgStore) IsProcessed(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_matches WHERE match_id = $1)`, matchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", matchID, err)
	}
	return exists, nil
}

func (s *pgStore) MarkProcessed(ctx context.Context, matchID string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.pool.Exec(ctx, pgMarkProcessed, matchID, s.now()); err != nil {
		return fmt.Errorf("failed to mark match %s: %w", matchID, err)
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, key Key, delta Delta) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.pool.Exec(ctx, pgUpsert, upsertArgs(key, delta, s.now())...); err != nil {
		return fmt.Errorf("failed to upsert matchup: %w", err)
	}
	return nil
}

// ApplyMatch claims the processed row, then sends the upserts of the match in
// one batch inside the same transaction.
func (s *pgStore) ApplyMatch(ctx context.Context, matchID string, obs []Observation) (bool, error) {
	if s.readOnly {
		return false, ErrReadOnly
	}
	applied := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.now()
		var claimed string
		err := tx.QueryRow(ctx, pgClaimProcessed, matchID, now).Scan(&claimed)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark match %s: %w", matchID, err)
		}

		batch := &pgx.Batch{}
		for _, o := range obs {
			batch.Queue(pgUpsert, upsertArgs(o.Key, o.Delta, now)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to apply match %s: %w", matchID, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *pgStore) MergeIdentity(ctx context.Context, wrongID, correctID string) (MergeResult, error) {
	res := MergeResult{From: wrongID, To: correctID}
	if s.readOnly {
		return res, ErrReadOnly
	}
	if wrongID == correctID {
		return res, fmt.Errorf("merge %s into itself", wrongID)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.now()
		sum := func(champion string, out *int64) error {
			return tx.QueryRow(ctx,
				`SELECT COALESCE(SUM(games), 0)::bigint FROM matchups WHERE champion_id = $1`, champion).Scan(out)
		}
		if err := sum(wrongID, &res.WrongGames); err != nil {
			return fmt.Errorf("failed to sum games for %s: %w", wrongID, err)
		}
		if err := sum(correctID, &res.CorrectBefore); err != nil {
			return fmt.Errorf("failed to sum games for %s: %w", correctID, err)
		}

		steps := []struct {
			query string
			args  []any
		}{
			{pgMergeAsChampion, []any{correctID, now, wrongID}},
			{`DELETE FROM matchups WHERE champion_id = $1`, []any{wrongID}},
			{pgMergeAsOpponent, []any{correctID, now, wrongID}},
			{`DELETE FROM matchups WHERE opponent_id = $1`, []any{wrongID}},
		}
		for i, st := range steps {
			tag, err := tx.Exec(ctx, st.query, st.args...)
			if err != nil {
				return fmt.Errorf("merge %s -> %s step %d: %w", wrongID, correctID, i+1, err)
			}
			if i%2 == 0 {
				res.RowsMerged += tag.RowsAffected()
			}
		}

		if err := sum(correctID, &res.CorrectAfter); err != nil {
			return fmt.Errorf("failed to sum games for %s: %w", correctID, err)
		}
		return nil
	})
	return res, err
}

func (s *pgStore) RecordRun(ctx context.Context, run RunRecord) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.pool.Exec(ctx, pgRecordRun,
		run.ID, run.StartedAt, run.FinishedAt, run.Mode,
		run.Players, run.MissingPUUID, run.Matches, run.Duplicates, run.OtherQueue, run.Failed,
		run.MatchupRows, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *pgStore) OpponentStats(ctx context.Context, q OpponentQuery) ([]OpponentStat, error) {
	query, args := opponentQuery(q, func(n int) string { return "$" + strconv.Itoa(n) }, "::bigint")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opponents: %w", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OpponentStat, error) {
		var st OpponentStat
		err := row.Scan(&st.Opponent, &st.Wins, &st.Games)
		return st, err
	})
	if err != nil {
		return nil, err
	}
	return rankOpponents(stats), nil
}

func (s *pgStore) PrimaryRoles(ctx context.Context) ([]RoleStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT champion_id, role, SUM(games)::bigint FROM matchups GROUP BY champion_id, role`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	all, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoleStat, error) {
		var r RoleStat
		var role string
		err := row.Scan(&r.Champion, &role, &r.Games)
		r.Role = matchup.Role(role)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	return primaryRoles(all), nil
}

func (s *pgStore) Patches(ctx context.Context) ([]PatchStat, error) {
	rows, err := s.pool.Query(ctx, `SELECT patch, SUM(games)::bigint FROM matchups GROUP BY patch`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches: %w", err)
	}
	ps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PatchStat, error) {
		var p PatchStat
		err := row.Scan(&p.Patch, &p.Games)
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return sortPatches(ps), nil
}

func (s *pgStore) ChampionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT champion_id FROM matchups UNION SELECT opponent_id FROM matchups ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query champion ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *pgStore) ProcessedIDs(ctx context.Context, fn func(string) error) error {
	rows, err := s.pool.Query(ctx, `SELECT match_id FROM processed_matches`)
	if err != nil {
		return fmt.Errorf("failed to query processed matches: %w", err)
	}
	var id string
	_, err = pgx.ForEachRow(rows, []any{&id}, func() error {
		return fn(id)
	})
	return err
}

func (s *pgStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM matchups), (SELECT COUNT(*) FROM processed_matches)`).
		Scan(&c.Matchups, &c.Processed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}
