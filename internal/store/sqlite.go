package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqliteSchema is shared by the sqlite and libsql backends.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS matchups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		champion_id TEXT NOT NULL,
		opponent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		rank_tier TEXT NOT NULL,
		wins INTEGER NOT NULL DEFAULT 0,
		games INTEGER NOT NULL DEFAULT 0,
		patch TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(champion_id, opponent_id, role, rank_tier, patch)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matchups_lookup ON matchups(champion_id, role, rank_tier)`,
	`CREATE INDEX IF NOT EXISTS idx_matchups_opponent ON matchups(opponent_id, role, rank_tier)`,
	`CREATE TABLE IF NOT EXISTS processed_matches (
		match_id TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS collection_runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		mode TEXT NOT NULL,
		players INTEGER NOT NULL DEFAULT 0,
		missing_puuid INTEGER NOT NULL DEFAULT 0,
		matches INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		other_queue INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		matchup_rows INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
}

const (
	sqliteUpsert = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + excluded.wins,
			games = matchups.games + excluded.games,
			updated_at = excluded.updated_at`

	sqliteMarkProcessed = `INSERT OR IGNORE INTO processed_matches (match_id, processed_at) VALUES (?, ?)`

	// The WHERE clause is required: without it SQLite parses ON CONFLICT as a join constraint.
	sqliteMergeAsChampion = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		SELECT ?, opponent_id, role, rank_tier, wins, games, patch, ?
		FROM matchups
		WHERE champion_id = ?
		ON CONFLICT(champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + excluded.wins,
			games = matchups.games + excluded.games,
			updated_at = excluded.updated_at`

	sqliteMergeAsOpponent = `
		INSERT INTO matchups (champion_id, opponent_id, role, rank_tier, wins, games, patch, updated_at)
		SELECT champion_id, ?, role, rank_tier, wins, games, patch, ?
		FROM matchups
		WHERE opponent_id = ?
		ON CONFLICT(champion_id, opponent_id, role, rank_tier, patch)
		DO UPDATE SET
			wins = matchups.wins + excluded.wins,
			games = matchups.games + excluded.games,
			updated_at = excluded.updated_at`

	sqliteRecordRun = `
		INSERT INTO collection_runs (run_id, started_at, finished_at, mode, players, missing_puuid,
			matches, duplicates, other_queue, failed, matchup_rows, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			players = excluded.players,
			missing_puuid = excluded.missing_puuid,
			matches = excluded.matches,
			duplicates = excluded.duplicates,
			other_queue = excluded.other_queue,
			failed = excluded.failed,
			matchup_rows = excluded.matchup_rows,
			error = excluded.error`
)

// sqliteTime matches the format of SQLite's datetime('now').
const sqliteTime = "2006-01-02 15:04:05"

// sqlStore serves the sqlite and libsql drivers over database/sql.
type sqlStore struct {
	db       *sql.DB
	readOnly bool
	now      func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, readOnly bool) (*sqlStore, error) {
	s := &sqlStore{db: db, readOnly: readOnly, now: time.Now}
	if readOnly {
		return s, nil
	}
	for _, q := range sqliteSchema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

func (s *sqlStore) stamp() string {
	return s.now().UTC().Format(sqliteTime)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) IsProcessed(ctx context.Context, matchID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_matches WHERE match_id = ?`, matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", matchID, err)
	}
	return true, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, matchID string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.db.ExecContext(ctx, sqliteMarkProcessed, matchID, s.stamp()); err != nil {
		return fmt.Errorf("failed to mark match %s: %w", matchID, err)
	}
	return nil
}

func (s *sqlStore) Upsert(ctx context.Context, key Key, delta Delta) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, upsertArgs(key, delta, s.stamp())...); err != nil {
		return fmt.Errorf("failed to upsert matchup: %w", err)
	}
	return nil
}

func upsertArgs(key Key, delta Delta, stamp any) []any {
	return []any{key.Champion, key.Opponent, string(key.Role), key.RankTier, delta.Wins, delta.Games, key.Patch, stamp}
}

func (s *sqlStore) ApplyMatch(ctx context.Context, matchID string, obs []Observation) (bool, error) {
	if s.readOnly {
		return false, ErrReadOnly
	}
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stamp := s.stamp()
		res, err := tx.ExecContext(ctx, sqliteMarkProcessed, matchID, stamp)
		if err != nil {
			return fmt.Errorf("failed to mark match %s: %w", matchID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to mark match %s: %w", matchID, err)
		} else if n == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, o := range obs {
			if _, err := stmt.ExecContext(ctx, upsertArgs(o.Key, o.Delta, stamp)...); err != nil {
				return fmt.Errorf("failed to upsert matchup: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *sqlStore) MergeIdentity(ctx context.Context, wrongID, correctID string) (MergeResult, error) {
	res := MergeResult{From: wrongID, To: correctID}
	if s.readOnly {
		return res, ErrReadOnly
	}
	if wrongID == correctID {
		return res, fmt.Errorf("merge %s into itself", wrongID)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stamp := s.stamp()
		if err := sumGames(ctx, tx, wrongID, &res.WrongGames); err != nil {
			return err
		}
		if err := sumGames(ctx, tx, correctID, &res.CorrectBefore); err != nil {
			return err
		}

		steps := []struct {
			query string
			args  []any
		}{
			{sqliteMergeAsChampion, []any{correctID, stamp, wrongID}},
			{`DELETE FROM matchups WHERE champion_id = ?`, []any{wrongID}},
			{sqliteMergeAsOpponent, []any{correctID, stamp, wrongID}},
			{`DELETE FROM matchups WHERE opponent_id = ?`, []any{wrongID}},
		}
		for i, st := range steps {
			r, err := tx.ExecContext(ctx, st.query, st.args...)
			if err != nil {
				return fmt.Errorf("merge %s -> %s step %d: %w", wrongID, correctID, i+1, err)
			}
			if i%2 == 0 {
				n, _ := r.RowsAffected()
				res.RowsMerged += n
			}
		}

		return sumGames(ctx, tx, correctID, &res.CorrectAfter)
	})
	return res, err
}

func sumGames(ctx context.Context, tx *sql.Tx, champion string, out *int64) error {
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(games), 0) FROM matchups WHERE champion_id = ?`, champion).Scan(out)
	if err != nil {
		return fmt.Errorf("failed to sum games for %s: %w", champion, err)
	}
	return nil
}

func (s *sqlStore) RecordRun(ctx context.Context, run RunRecord) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.ExecContext(ctx, sqliteRecordRun,
		run.ID, run.StartedAt.UTC().Format(sqliteTime), run.FinishedAt.UTC().Format(sqliteTime), run.Mode,
		run.Players, run.MissingPUUID, run.Matches, run.Duplicates, run.OtherQueue, run.Failed,
		run.MatchupRows, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *sqlStore) OpponentStats(ctx context.Context, q OpponentQuery) ([]OpponentStat, error) {
	query, args := opponentQuery(q, func(int) string { return "?" }, "")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opponents: %w", err)
	}
	defer rows.Close()

	var stats []OpponentStat
	for rows.Next() {
		var st OpponentStat
		if err := rows.Scan(&st.Opponent, &st.Wins, &st.Games); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankOpponents(stats), nil
}

func (s *sqlStore) PrimaryRoles(ctx context.Context) ([]RoleStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT champion_id, role, SUM(games) FROM matchups GROUP BY champion_id, role`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var all []RoleStat
	for rows.Next() {
		var r RoleStat
		if err := rows.Scan(&r.Champion, &r.Role, &r.Games); err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return primaryRoles(all), nil
}

func (s *sqlStore) Patches(ctx context.Context) ([]PatchStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT patch, SUM(games) FROM matchups GROUP BY patch`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches: %w", err)
	}
	defer rows.Close()

	var ps []PatchStat
	for rows.Next() {
		var p PatchStat
		if err := rows.Scan(&p.Patch, &p.Games); err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortPatches(ps), nil
}

func (s *sqlStore) ChampionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT champion_id FROM matchups UNION SELECT opponent_id FROM matchups ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query champion ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) ProcessedIDs(ctx context.Context, fn func(string) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT match_id FROM processed_matches`)
	if err != nil {
		return fmt.Errorf("failed to query processed matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqlStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM matchups), (SELECT COUNT(*) FROM processed_matches)`).
		Scan(&c.Matchups, &c.Processed)
	if err != nil {
		return c, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
