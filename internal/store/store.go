// Package store persists matchup aggregates and the processed match set.
//
// Three backends share one contract: SQLite (modernc.org/sqlite), Turso over
// libsql, and PostgreSQL through pgxpool. Aggregation is additive: every write
// adds wins and games to the row for its key, so the order in which matches
// are applied never changes the result.
package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"draftgap/internal/matchup"
)

var (
	// ErrReadOnly is returned by every write on a store opened read-only.
	ErrReadOnly = errors.New("store: opened read-only")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// DefaultMinGames is the sample size below which an opponent is not reported.
const DefaultMinGames = 10

// NoMinGames as OpponentQuery.MinGames reports every opponent.
const NoMinGames = -1

// Key identifies one aggregate row.
type Key struct {
	Champion string
	Opponent string
	Role     matchup.Role
	RankTier string
	Patch    string
}

// Delta is added to the row of a Key.
type Delta struct {
	Wins  int
	Games int
}

// Observation is one keyed delta produced from a match.
type Observation struct {
	Key   Key
	Delta Delta
}

// MergeResult describes an identity merge.
type MergeResult struct {
	From          string
	To            string
	WrongGames    int64 // games stored under From as champion, before the merge
	CorrectBefore int64
	CorrectAfter  int64
	RowsMerged    int64
}

// RunRecord is the bookkeeping row of one collection run.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Mode         string
	Players      int
	MissingPUUID int
	Matches      int
	Duplicates   int
	OtherQueue   int
	Failed       int
	MatchupRows  int
	Error        string
}

// OpponentQuery selects the opponents of one champion in one role.
type OpponentQuery struct {
	Champion string
	Role     matchup.Role
	Tiers    []string // nil means every tier
	Patch    string   // empty means every patch
	Pool     []string // restricts opponents when non-empty
	MinGames int      // zero means DefaultMinGames, negative means no threshold
}

// OpponentStat is the summed record against one opponent.
type OpponentStat struct {
	Opponent string  `json:"opponent"`
	Wins     int64   `json:"wins"`
	Games    int64   `json:"games"`
	WinRate  float64 `json:"winRate"`
}

// RoleStat is the most played role of a champion.
type RoleStat struct {
	Champion string       `json:"champion"`
	Role     matchup.Role `json:"role"`
	Games    int64        `json:"games"`
}

// PatchStat is a patch and its total games.
type PatchStat struct {
	Patch string `json:"patch"`
	Games int64  `json:"games"`
}

// Counts sizes the two main tables.
type Counts struct {
	Matchups  int64
	Processed int64
}

// Store is the aggregate store contract.
type Store interface {
	IsProcessed(ctx context.Context, matchID string) (bool, error)
	MarkProcessed(ctx context.Context, matchID string) error
	Upsert(ctx context.Context, key Key, delta Delta) error
	// ApplyMatch marks a match processed and writes its observations in one
	// transaction. applied is false when the match was already processed, in
	// which case nothing is written.
	ApplyMatch(ctx context.Context, matchID string, obs []Observation) (applied bool, err error)
	// MergeIdentity folds every row of wrongID into correctID, as champion
	// and as opponent, in one transaction.
	MergeIdentity(ctx context.Context, wrongID, correctID string) (MergeResult, error)
	RecordRun(ctx context.Context, run RunRecord) error

	OpponentStats(ctx context.Context, q OpponentQuery) ([]OpponentStat, error)
	PrimaryRoles(ctx context.Context) ([]RoleStat, error)
	Patches(ctx context.Context) ([]PatchStat, error)
	ChampionIDs(ctx context.Context) ([]string, error)
	ProcessedIDs(ctx context.Context, fn func(matchID string) error) error
	Counts(ctx context.Context) (Counts, error)

	Close() error
}

func (q OpponentQuery) minGames() int {
	switch {
	case q.MinGames < 0:
		return 0
	case q.MinGames == 0:
		return DefaultMinGames
	}
	return q.MinGames
}

// winRate is wins/games rounded to four places.
func winRate(wins, games int64) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(games)*1e4) / 1e4
}

// rankOpponents fills win rates and orders by win rate desc, games desc, opponent asc.
func rankOpponents(stats []OpponentStat) []OpponentStat {
	for i := range stats {
		stats[i].WinRate = winRate(stats[i].Wins, stats[i].Games)
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		if a.Games != b.Games {
			return a.Games > b.Games
		}
		return a.Opponent < b.Opponent
	})
	return stats
}

// primaryRoles keeps the most played role per champion, ties going to the
// earlier role in canonical order.
func primaryRoles(rows []RoleStat) []RoleStat {
	best := make(map[string]RoleStat)
	for _, r := range rows {
		cur, ok := best[r.Champion]
		if !ok || r.Games > cur.Games || (r.Games == cur.Games && r.Role.Index() < cur.Role.Index()) {
			best[r.Champion] = r
		}
	}
	out := make([]RoleStat, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Champion < out[j].Champion })
	return out
}

// sortPatches orders patches newest first by numeric major and minor.
func sortPatches(ps []PatchStat) []PatchStat {
	sort.Slice(ps, func(i, j int) bool {
		return matchup.ComparePatches(ps[i].Patch, ps[j].Patch) > 0
	})
	return ps
}

// builder accumulates a query and its positional arguments.
type builder struct {
	sb          strings.Builder
	args        []any
	placeholder func(n int) string
}

func (b *builder) write(s string) { b.sb.WriteString(s) }

// arg appends v and returns its placeholder.
func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

// in writes "col IN (...)" for vals.
func (b *builder) in(col string, vals []string) {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = b.arg(v)
	}
	b.write(col + " IN (" + strings.Join(ph, ", ") + ")")
}

// opponentQuery builds the grouped opponent lookup shared by all backends.
func opponentQuery(q OpponentQuery, placeholder func(int) string, cast string) (string, []any) {
	b := &builder{placeholder: placeholder}
	b.write("SELECT opponent_id, SUM(wins)" + cast + ", SUM(games)" + cast + " FROM matchups WHERE champion_id = ")
	b.write(b.arg(q.Champion))
	b.write(" AND role = ")
	b.write(b.arg(string(q.Role)))
	if len(q.Tiers) > 0 {
		b.write(" AND ")
		b.in("rank_tier", q.Tiers)
	}
	if q.Patch != "" {
		b.write(" AND patch = ")
		b.write(b.arg(q.Patch))
	}
	if len(q.Pool) > 0 {
		b.write(" AND ")
		b.in("opponent_id", q.Pool)
	}
	b.write(" GROUP BY opponent_id HAVING SUM(games) >= ")
	b.write(b.arg(q.minGames()))
	return b.sb.String(), b.args
}
