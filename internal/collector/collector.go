// Package collector runs one batch collection: enumerate ranked players, fetch
// their recent matches, and fold each new ranked solo match into the store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"draftgap/internal/catalog"
	"draftgap/internal/logger"
	"draftgap/internal/matchup"
	"draftgap/internal/metrics"
	"draftgap/internal/riot"
	"draftgap/internal/store"
)

// ErrNoPlayers is returned when enumeration finds nobody, which usually
// means the API key is invalid or expired.
var ErrNoPlayers = errors.New("no players found")

const (
	DefaultTier             = "GOLD"
	DefaultDivision         = "I"
	DefaultMatchesPerPlayer = 5
)

// API is the subset of the Riot client the collector uses.
type API interface {
	LeagueEntries(ctx context.Context, tier, division string, page int) ([]riot.LeagueEntry, error)
	ApexLeague(ctx context.Context, tier string) (*riot.LeagueList, error)
	MatchIDs(ctx context.Context, puuid string, count int) ([]string, error)
	Match(ctx context.Context, matchID string) (*riot.Match, error)
}

// Archiver receives every fetched ranked match.
type Archiver interface {
	Archive(m *riot.Match, rankTier string) error
}

// Config selects which players a run enumerates.
type Config struct {
	Tier             string
	Division         string
	StartPage        int
	Pages            int
	MatchesPerPlayer int
	Apex             bool
}

func (c Config) withDefaults() Config {
	if c.Tier == "" {
		c.Tier = DefaultTier
	}
	if c.Division == "" {
		c.Division = DefaultDivision
	}
	c.Tier = strings.ToUpper(c.Tier)
	c.Division = strings.ToUpper(c.Division)
	if c.StartPage < 1 {
		c.StartPage = 1
	}
	if c.Pages < 1 {
		c.Pages = 1
	}
	if c.MatchesPerPlayer < 1 {
		c.MatchesPerPlayer = DefaultMatchesPerPlayer
	}
	return c
}

// Mode describes the enumeration, e.g. "GOLD I p1-2" or "apex".
func (c Config) Mode() string {
	if c.Apex {
		return "apex"
	}
	return fmt.Sprintf("%s %s p%d-%d", c.Tier, c.Division, c.StartPage, c.StartPage+c.Pages-1)
}

// Collector drives one run at a time.
type Collector struct {
	api   API
	store store.Store
	cfg   Config

	norm    *catalog.Normalizer
	archive Archiver
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithNormalizer maps champion names onto catalog ids.
func WithNormalizer(n *catalog.Normalizer) Option {
	return func(c *Collector) { c.norm = n }
}

// WithArchive copies every ranked match to a raw archive.
func WithArchive(a Archiver) Option {
	return func(c *Collector) { c.archive = a }
}

// WithMetrics records run progress.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithLogger sets the collector logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) { c.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a collector over api and st.
func New(api API, st store.Store, cfg Config, opts ...Option) *Collector {
	c := &Collector{
		api:   api,
		store: st,
		cfg:   cfg.withDefaults(),
		log:   logger.Named("collector"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// player is an enumerated ladder entry with the tier its matches are filed under.
type player struct {
	puuid    string
	label    string
	rankTier string
}

// Run executes one collection. Only ErrNoPlayers and riot.ErrUnauthorized are
// returned; every other failure is logged and the item skipped. Cancelling ctx
// stops the run between matches and still returns the summary.
func (c *Collector) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.New().String(),
		Mode:      c.cfg.Mode(),
		StartedAt: c.now(),
	}
	log := c.log.With(logger.String("run", sum.RunID))
	log.Info(ctx, "collection started", logger.String("mode", sum.Mode))
	c.metrics.RunStarted()

	seen := newDedup(c.store)
	if n, err := seen.Warm(ctx); err != nil {
		log.Warn(ctx, "dedup prefilter disabled", logger.Err(err))
	} else {
		log.Debug(ctx, "dedup prefilter warmed", logger.Int("matches", n))
	}

	players, missing, err := c.enumerate(ctx, log)
	sum.MissingPUUID = missing
	sum.Players = len(players) + missing
	c.metrics.SetPlayers(sum.Players)
	if err != nil {
		return c.finish(ctx, log, sum, err)
	}
	// An interrupt during enumeration is not an empty ladder.
	if ctx.Err() != nil {
		return c.finish(ctx, log, sum, nil)
	}
	if sum.Players == 0 {
		return c.finish(ctx, log, sum, ErrNoPlayers)
	}
	log.Info(ctx, "players enumerated",
		logger.Int("players", sum.Players),
		logger.Int("missing_puuid", missing))

	for i, p := range players {
		if ctx.Err() != nil {
			break
		}
		rows, err := c.collectPlayer(ctx, log, seen, p, sum)
		if errors.Is(err, riot.ErrUnauthorized) {
			return c.finish(ctx, log, sum, err)
		}
		if rows > 0 {
			log.Info(ctx, "player done",
				logger.String("progress", fmt.Sprintf("%d/%d", i+1, len(players))),
				logger.String("player", p.label),
				logger.Int("matchups", rows))
		}
	}

	return c.finish(ctx, log, sum, nil)
}

// enumerate lists players with a puuid, deduplicated by puuid, and counts
// entries that had none.
func (c *Collector) enumerate(ctx context.Context, log logger.Logger) ([]player, int, error) {
	var (
		players []player
		missing int
	)
	seen := make(map[string]bool)
	add := func(entries []riot.LeagueEntry, fallbackTier string) {
		for _, e := range entries {
			if e.PUUID == "" {
				missing++
				continue
			}
			if seen[e.PUUID] {
				continue
			}
			seen[e.PUUID] = true
			tier := e.Tier
			if tier == "" {
				tier = fallbackTier
			}
			label := e.SummonerID
			if label == "" {
				label = e.PUUID
			}
			if len(label) > 8 {
				label = label[:8]
			}
			players = append(players, player{puuid: e.PUUID, label: label, rankTier: strings.ToLower(tier)})
		}
	}

	if c.cfg.Apex {
		for _, tier := range riot.ApexTiers {
			list, err := c.api.ApexLeague(ctx, tier)
			if errors.Is(err, riot.ErrUnauthorized) {
				return nil, missing, err
			}
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				log.Warn(ctx, "apex listing failed", logger.String("tier", tier), logger.Err(err))
				continue
			}
			if list == nil {
				continue
			}
			log.Info(ctx, "apex listing", logger.String("tier", tier), logger.Int("players", len(list.Entries)))
			add(list.Entries, list.Tier)
		}
		return players, missing, nil
	}

	for page := c.cfg.StartPage; page < c.cfg.StartPage+c.cfg.Pages; page++ {
		entries, err := c.api.LeagueEntries(ctx, c.cfg.Tier, c.cfg.Division, page)
		if errors.Is(err, riot.ErrUnauthorized) {
			return nil, missing, err
		}
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			log.Warn(ctx, "league page failed", logger.Int("page", page), logger.Err(err))
			break
		}
		log.Info(ctx, "league page", logger.Int("page", page), logger.Int("players", len(entries)))
		if len(entries) == 0 {
			break
		}
		add(entries, c.cfg.Tier)
	}
	return players, missing, nil
}

// collectPlayer processes the recent matches of one player and returns the
// number of matchup rows written.
func (c *Collector) collectPlayer(ctx context.Context, log logger.Logger, seen *dedup, p player, sum *Summary) (int, error) {
	ids, err := c.api.MatchIDs(ctx, p.puuid, c.cfg.MatchesPerPlayer)
	if err != nil {
		if errors.Is(err, riot.ErrUnauthorized) || ctx.Err() != nil {
			return 0, err
		}
		log.Warn(ctx, "match history failed", logger.String("player", p.label), logger.Err(err))
		return 0, nil
	}

	rows := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return rows, ctx.Err()
		}
		n, err := c.collectMatch(ctx, log, seen, id, p.rankTier, sum)
		if err != nil {
			return rows, err
		}
		rows += n
	}
	return rows, nil
}

// collectMatch handles one match id. It returns an error only for a rejected key.
func (c *Collector) collectMatch(ctx context.Context, log logger.Logger, seen *dedup, matchID, rankTier string, sum *Summary) (int, error) {
	dup, err := seen.Seen(ctx, matchID)
	if err != nil {
		sum.Failed++
		c.metrics.IncMatch(metrics.OutcomeFailed)
		log.Warn(ctx, "processed check failed", logger.String("match", matchID), logger.Err(err))
		return 0, nil
	}
	if dup {
		sum.Duplicates++
		c.metrics.IncMatch(metrics.OutcomeDuplicate)
		return 0, nil
	}

	m, err := c.api.Match(ctx, matchID)
	if err != nil {
		if errors.Is(err, riot.ErrUnauthorized) {
			return 0, err
		}
		if ctx.Err() == nil {
			sum.Failed++
			c.metrics.IncMatch(metrics.OutcomeFailed)
			log.Warn(ctx, "match fetch failed", logger.String("match", matchID), logger.Err(err))
		}
		return 0, nil
	}
	if m == nil {
		sum.NotFound++
		c.metrics.IncMatch(metrics.OutcomeNotFound)
		return 0, nil
	}

	if m.Info.QueueID != riot.RankedSoloQueue {
		if err := c.store.MarkProcessed(ctx, matchID); err != nil {
			sum.Failed++
			log.Warn(ctx, "mark processed failed", logger.String("match", matchID), logger.Err(err))
			return 0, nil
		}
		seen.Add(matchID)
		sum.OtherQueue++
		c.metrics.IncMatch(metrics.OutcomeOtherQueue)
		return 0, nil
	}

	obs := c.observations(m, rankTier)
	applied, err := c.store.ApplyMatch(ctx, matchID, obs)
	if err != nil {
		sum.Failed++
		c.metrics.IncMatch(metrics.OutcomeFailed)
		log.Warn(ctx, "apply match failed", logger.String("match", matchID), logger.Err(err))
		return 0, nil
	}
	seen.Add(matchID)
	if !applied {
		// Another run marked it between the check and the write.
		sum.Duplicates++
		c.metrics.IncMatch(metrics.OutcomeDuplicate)
		return 0, nil
	}
	sum.Matches++
	sum.MatchupRows += len(obs)
	c.metrics.IncMatch(metrics.OutcomeProcessed)
	c.metrics.AddMatchupRows(len(obs))

	if c.archive != nil {
		if err := c.archive.Archive(m, rankTier); err != nil {
			log.Warn(ctx, "archive failed", logger.String("match", matchID), logger.Err(err))
		}
	}
	return len(obs), nil
}

// observations converts a ranked match into keyed deltas.
func (c *Collector) observations(m *riot.Match, rankTier string) []store.Observation {
	patch := matchup.PatchFromVersion(m.Info.GameVersion)
	pairs := matchup.Extract(m.Info.Participants)

	obs := make([]store.Observation, 0, len(pairs))
	for _, mu := range pairs {
		wins := 0
		if mu.Won {
			wins = 1
		}
		obs = append(obs, store.Observation{
			Key: store.Key{
				Champion: c.norm.Normalize(mu.Champion),
				Opponent: c.norm.Normalize(mu.Opponent),
				Role:     mu.Role,
				RankTier: rankTier,
				Patch:    patch,
			},
			Delta: store.Delta{Wins: wins, Games: 1},
		})
	}
	return obs
}

// finish stamps the summary, records the run and returns runErr.
func (c *Collector) finish(ctx context.Context, log logger.Logger, sum *Summary, runErr error) (*Summary, error) {
	sum.Interrupted = ctx.Err() != nil
	sum.FinishedAt = c.now()
	sum.Elapsed = sum.FinishedAt.Sub(sum.StartedAt)

	// The run may have been cancelled; bookkeeping still goes through.
	bg := context.WithoutCancel(ctx)
	if counts, err := c.store.Counts(bg); err == nil {
		sum.Store = counts
	} else {
		log.Warn(ctx, "store counts failed", logger.Err(err))
	}

	rec := sum.Record()
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := c.store.RecordRun(bg, rec); err != nil {
		log.Warn(ctx, "record run failed", logger.Err(err))
	}
	c.metrics.RunFinished(sum.FinishedAt, sum.Elapsed)

	if runErr != nil {
		log.Error(ctx, "collection aborted", logger.Err(runErr))
		return sum, runErr
	}
	log.Info(ctx, "collection finished",
		logger.Int("matches", sum.Matches),
		logger.Int("duplicates", sum.Duplicates),
		logger.Int("matchup_rows", sum.MatchupRows),
		logger.Duration("elapsed", sum.Elapsed),
		logger.Bool("interrupted", sum.Interrupted))
	return sum, nil
}
