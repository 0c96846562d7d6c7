package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftgap/internal/catalog"
	"draftgap/internal/logger"
	"draftgap/internal/matchup"
	"draftgap/internal/riot"
	"draftgap/internal/store"
)

type fakeAPI struct {
	pages     map[int][]riot.LeagueEntry
	leagueErr error
	apex      map[string]*riot.LeagueList
	apexErr   map[string]error
	history   map[string][]string
	matches   map[string]*riot.Match
	matchErr  map[string]error

	matchCalls map[string]int
}

func (f *fakeAPI) LeagueEntries(_ context.Context, tier, division string, page int) ([]riot.LeagueEntry, error) {
	if f.leagueErr != nil {
		return nil, f.leagueErr
	}
	return f.pages[page], nil
}

func (f *fakeAPI) ApexLeague(_ context.Context, tier string) (*riot.LeagueList, error) {
	if err := f.apexErr[tier]; err != nil {
		return nil, err
	}
	return f.apex[tier], nil
}

func (f *fakeAPI) MatchIDs(_ context.Context, puuid string, count int) ([]string, error) {
	ids := f.history[puuid]
	if len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

func (f *fakeAPI) Match(_ context.Context, id string) (*riot.Match, error) {
	if f.matchCalls == nil {
		f.matchCalls = make(map[string]int)
	}
	f.matchCalls[id]++
	if err := f.matchErr[id]; err != nil {
		return nil, err
	}
	return f.matches[id], nil
}

type recordingArchive struct{ ids []string }

func (r *recordingArchive) Archive(m *riot.Match, _ string) error {
	r.ids = append(r.ids, m.Metadata.MatchID)
	return nil
}

func p(champ string, team int, pos string, win bool) riot.Participant {
	return riot.Participant{ChampionName: champ, TeamID: team, TeamPosition: pos, Win: win}
}

func match(id string, queue int, ps ...riot.Participant) *riot.Match {
	return &riot.Match{
		Metadata: riot.MatchMetadata{MatchID: id},
		Info:     riot.MatchInfo{GameVersion: "15.3.123.456", QueueID: queue, Participants: ps},
	}
}

func fullLanes(id string) *riot.Match {
	return match(id, riot.RankedSoloQueue,
		p("Darius", 100, "TOP", true), p("Garen", 200, "TOP", false),
		p("LeeSin", 100, "JUNGLE", true), p("Vi", 200, "JUNGLE", false),
		p("Ahri", 100, "MIDDLE", true), p("Zed", 200, "MIDDLE", false),
		p("Jinx", 100, "BOTTOM", true), p("Caitlyn", 200, "BOTTOM", false),
		p("Thresh", 100, "UTILITY", true), p("Lulu", 200, "UTILITY", false),
	)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ladderAPI() *fakeAPI {
	return &fakeAPI{
		pages: map[int][]riot.LeagueEntry{
			1: {
				{PUUID: "p1", SummonerID: "summoner-one", Tier: "GOLD", Rank: "I"},
				{PUUID: "p2", Tier: "GOLD", Rank: "I"},
				{PUUID: "", Tier: "GOLD", Rank: "I"},
			},
		},
		history: map[string][]string{
			"p1": {"NA1_1", "NA1_2"},
			"p2": {"NA1_2", "NA1_3"},
		},
		matches: map[string]*riot.Match{
			"NA1_1": fullLanes("NA1_1"),
			"NA1_2": match("NA1_2", riot.RankedSoloQueue,
				p("KaiSa", 100, "BOTTOM", false), p("Jinx", 200, "BOTTOM", true)),
			"NA1_3": match("NA1_3", 440, p("Ahri", 100, "MIDDLE", true), p("Zed", 200, "MIDDLE", false)),
		},
	}
}

func TestRunFoldsRankedMatches(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	api := ladderAPI()
	archive := &recordingArchive{}

	c := New(api, st, Config{Tier: "gold", Division: "i", Pages: 3},
		WithNormalizer(catalog.NewNormalizer([]string{"Kaisa", "Jinx"})),
		WithArchive(archive),
		WithLogger(logger.Nop()))

	sum, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Players)
	assert.Equal(t, 1, sum.MissingPUUID)
	assert.Equal(t, 2, sum.Matches)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.OtherQueue)
	assert.Equal(t, 12, sum.MatchupRows)
	assert.Equal(t, store.Counts{Matchups: 12, Processed: 3}, sum.Store)
	assert.Equal(t, 1, api.matchCalls["NA1_2"], "duplicate is not refetched")
	assert.Equal(t, []string{"NA1_1", "NA1_2"}, archive.ids)

	ok, err := st.IsProcessed(ctx, "NA1_3")
	require.NoError(t, err)
	assert.True(t, ok, "other queues are marked processed")

	stats, err := st.OpponentStats(ctx, store.OpponentQuery{Champion: "Jinx", Role: matchup.Bottom, MinGames: 1})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Kaisa", stats[0].Opponent)

	stats, err = st.OpponentStats(ctx, store.OpponentQuery{
		Champion: "Ahri", Role: matchup.Mid, Tiers: []string{"gold"}, Patch: "15.3", MinGames: 1,
	})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1.0, stats[0].WinRate)
}

func TestRepeatedRunAddsNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first, err := New(ladderAPI(), st, Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)

	api := ladderAPI()
	second, err := New(api, st, Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Matches)
	assert.Equal(t, 0, second.MatchupRows)
	assert.Equal(t, 4, second.Duplicates)
	assert.Empty(t, api.matchCalls)
	assert.Equal(t, first.Store, second.Store)
}

func TestRunNoPlayers(t *testing.T) {
	sum, err := New(&fakeAPI{}, newStore(t), Config{}, WithLogger(logger.Nop())).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoPlayers)
	require.NotNil(t, sum)
	assert.Equal(t, 0, sum.Players)
}

func TestRunAbortsOnRejectedKey(t *testing.T) {
	rejected := fmt.Errorf("league: %w", riot.ErrUnauthorized)

	_, err := New(&fakeAPI{leagueErr: rejected}, newStore(t), Config{}, WithLogger(logger.Nop())).
		Run(context.Background())
	assert.ErrorIs(t, err, riot.ErrUnauthorized)

	api := ladderAPI()
	api.matchErr = map[string]error{"NA1_1": &riot.StatusError{Code: 403, URL: "x"}}
	sum, err := New(api, newStore(t), Config{}, WithLogger(logger.Nop())).Run(context.Background())
	assert.ErrorIs(t, err, riot.ErrUnauthorized)
	assert.Equal(t, 0, sum.Matches)
	assert.Zero(t, api.matchCalls["NA1_2"])
}

func TestRunSkipsFailedMatches(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	api := ladderAPI()
	api.matchErr = map[string]error{"NA1_1": &riot.RetryError{URL: "x", Attempts: 3, Err: errors.New("boom")}}
	delete(api.matches, "NA1_3")

	sum, err := New(api, st, Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.NotFound)
	assert.Equal(t, 1, sum.Matches)

	for _, id := range []string{"NA1_1", "NA1_3"} {
		ok, err := st.IsProcessed(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestRunApexMergesListings(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	api := &fakeAPI{
		apex: map[string]*riot.LeagueList{
			"CHALLENGER":  {Tier: "CHALLENGER", Entries: []riot.LeagueEntry{{PUUID: "c1", Tier: "CHALLENGER"}}},
			"GRANDMASTER": {Tier: "GRANDMASTER", Entries: []riot.LeagueEntry{{PUUID: "c1", Tier: "GRANDMASTER"}, {PUUID: "g1", Tier: "GRANDMASTER"}}},
		},
		apexErr: map[string]error{"MASTER": errors.New("timeout")},
		history: map[string][]string{"g1": {"KR_1"}},
		matches: map[string]*riot.Match{"KR_1": fullLanes("KR_1")},
	}

	sum, err := New(api, st, Config{Apex: true}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Players)
	assert.Equal(t, "apex", sum.Mode)

	stats, err := st.OpponentStats(ctx, store.OpponentQuery{
		Champion: "Darius", Role: matchup.Top, Tiers: []string{"grandmaster"}, MinGames: 1,
	})
	require.NoError(t, err)
	assert.Len(t, stats, 1)
}

// ctxAPI fails every call once ctx is done, like the real client.
type ctxAPI struct{ *fakeAPI }

func (c ctxAPI) LeagueEntries(ctx context.Context, tier, division string, page int) ([]riot.LeagueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeAPI.LeagueEntries(ctx, tier, division, page)
}

func (c ctxAPI) ApexLeague(ctx context.Context, tier string) (*riot.LeagueList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeAPI.ApexLeague(ctx, tier)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := ladderAPI()
	sum, err := New(api, newStore(t), Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Empty(t, api.matchCalls)
}

func TestRunCancelledDuringEnumeration(t *testing.T) {
	for _, apex := range []bool{false, true} {
		t.Run(fmt.Sprintf("apex=%v", apex), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			api := ctxAPI{ladderAPI()}
			sum, err := New(api, newStore(t), Config{Apex: apex}, WithLogger(logger.Nop())).Run(ctx)
			require.NoError(t, err)
			assert.True(t, sum.Interrupted)
			assert.Zero(t, sum.Players)
		})
	}
}

// staleStore answers every processed check with "no", as a concurrent run
// or a cold prefilter would before the other run commits.
type staleStore struct{ store.Store }

func (s staleStore) IsProcessed(context.Context, string) (bool, error) { return false, nil }

func (s staleStore) ProcessedIDs(context.Context, func(string) error) error {
	return errors.New("prefilter unavailable")
}

func TestOverlappingRunDoesNotRecount(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	_, err := New(ladderAPI(), st, Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)

	sum, err := New(ladderAPI(), staleStore{st}, Config{}, WithLogger(logger.Nop())).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Matches)
	assert.Zero(t, sum.MatchupRows)
	assert.Equal(t, 3, sum.Duplicates)

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Matchups: 12, Processed: 3}, counts)

	stats, err := st.OpponentStats(ctx, store.OpponentQuery{Champion: "Ahri", Role: matchup.Mid, MinGames: 1})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Games)
}

func TestSummaryPrint(t *testing.T) {
	sum := &Summary{Mode: "GOLD I p1-1", Players: 200, Matches: 42, MatchupRows: 420}
	sum.Store = store.Counts{Matchups: 1000, Processed: 77}

	var buf bytes.Buffer
	sum.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "Matches processed")
	assert.Contains(t, out, "420")
	assert.Contains(t, out, "Database: 1000 matchup rows, 77 processed matches")
}
