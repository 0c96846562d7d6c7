package storage

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftgap/internal/logger"
	"draftgap/internal/riot"
)

func testMatch(id string) *riot.Match {
	return &riot.Match{
		Metadata: riot.MatchMetadata{MatchID: id},
		Info: riot.MatchInfo{
			GameVersion: "15.3.1.1",
			QueueID:     420,
			Participants: []riot.Participant{
				{PUUID: "a", ChampionName: "Ahri", TeamID: 100, TeamPosition: "MIDDLE", Win: true},
				{PUUID: "b", ChampionName: "Zed", TeamID: 200, TeamPosition: "MIDDLE"},
			},
		},
	}
}

func readLines(t *testing.T, path string) []RawParticipant {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []RawParticipant
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec RawParticipant
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestArchiveRotatesByCount(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, WithMaxMatches(2), WithLogger(logger.Nop()))
	require.NoError(t, err)

	require.NoError(t, r.Archive(testMatch("NA1_1"), "gold"))
	n, _ := r.Stats()
	assert.Equal(t, 1, n)

	require.NoError(t, r.Archive(testMatch("NA1_2"), "gold"))
	require.NoError(t, r.Archive(testMatch("NA1_3"), "gold"))
	require.NoError(t, r.Close())

	warm, err := filepath.Glob(filepath.Join(dir, "warm", "*.jsonl"))
	require.NoError(t, err)
	require.Len(t, warm, 2)

	lines := readLines(t, warm[0])
	require.Len(t, lines, 4)
	assert.Equal(t, "NA1_1", lines[0].MatchID)
	assert.Equal(t, "gold", lines[0].RankTier)
	assert.Equal(t, 200, lines[1].TeamID)

	hot, err := filepath.Glob(filepath.Join(dir, "hot", "*"))
	require.NoError(t, err)
	assert.Empty(t, hot)
}

func TestArchiveRotatesByAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	r, err := NewFileRotator(dir,
		WithMaxAge(time.Minute),
		WithClock(func() time.Time { return now }),
		WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Archive(testMatch("NA1_1"), "gold"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, r.Archive(testMatch("NA1_2"), "gold"))

	warm, err := filepath.Glob(filepath.Join(dir, "warm", "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, warm, 1)
}

func TestCompressWarm(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, r.Archive(testMatch("NA1_1"), "gold"))
	require.NoError(t, r.Close())

	n, err := r.CompressWarm()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cold, err := filepath.Glob(filepath.Join(dir, "cold", "*.jsonl.gz"))
	require.NoError(t, err)
	require.Len(t, cold, 1)

	f, err := os.Open(cold[0])
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	sc := bufio.NewScanner(gz)
	count := 0
	for sc.Scan() {
		count++
	}
	assert.Equal(t, 2, count)

	warm, _ := filepath.Glob(filepath.Join(dir, "warm", "*"))
	assert.Empty(t, warm)
}
