// Package storage archives raw match data as rotating JSONL files.
//
// Files are written under hot/, moved to warm/ when they reach
// MaxMatchesPerFile or MaxFileAge, and can be gzipped into cold/.
package storage

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"draftgap/internal/logger"
	"draftgap/internal/riot"
)

const (
	// Rotation triggers
	MaxMatchesPerFile = 1000
	MaxFileAge        = 1 * time.Hour
)

// FileRotator handles writing matches to rotating JSONL files
type FileRotator struct {
	mu sync.Mutex

	hotDir  string // Active writes
	warmDir string // Closed files awaiting compression
	coldDir string // Compressed archives

	maxMatches int
	maxAge     time.Duration
	now        func() time.Time
	log        logger.Logger

	currentFile   *os.File
	currentWriter *bufio.Writer
	currentPath   string
	matchCount    int
	fileOpenedAt  time.Time
	seq           int
}

// Option configures a FileRotator.
type Option func(*FileRotator)

// WithMaxMatches overrides MaxMatchesPerFile.
func WithMaxMatches(n int) Option {
	return func(r *FileRotator) {
		if n > 0 {
			r.maxMatches = n
		}
	}
}

// WithMaxAge overrides MaxFileAge.
func WithMaxAge(d time.Duration) Option {
	return func(r *FileRotator) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithClock replaces the clock used for file names and age checks.
func WithClock(now func() time.Time) Option {
	return func(r *FileRotator) { r.now = now }
}

// WithLogger sets the rotator logger.
func WithLogger(l logger.Logger) Option {
	return func(r *FileRotator) { r.log = l }
}

// NewFileRotator creates a new rotator with the given base directory
func NewFileRotator(baseDir string, opts ...Option) (*FileRotator, error) {
	r := &FileRotator{
		hotDir:     filepath.Join(baseDir, "hot"),
		warmDir:    filepath.Join(baseDir, "warm"),
		coldDir:    filepath.Join(baseDir, "cold"),
		maxMatches: MaxMatchesPerFile,
		maxAge:     MaxFileAge,
		now:        time.Now,
		log:        logger.Named("archive"),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, dir := range []string{r.hotDir, r.warmDir, r.coldDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Archive writes every participant of m as one line and completes the match.
func (r *FileRotator) Archive(m *riot.Match, rankTier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range m.Info.Participants {
		rec := RawParticipant{
			MatchID:      m.Metadata.MatchID,
			GameVersion:  m.Info.GameVersion,
			QueueID:      m.Info.QueueID,
			GameDuration: m.Info.GameDuration,
			GameCreation: m.Info.GameCreation,
			RankTier:     rankTier,
			PUUID:        p.PUUID,
			ChampionID:   p.ChampionID,
			ChampionName: p.ChampionName,
			TeamID:       p.TeamID,
			TeamPosition: p.TeamPosition,
			Win:          p.Win,
		}
		if err := r.writeLine(rec); err != nil {
			return err
		}
	}
	return r.matchComplete()
}

func (r *FileRotator) writeLine(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := r.currentWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := r.currentWriter.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// matchComplete counts a match, flushes, and rotates when a trigger fires.
func (r *FileRotator) matchComplete() error {
	r.matchCount++

	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if r.shouldRotate() {
		return r.rotate()
	}
	return nil
}

func (r *FileRotator) shouldRotate() bool {
	if r.currentFile == nil {
		return true
	}
	if r.matchCount >= r.maxMatches {
		return true
	}
	return r.now().Sub(r.fileOpenedAt) >= r.maxAge
}

// rotate closes the current file into warm/ and opens a new one. Caller holds mu.
func (r *FileRotator) rotate() error {
	if err := r.closeCurrent(); err != nil {
		return err
	}

	r.seq++
	filename := fmt.Sprintf("raw_matches_%s_%04d.jsonl", r.now().Format("2006-01-02_15-04-05"), r.seq)
	r.currentPath = filepath.Join(r.hotDir, filename)

	file, err := os.Create(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	r.currentFile = file
	r.currentWriter = bufio.NewWriterSize(file, 64*1024)
	r.matchCount = 0
	r.fileOpenedAt = r.now()
	return nil
}

// closeCurrent flushes and closes the open file, moving it to warm/ when it
// holds data and removing it otherwise.
func (r *FileRotator) closeCurrent() error {
	if r.currentFile == nil {
		return nil
	}
	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := r.currentFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	r.currentFile = nil

	if r.matchCount == 0 {
		_ = os.Remove(r.currentPath)
		return nil
	}

	warmPath := filepath.Join(r.warmDir, filepath.Base(r.currentPath))
	if err := os.Rename(r.currentPath, warmPath); err != nil {
		return fmt.Errorf("failed to move to warm storage: %w", err)
	}
	r.log.Debug(context.Background(), "moved to warm storage",
		logger.String("file", filepath.Base(r.currentPath)),
		logger.Int("matches", r.matchCount))
	return nil
}

// Close flushes and closes the current file
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCurrent()
}

// Stats returns current rotator statistics
func (r *FileRotator) Stats() (matchesInCurrentFile int, currentFileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchCount, filepath.Base(r.currentPath)
}

// CompressWarm gzips every warm file into cold/ and returns the number compressed.
func (r *FileRotator) CompressWarm() (int, error) {
	r.mu.Lock()
	warmDir, coldDir := r.warmDir, r.coldDir
	r.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(warmDir, "*.jsonl"))
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := CompressToCold(p, coldDir); err != nil {
			return i, fmt.Errorf("failed to compress %s: %w", filepath.Base(p), err)
		}
	}
	return len(paths), nil
}

// CompressToCold compresses a warm file and moves it to cold storage
func CompressToCold(warmPath, coldDir string) error {
	src, err := os.Open(warmPath)
	if err != nil {
		return err
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(warmPath)+".gz")
	dst, err := os.Create(coldPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gzWriter := gzip.NewWriter(dst)
	if _, err := io.Copy(gzWriter, src); err != nil {
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	return os.Remove(warmPath)
}
