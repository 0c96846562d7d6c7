package collector

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"

	"draftgap/internal/store"
)

const (
	minBloomCapacity = 100_000
	bloomFPRate      = 0.001
)

// dedup answers "was this match processed?" with a bloom filter in front of
// the store. A negative filter answer is final; a positive one is confirmed
// against the store because the filter can report false positives.
type dedup struct {
	store  store.Store
	filter *bloom.BloomFilter
	warm   bool
}

func newDedup(st store.Store) *dedup {
	return &dedup{
		store:  st,
		filter: bloom.NewWithEstimates(minBloomCapacity, bloomFPRate),
	}
}

// Warm loads every processed match id into the filter.
func (d *dedup) Warm(ctx context.Context) (int, error) {
	counts, err := d.store.Counts(ctx)
	if err != nil {
		return 0, err
	}
	capacity := uint(2 * counts.Processed)
	if capacity < minBloomCapacity {
		capacity = minBloomCapacity
	}
	d.filter = bloom.NewWithEstimates(capacity, bloomFPRate)

	n := 0
	err = d.store.ProcessedIDs(ctx, func(id string) error {
		d.filter.AddString(id)
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("failed to warm dedup filter: %w", err)
	}
	d.warm = true
	return n, nil
}

// Seen reports whether matchID is already processed.
func (d *dedup) Seen(ctx context.Context, matchID string) (bool, error) {
	if d.warm && !d.filter.TestString(matchID) {
		return false, nil
	}
	return d.store.IsProcessed(ctx, matchID)
}

// Add records matchID after it was marked processed.
func (d *dedup) Add(matchID string) {
	d.filter.AddString(matchID)
}
