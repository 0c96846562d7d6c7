package riot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func TestLimiterMinGap(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(DefaultLimits(), WithClock(clk.Now, clk.Sleep))

	require.NoError(t, l.Wait(context.Background()))
	l.Record()
	require.NoError(t, l.Wait(context.Background()))

	assert.Equal(t, []time.Duration{70 * time.Millisecond}, clk.Slept())
}

func TestLimiterShortWindow(t *testing.T) {
	clk := newFakeClock()
	limits := DefaultLimits()
	limits.MinGap = 0
	l := NewLimiter(limits, WithClock(clk.Now, clk.Sleep))

	for i := 0; i < limits.ShortCap; i++ {
		require.NoError(t, l.Wait(context.Background()))
		l.Record()
	}
	assert.Empty(t, clk.Slept())

	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, []time.Duration{time.Second}, clk.Slept())
}

func TestLimiterChecksLongWindowFirst(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(Limits{
		ShortWindow: time.Second,
		ShortCap:    3,
		LongWindow:  10 * time.Second,
		LongCap:     5,
		Margin:      500 * time.Millisecond,
	}, WithClock(clk.Now, clk.Sleep))

	for i := 0; i < 5; i++ {
		l.Record()
	}
	require.NoError(t, l.Wait(context.Background()))

	assert.Equal(t, []time.Duration{10*time.Second + 500*time.Millisecond}, clk.Slept())
	assert.Equal(t, 0, l.Len())
}

func TestLimiterNeverExceedsQuota(t *testing.T) {
	clk := newFakeClock()
	limits := DefaultLimits()
	l := NewLimiter(limits, WithClock(clk.Now, clk.Sleep))

	var sent []time.Time
	for i := 0; i < 300; i++ {
		require.NoError(t, l.Wait(context.Background()))
		sent = append(sent, clk.Now())
		l.Record()
	}

	count := func(at time.Time, window time.Duration) int {
		n := 0
		for _, s := range sent {
			if s.After(at.Add(-window)) && !s.After(at) {
				n++
			}
		}
		return n
	}
	for _, at := range sent {
		require.LessOrEqual(t, count(at, limits.ShortWindow), limits.ShortCap)
		require.LessOrEqual(t, count(at, limits.LongWindow), limits.LongCap)
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := NewLimiter(DefaultLimits())
	l.Record()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}
