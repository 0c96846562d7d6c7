package riot

import (
	"context"
	"sync"
	"time"

	"draftgap/internal/metrics"
)

// Limits describes the two rolling quota windows of a Riot API key.
// Caps sit below the hard limits (20/s, 100/2min) to absorb clock skew.
type Limits struct {
	ShortWindow time.Duration
	ShortCap    int
	LongWindow  time.Duration
	LongCap     int
	MinGap      time.Duration
	Margin      time.Duration
}

// DefaultLimits returns the development key limits.
func DefaultLimits() Limits {
	return Limits{
		ShortWindow: time.Second,
		ShortCap:    18,
		LongWindow:  2 * time.Minute,
		LongCap:     95,
		MinGap:      70 * time.Millisecond,
		Margin:      500 * time.Millisecond,
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter keeps the timestamps of requests that reached the network and
// schedules the next one so neither window is exceeded.
type Limiter struct {
	mu      sync.Mutex
	limits  Limits
	stamps  []time.Time
	now     func() time.Time
	sleep   SleepFunc
	metrics *metrics.Metrics
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock replaces the wall clock and sleeper, for tests.
func WithClock(now func() time.Time, sleep SleepFunc) LimiterOption {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithLimiterMetrics records quota waits.
func WithLimiterMetrics(m *metrics.Metrics) LimiterOption {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// NewLimiter creates a limiter with the given limits.
func NewLimiter(limits Limits, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		limits: limits,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a request may be sent. It loops until no window
// requires a wait; the long window is always checked first.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		window, wait := l.next()
		if wait <= 0 {
			return nil
		}
		l.metrics.ObserveWait(window, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// next purges expired stamps and returns the window that forces a wait, if any.
func (l *Limiter) next() (string, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.limits.LongWindow)
	keep := l.stamps[:0]
	for _, t := range l.stamps {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.stamps = keep

	if len(l.stamps) >= l.limits.LongCap {
		oldest := l.stamps[0]
		return "long", oldest.Add(l.limits.LongWindow).Sub(now) + l.limits.Margin
	}

	shortCutoff := now.Add(-l.limits.ShortWindow)
	recent := 0
	var firstRecent time.Time
	for _, t := range l.stamps {
		if t.After(shortCutoff) {
			if recent == 0 {
				firstRecent = t
			}
			recent++
		}
	}
	if recent >= l.limits.ShortCap {
		return "short", firstRecent.Add(l.limits.ShortWindow).Sub(now)
	}

	if n := len(l.stamps); n > 0 {
		if gap := l.stamps[n-1].Add(l.limits.MinGap).Sub(now); gap > 0 {
			return "gap", gap
		}
	}
	return "", 0
}

// Record notes that a request reached the network now.
func (l *Limiter) Record() {
	l.RecordAt(l.now())
}

// RecordAt notes a request that was sent at t.
func (l *Limiter) RecordAt(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = append(l.stamps, t)
}

// Len returns the number of requests inside the long window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stamps)
}
