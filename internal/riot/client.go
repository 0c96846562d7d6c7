package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"draftgap/internal/logger"
	"draftgap/internal/metrics"
)

const (
	// DefaultMaxRetries is the attempt budget for one request.
	DefaultMaxRetries = 3
	// DefaultMaxRateLimitRetries bounds 429 retries, which do not use the attempt budget.
	DefaultMaxRateLimitRetries = 10

	fallbackRetryAfter = 10 * time.Second
	statusBackoff      = 2 * time.Second
	networkBackoff     = 3 * time.Second
)

var (
	// ErrUnauthorized is returned when the API rejects the key (401/403).
	ErrUnauthorized = errors.New("riot: api key rejected")
	// ErrMissingKey is returned when no API key is configured.
	ErrMissingKey = errors.New("riot: api key not set")
)

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("riot: %s returned status %d", e.URL, e.Code)
}

// Unwrap maps 401/403 to ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// RetryError reports a request that failed every attempt.
type RetryError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("riot: %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// HostURL turns a platform (na1, euw1) or routing (americas, europe) host into a base URL.
func HostURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "https://" + host + ".api.riotgames.com"
}

// Client is a rate-limited Riot API client
type Client struct {
	apiKey     string
	httpClient *http.Client

	platformURL string
	regionalURL string

	limiter *Limiter
	now     func() time.Time
	sleep   SleepFunc

	maxRateLimitRetries int

	log     logger.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPlatform sets the platform host used by league endpoints.
func WithPlatform(host string) Option {
	return func(c *Client) { c.platformURL = HostURL(host) }
}

// WithRouting sets the regional routing host used by match endpoints.
func WithRouting(host string) Option {
	return func(c *Client) { c.regionalURL = HostURL(host) }
}

// WithLimiter replaces the default limiter.
func WithLimiter(l *Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithSleeper replaces the clock and sleeper used for backoff and Retry-After waits.
func WithSleeper(now func() time.Time, sleep SleepFunc) Option {
	return func(c *Client) {
		c.now = now
		c.sleep = sleep
	}
}

// WithMaxRateLimitRetries bounds the number of 429 retries per request.
func WithMaxRateLimitRetries(n int) Option {
	return func(c *Client) { c.maxRateLimitRetries = n }
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records requests, retries and waits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new Riot API client for apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingKey
	}

	c := &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		platformURL:         HostURL("na1"),
		regionalURL:         HostURL("americas"),
		now:                 time.Now,
		sleep:               sleepContext,
		maxRateLimitRetries: DefaultMaxRateLimitRetries,
		log:                 logger.Named("riot"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(DefaultLimits(), WithLimiterMetrics(c.metrics))
	}
	return c, nil
}

// Get fetches url and decodes a 2xx body into out. found is false on 404.
// Transient failures are retried up to maxRetries attempts; 429 responses are
// waited out without using an attempt. 401/403 abort with ErrUnauthorized.
func (c *Client) Get(ctx context.Context, url string, maxRetries int, out any) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	rateLimited := 0
	attempt := 1
	for attempt <= maxRetries {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, fmt.Errorf("riot: build request: %w", err)
		}
		req.Header.Set("X-Riot-Token", c.apiKey)

		start := c.now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			c.limiter.RecordAt(start)
			lastErr = err
			c.log.Warn(ctx, "network error, retrying",
				logger.String("url", url),
				logger.Int("attempt", attempt),
				logger.Int("max", maxRetries),
				logger.Err(err))
			c.metrics.ObserveRetry("network")
			if err := c.backoff(ctx, attempt, maxRetries, networkBackoff); err != nil {
				return false, err
			}
			attempt++
			continue
		}
		c.limiter.RecordAt(start)
		c.metrics.ObserveRequest(resp.StatusCode, c.now().Sub(start))

		switch code := resp.StatusCode; {
		case code >= 200 && code < 300:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err == nil {
				return true, nil
			}
			lastErr = fmt.Errorf("riot: decode %s: %w", url, err)
			c.log.Warn(ctx, "malformed body, retrying", logger.String("url", url), logger.Err(err))
			c.metrics.ObserveRetry("decode")
			if err := c.backoff(ctx, attempt, maxRetries, networkBackoff); err != nil {
				return false, err
			}
			attempt++

		case code == http.StatusTooManyRequests:
			wait := c.retryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
			lastErr = &StatusError{Code: code, URL: url}
			if rateLimited >= c.maxRateLimitRetries {
				return false, &RetryError{URL: url, Attempts: attempt + rateLimited, Err: lastErr}
			}
			rateLimited++
			c.log.Warn(ctx, "rate limited",
				logger.String("url", url),
				logger.Duration("wait", wait),
				logger.Int("retry", rateLimited))
			c.metrics.ObserveRetry("rate_limited")
			c.metrics.ObserveWait("retry_after", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return false, err
			}

		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			drain(resp)
			return false, &StatusError{Code: code, URL: url}

		case code == http.StatusNotFound:
			drain(resp)
			return false, nil

		default:
			drain(resp)
			lastErr = &StatusError{Code: code, URL: url}
			c.log.Warn(ctx, "unexpected status, retrying",
				logger.String("url", url),
				logger.Int("status", code),
				logger.Int("attempt", attempt),
				logger.Int("max", maxRetries))
			c.metrics.ObserveRetry("status")
			if err := c.backoff(ctx, attempt, maxRetries, statusBackoff); err != nil {
				return false, err
			}
			attempt++
		}
	}

	return false, &RetryError{URL: url, Attempts: maxRetries, Err: lastErr}
}

// backoff sleeps base*attempt unless this was the final attempt.
func (c *Client) backoff(ctx context.Context, attempt, maxRetries int, base time.Duration) error {
	if attempt >= maxRetries {
		return nil
	}
	return c.sleep(ctx, base*time.Duration(attempt))
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func (c *Client) retryAfter(header string) time.Duration {
	margin := c.limiter.limits.Margin
	header = strings.TrimSpace(header)
	if header == "" {
		return fallbackRetryAfter + margin
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs)*time.Second + margin
	}
	if at, err := http.ParseTime(header); err == nil {
		d := at.Sub(c.now())
		if d < 0 {
			d = 0
		}
		return d + margin
	}
	return fallbackRetryAfter + margin
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// LeagueEntries fetches one page of solo queue entries for a non-apex tier.
func (c *Client) LeagueEntries(ctx context.Context, tier, division string, page int) ([]LeagueEntry, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/%s/%s/%s?page=%d",
		c.platformURL, rankedSoloQueueType, strings.ToUpper(tier), strings.ToUpper(division), page)

	var entries []LeagueEntry
	if _, err := c.Get(ctx, u, DefaultMaxRetries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApexLeague fetches the challenger, grandmaster or master listing.
func (c *Client) ApexLeague(ctx context.Context, tier string) (*LeagueList, error) {
	var endpoint string
	switch strings.ToUpper(tier) {
	case "CHALLENGER":
		endpoint = "challengerleagues"
	case "GRANDMASTER":
		endpoint = "grandmasterleagues"
	case "MASTER":
		endpoint = "masterleagues"
	default:
		return nil, fmt.Errorf("riot: %q is not an apex tier", tier)
	}
	u := fmt.Sprintf("%s/lol/league/v4/%s/by-queue/%s", c.platformURL, endpoint, rankedSoloQueueType)

	var list LeagueList
	found, err := c.Get(ctx, u, DefaultMaxRetries, &list)
	if err != nil || !found {
		return nil, err
	}
	if list.Tier == "" {
		list.Tier = strings.ToUpper(tier)
	}
	for i := range list.Entries {
		if list.Entries[i].Tier == "" {
			list.Entries[i].Tier = list.Tier
		}
	}
	return &list, nil
}

// MatchIDs fetches the most recent ranked match ids of a player.
func (c *Client) MatchIDs(ctx context.Context, puuid string, count int) ([]string, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?type=ranked&count=%d",
		c.regionalURL, url.PathEscape(puuid), count)

	var ids []string
	if _, err := c.Get(ctx, u, DefaultMaxRetries, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Match fetches match details. A missing match returns nil, nil.
func (c *Client) Match(ctx context.Context, matchID string) (*Match, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalURL, url.PathEscape(matchID))

	var m Match
	found, err := c.Get(ctx, u, DefaultMaxRetries, &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}
