// Package catalog reads champion reference data from Data Dragon and builds
// the normalizer that maps match champion names onto catalog ids.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"draftgap/internal/logger"
)

const (
	DefaultBaseURL         = "https://ddragon.leagueoflegends.com"
	DefaultFallbackVersion = "15.3.1"

	versionTTL = time.Hour
)

// Champion is one entry of champion.json.
type Champion struct {
	ID    string   `json:"id"`  // e.g. "MonkeyKing"
	Key   string   `json:"key"` // numeric id as a string, e.g. "62"
	Name  string   `json:"name"`
	Image string   `json:"image"`
	Tags  []string `json:"tags"`
}

// Catalog is a Data Dragon client with a cached latest version.
type Catalog struct {
	baseURL    string
	httpClient *http.Client
	fallback   string
	now        func() time.Time
	log        logger.Logger

	mu        sync.Mutex
	version   string
	fetchedAt time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithBaseURL points the catalog at another Data Dragon host.
func WithBaseURL(u string) Option {
	return func(c *Catalog) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Catalog) { c.httpClient = hc }
}

// WithFallbackVersion sets the version used when versions.json is unreachable.
func WithFallbackVersion(v string) Option {
	return func(c *Catalog) {
		if v != "" {
			c.fallback = v
		}
	}
}

// WithClock replaces the clock used for the version cache.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// New creates a Data Dragon catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		fallback:   DefaultFallbackVersion,
		now:        time.Now,
		log:        logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the latest Data Dragon version. A fetched version is cached
// for an hour; on failure the stale cache or the fallback is returned.
func (c *Catalog) Version(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.version != "" && now.Sub(c.fetchedAt) < versionTTL {
		return c.version
	}

	var versions []string
	if err := c.getJSON(ctx, c.baseURL+"/api/versions.json", &versions); err != nil || len(versions) == 0 {
		if err == nil {
			err = fmt.Errorf("empty version list")
		}
		stale := c.version
		if stale == "" {
			stale = c.fallback
		}
		c.log.Warn(ctx, "version lookup failed", logger.String("using", stale), logger.Err(err))
		return stale
	}

	c.version = versions[0]
	c.fetchedAt = now
	return c.version
}

// Champions fetches every champion for locale, sorted by display name.
func (c *Catalog) Champions(ctx context.Context, locale string) ([]Champion, error) {
	version := c.Version(ctx)
	url := fmt.Sprintf("%s/cdn/%s/data/%s/champion.json", c.baseURL, version, ddragonLocale(locale))

	var payload struct {
		Data map[string]struct {
			ID    string `json:"id"`
			Key   string `json:"key"`
			Name  string `json:"name"`
			Image struct {
				Full string `json:"full"`
			} `json:"image"`
			Tags []string `json:"tags"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch champions: %w", err)
	}

	champions := make([]Champion, 0, len(payload.Data))
	for id, ch := range payload.Data {
		if ch.ID == "" {
			ch.ID = id
		}
		champions = append(champions, Champion{
			ID:    ch.ID,
			Key:   ch.Key,
			Name:  ch.Name,
			Image: ch.Image.Full,
			Tags:  ch.Tags,
		})
	}
	sort.Slice(champions, func(i, j int) bool {
		return champions[i].Name < champions[j].Name
	})
	return champions, nil
}

// IconURL returns the square icon URL of a champion image file.
func (c *Catalog) IconURL(ctx context.Context, image string) string {
	return fmt.Sprintf("%s/cdn/%s/img/champion/%s", c.baseURL, c.Version(ctx), image)
}

func (c *Catalog) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func ddragonLocale(locale string) string {
	switch strings.ToLower(locale) {
	case "", "en", "en_us":
		return "en_US"
	case "ja", "ja_jp":
		return "ja_JP"
	}
	return locale
}
