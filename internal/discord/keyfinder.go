package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"draftgap/internal/logger"
)

const (
	defaultDiscordBaseURL = "https://discord.com/api/v10"
	defaultPollInterval   = 30 * time.Second
	defaultDiscordTimeout = 10 * time.Second

	// Number of messages to fetch per poll
	defaultMessageLimit = 5
)

// Riot development keys look like RGAPI-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
var apiKeyPattern = regexp.MustCompile(`RGAPI-[a-zA-Z0-9-]{20,50}`)

// Message is a channel message from the Discord API.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
}

// KeyFinder polls a Discord channel for a replacement API key.
type KeyFinder struct {
	botToken     string
	channelID    string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	log          logger.Logger
}

// KeyFinderOption configures a KeyFinder
type KeyFinderOption func(*KeyFinder)

// WithDiscordBaseURL sets a custom Discord API base URL.
func WithDiscordBaseURL(url string) KeyFinderOption {
	return func(f *KeyFinder) {
		f.baseURL = url
	}
}

// WithPollInterval sets the polling interval for WaitForKey
func WithPollInterval(interval time.Duration) KeyFinderOption {
	return func(f *KeyFinder) {
		f.pollInterval = interval
	}
}

// WithKeyFinderLogger sets the logger.
func WithKeyFinderLogger(l logger.Logger) KeyFinderOption {
	return func(f *KeyFinder) {
		f.log = l
	}
}

// NewKeyFinder creates a KeyFinder for a bot token and channel.
func NewKeyFinder(botToken, channelID string, opts ...KeyFinderOption) *KeyFinder {
	f := &KeyFinder{
		botToken:     botToken,
		channelID:    channelID,
		baseURL:      defaultDiscordBaseURL,
		pollInterval: defaultPollInterval,
		httpClient: &http.Client{
			Timeout: defaultDiscordTimeout,
		},
		log: logger.Named("keyfinder"),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// ParseAPIKey extracts a Riot API key from message content.
func ParseAPIKey(content string) (string, bool) {
	match := apiKeyPattern.FindString(content)
	return match, match != ""
}

// PollForKey returns the newest key posted after since that differs from
// exclude, or "" when there is none.
func (f *KeyFinder) PollForKey(ctx context.Context, since time.Time, exclude string) (string, error) {
	messages, err := f.fetchMessages(ctx)
	if err != nil {
		return "", err
	}

	// Discord returns the most recent message first.
	for _, msg := range messages {
		if !msg.Timestamp.IsZero() && msg.Timestamp.Before(since) {
			continue
		}
		key, found := ParseAPIKey(msg.Content)
		if !found || key == exclude {
			continue
		}
		f.log.Info(ctx, "found api key", logger.String("author", msg.Author.Username))
		return key, nil
	}
	return "", nil
}

// WaitForKey polls until a key is found or ctx is done.
func (f *KeyFinder) WaitForKey(ctx context.Context, since time.Time, exclude string) (string, error) {
	f.log.Info(ctx, "waiting for api key",
		logger.String("channel", f.channelID),
		logger.Duration("interval", f.pollInterval))

	for {
		key, err := f.PollForKey(ctx, since, exclude)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			f.log.Warn(ctx, "poll failed", logger.Err(err))
		}
		if key != "" {
			return key, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.pollInterval):
		}
	}
}

// SendMessage posts a plain message to the channel.
func (f *KeyFinder) SendMessage(ctx context.Context, content string) error {
	return f.post(ctx, WebhookPayload{Content: content})
}

// SendEmbed posts an embed message to the channel.
func (f *KeyFinder) SendEmbed(ctx context.Context, payload WebhookPayload) error {
	return f.post(ctx, payload)
}

func (f *KeyFinder) post(ctx context.Context, payload WebhookPayload) error {
	url := fmt.Sprintf("%s/channels/%s/messages", f.baseURL, f.channelID)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+f.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("discord api returned status %d", resp.StatusCode)
	}
	return nil
}

// fetchMessages fetches recent messages from the channel, waiting out rate limits.
func (f *KeyFinder) fetchMessages(ctx context.Context) ([]Message, error) {
	url := fmt.Sprintf("%s/channels/%s/messages?limit=%d", f.baseURL, f.channelID, defaultMessageLimit)

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+f.botToken)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("discord api returned status %d", resp.StatusCode)
		}

		var messages []Message
		err = json.NewDecoder(resp.Body).Decode(&messages)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return messages, nil
	}
	return nil, fmt.Errorf("discord api rate limited after %d retries", maxRetries)
}
