// Package discord posts collection run notifications to a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"draftgap/internal/collector"
	"draftgap/internal/riot"
)

const (
	// Colors for Discord embeds
	colorRed    = 15158332 // 0xE74C3C
	colorGreen  = 5763719  // 0x57F287
	colorOrange = 15105570 // 0xE67E22

	defaultWebhookTimeout = 10 * time.Second

	// Max attempts when Discord rate limits the webhook
	maxRetries = 3
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// NewRunSummaryPayload reports a finished (possibly interrupted) run.
func NewRunSummaryPayload(s *collector.Summary) WebhookPayload {
	title := "✅ Collection Finished"
	color := colorGreen
	if s.Interrupted {
		title = "⏸️ Collection Interrupted"
		color = colorOrange
	}
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title:       title,
				Description: s.Mode,
				Color:       color,
				Fields: []EmbedField{
					{Name: "Players", Value: formatNumber(s.Players), Inline: true},
					{Name: "Matches", Value: formatNumber(s.Matches), Inline: true},
					{Name: "Matchups", Value: formatNumber(s.MatchupRows), Inline: true},
					{Name: "Duplicates", Value: formatNumber(s.Duplicates), Inline: true},
					{Name: "Failed", Value: formatNumber(s.Failed), Inline: true},
					{Name: "Runtime", Value: formatDuration(s.Elapsed), Inline: true},
				},
				Footer: &EmbedFooter{
					Text: fmt.Sprintf("Database: %s matchup rows, %s processed matches",
						formatNumber(int(s.Store.Matchups)), formatNumber(int(s.Store.Processed))),
				},
				Timestamp: s.FinishedAt.UTC().Format(time.RFC3339),
			},
		},
	}
}

// NewRunAbortedPayload reports a run stopped by a rejected key or an empty ladder.
func NewRunAbortedPayload(apiKey string, s *collector.Summary, cause error) WebhookPayload {
	headline := "Collection Aborted"
	icon := "❌"
	if errors.Is(cause, riot.ErrUnauthorized) {
		headline = "API Key Rejected"
		icon = "🔑"
	}
	return WebhookPayload{
		Content: "@here " + headline + "!",
		Embeds: []Embed{
			{
				Title:       icon + " " + headline,
				Description: cause.Error(),
				Color:       colorRed,
				Fields: []EmbedField{
					{Name: "Key", Value: maskAPIKey(apiKey), Inline: true},
					{Name: "Matches Collected", Value: formatNumber(s.Matches), Inline: true},
					{Name: "Runtime", Value: formatDuration(s.Elapsed), Inline: true},
				},
				Footer: &EmbedFooter{
					Text: "Update RIOT_API_KEY and rerun collect",
				},
			},
		},
	}
}

// NewKeyRequestPayload asks the channel for a replacement API key.
func NewKeyRequestPayload(rejectedKey string) WebhookPayload {
	return WebhookPayload{
		Content: "@here API key rejected, collection is paused.",
		Embeds: []Embed{
			{
				Title:       "🔑 New API Key Needed",
				Description: "Reply in this channel with a new RGAPI key to resume collection.",
				Color:       colorOrange,
				Fields: []EmbedField{
					{Name: "Rejected Key", Value: maskAPIKey(rejectedKey), Inline: true},
				},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendRunSummary posts the summary of a finished run.
func (c *WebhookClient) SendRunSummary(ctx context.Context, s *collector.Summary) error {
	return c.sendPayload(ctx, NewRunSummaryPayload(s))
}

// SendRunAborted posts a fatal run error.
func (c *WebhookClient) SendRunAborted(ctx context.Context, apiKey string, s *collector.Summary, cause error) error {
	return c.sendPayload(ctx, NewRunAbortedPayload(apiKey, s, cause))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatNumber formats a number with commas (e.g., 47832 -> "47,832")
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.Itoa(n)
	if n < 1000 {
		return s
	}
	var result bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// formatDuration formats a duration as "Xh Ym" or "Ym Zs" under an hour.
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// maskAPIKey masks an API key for display (e.g., "RGAPI-xxxx-xxxx" -> "RGAPI...xxxx")
func maskAPIKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:5] + "..." + key[len(key)-4:]
}
