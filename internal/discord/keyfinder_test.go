package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"draftgap/internal/logger"
)

const testKey = "RGAPI-12345678-abcd-1234-efgh-567890abcdef"

// TestParseAPIKey tests extracting RGAPI key from message content
func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
		found    bool
	}{
		{"valid key at start", testKey, testKey, true},
		{"valid key with text before", "Here's the new key: " + testKey, testKey, true},
		{"valid key in middle of text", "The key is " + testKey + " and it should work", testKey, true},
		{"key with newlines", "New key:\n" + testKey + "\nEnjoy!", testKey, true},
		{"no key present", "Hello, this is just a regular message", "", false},
		{"partial key (too short)", "RGAPI-1234", "", false},
		{"empty message", "", "", false},
		{
			"multiple keys (returns first)",
			"RGAPI-first-key-1234-5678-abcdefghijkl and RGAPI-second-key-5678-9012-lmnopqrstuvw",
			"RGAPI-first-key-1234-5678-abcdefghijkl",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, found := ParseAPIKey(tt.content)
			if found != tt.found {
				t.Errorf("Expected found=%v, got=%v", tt.found, found)
			}
			if key != tt.expected {
				t.Errorf("Expected key=%q, got=%q", tt.expected, key)
			}
		})
	}
}

func channelServer(t *testing.T, messages []Message) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot test-bot-token" {
			t.Errorf("Unexpected Authorization header: %q", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("limit") == "" {
			t.Error("Expected limit parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messages)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestFinder(url string, opts ...KeyFinderOption) *KeyFinder {
	opts = append([]KeyFinderOption{WithDiscordBaseURL(url), WithKeyFinderLogger(logger.Nop())}, opts...)
	return NewKeyFinder("test-bot-token", "123456789", opts...)
}

// TestKeyFinder_PollChannel tests polling Discord channel for messages
func TestKeyFinder_PollChannel(t *testing.T) {
	now := time.Now()
	server := channelServer(t, []Message{
		{ID: "2", Content: "Here's the key: " + testKey, Timestamp: now.Add(-2 * time.Minute)},
		{ID: "1", Content: "Hello, this is a test", Timestamp: now.Add(-5 * time.Minute)},
	})

	key, err := newTestFinder(server.URL).PollForKey(context.Background(), now.Add(-10*time.Minute), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if key != testKey {
		t.Errorf("Expected to find API key, got: %s", key)
	}
}

// TestKeyFinder_FiltersByTimestamp ignores keys posted before the rejection.
func TestKeyFinder_FiltersByTimestamp(t *testing.T) {
	now := time.Now()
	server := channelServer(t, []Message{
		{ID: "1", Content: testKey, Timestamp: now.Add(-time.Hour)},
	})

	key, err := newTestFinder(server.URL).PollForKey(context.Background(), now.Add(-time.Minute), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if key != "" {
		t.Errorf("Expected old key to be ignored, got: %s", key)
	}
}

// TestKeyFinder_SkipsRejectedKey ignores a repost of the key that just failed.
func TestKeyFinder_SkipsRejectedKey(t *testing.T) {
	now := time.Now()
	other := "RGAPI-87654321-dcba-4321-hgfe-fedcba098765"
	server := channelServer(t, []Message{
		{ID: "2", Content: testKey, Timestamp: now},
		{ID: "1", Content: other, Timestamp: now},
	})

	key, err := newTestFinder(server.URL).PollForKey(context.Background(), now.Add(-time.Minute), testKey)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if key != other {
		t.Errorf("Expected %s, got: %s", other, key)
	}
}

func TestKeyFinder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestFinder(server.URL).PollForKey(context.Background(), time.Now(), "")
	if err == nil {
		t.Error("Expected error for 403")
	}
}

// TestKeyFinder_RateLimited tests that a 429 is waited out
func TestKeyFinder_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]Message{{Content: testKey}})
	}))
	defer server.Close()

	key, err := newTestFinder(server.URL).PollForKey(context.Background(), time.Now(), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if key != testKey {
		t.Errorf("Expected key after retry, got: %s", key)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

// TestKeyFinder_WaitForKey polls until a key shows up
func TestKeyFinder_WaitForKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			json.NewEncoder(w).Encode([]Message{})
			return
		}
		json.NewEncoder(w).Encode([]Message{{Content: testKey, Timestamp: time.Now()}})
	}))
	defer server.Close()

	finder := newTestFinder(server.URL, WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key, err := finder.WaitForKey(ctx, time.Now().Add(-time.Minute), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if key != testKey {
		t.Errorf("Expected %s, got: %s", testKey, key)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", calls.Load())
	}
}

func TestKeyFinder_WaitForKeyTimeout(t *testing.T) {
	server := channelServer(t, nil)
	finder := newTestFinder(server.URL, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := finder.WaitForKey(ctx, time.Now(), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got: %v", err)
	}
}

func TestKeyFinder_SendMessage(t *testing.T) {
	var body []byte
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newTestFinder(server.URL).SendMessage(context.Background(), "need a key"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if path != "/channels/123456789/messages" {
		t.Errorf("Unexpected path: %s", path)
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Content != "need a key" {
		t.Errorf("Unexpected content: %s", payload.Content)
	}
}
