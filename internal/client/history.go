package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/arvhov/chatrelay/internal/store"
)

// HistoryFetcher backfills messages that predate the current connection.
// Implementations return messages newest to oldest, mirroring the
// server's history endpoint.
type HistoryFetcher interface {
	Recent(ctx context.Context, room string, limit int) ([]store.Message, error)
}

// HTTPFetcher fetches history from the server's side-channel endpoint.
type HTTPFetcher struct {
	BaseURL string // e.g. http://localhost:8080
	Client  *http.Client
}

func (f *HTTPFetcher) Recent(ctx context.Context, room string, limit int) ([]store.Message, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := fmt.Sprintf("%s/api/rooms/%s/messages?limit=%d", f.BaseURL, url.PathEscape(room), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", room, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history for %s: unexpected status %d", room, resp.StatusCode)
	}

	var body struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return body.Messages, nil
}
