// Package shortener wraps the gplinks URL shortening API.
package shortener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultBase    = "https://gplinks.in/api"
	DefaultTimeout = 15 * time.Second
)

// resultKeys are tried in order; a string "url" field is the last resort.
var resultKeys = []string{"shortenedUrl", "shortenUrl", "shortlink", "short"}

type GPLinks struct {
	base   string
	client *http.Client
}

// NewGPLinks returns a client for base (DefaultBase when empty).
func NewGPLinks(base string, client *http.Client) *GPLinks {
	if base == "" {
		base = DefaultBase
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &GPLinks{base: base, client: client}
}

// Shorten returns a short link for long. Without a token, long is returned
// unchanged. A response without a recognised field also yields long.
func (g *GPLinks) Shorten(ctx context.Context, token, long string) (string, error) {
	if token == "" {
		return long, nil
	}
	u, err := url.Parse(g.base)
	if err != nil {
		return long, fmt.Errorf("parse shortener base: %w", err)
	}
	q := u.Query()
	q.Set("api", token)
	q.Set("url", long)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return long, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return long, fmt.Errorf("shorten: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return long, fmt.Errorf("shorten: unexpected status %s", resp.Status)
	}

	var data map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data); err != nil {
		return long, fmt.Errorf("shorten: decode response: %w", err)
	}
	return pick(data, long), nil
}

func pick(data map[string]any, long string) string {
	for _, k := range resultKeys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := data["url"].(string); ok && s != "" {
		return s
	}
	return long
}
