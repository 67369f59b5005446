// Package feed fetches position feeds published by fleet providers, either as
// JSON or as GTFS-Realtime protobuf.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
)

// maxFeedBytes caps a single feed download.
const maxFeedBytes = 32 << 20

// Format selects how a feed body is decoded.
type Format string

const (
	// FormatAuto picks the decoder from the response Content-Type.
	FormatAuto   Format = "auto"
	FormatJSON   Format = "json"
	FormatGTFSRT Format = "gtfs-rt"
)

// Client downloads position feeds.
type Client struct {
	http   *http.Client
	format Format
}

// NewClient creates a Client with the given request timeout that detects the
// feed format per response.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, format: FormatAuto}
}

// WithFormat forces one decoder for every feed. An empty format means auto.
func (c *Client) WithFormat(f Format) *Client {
	if f == "" {
		f = FormatAuto
	}
	c.format = f
	return c
}

// envelope is the object form of a feed: {"positions": [...]}.
type envelope struct {
	Positions []domain.PositionUpdate `json:"positions"`
}

// Fetch GETs url and decodes its positions. JSON feeds may be a bare array or
// an object with a "positions" array; protobuf responses are read as
// GTFS-Realtime. Reports without a timestamp are stamped with the fetch time.
func (c *Client) Fetch(ctx context.Context, url string) (updates []domain.PositionUpdate, err error) {
	start := time.Now()
	defer func() {
		metrics.FeedPollDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.FeedPollErrors.Inc()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/x-protobuf;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if c.decodesGTFSRT(resp.Header.Get("Content-Type")) {
		updates, err = DecodeGTFSRT(body)
	} else {
		updates, err = Decode(body)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}

	now := time.Now().UTC()
	for i := range updates {
		if updates[i].Timestamp.IsZero() {
			updates[i].Timestamp = now
		}
	}
	return updates, nil
}

func (c *Client) decodesGTFSRT(contentType string) bool {
	switch c.format {
	case FormatGTFSRT:
		return true
	case FormatJSON:
		return false
	}
	return strings.Contains(contentType, "protobuf") || strings.HasPrefix(contentType, "application/octet-stream")
}

// Decode parses a JSON feed body in either supported shape.
func Decode(body []byte) ([]domain.PositionUpdate, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var updates []domain.PositionUpdate
		if err := json.Unmarshal(body, &updates); err != nil {
			return nil, err
		}
		return updates, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Positions, nil
}
