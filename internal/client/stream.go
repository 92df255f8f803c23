package client

import (
	"bufio"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/librarium/librarium-server/internal/events"
)

// Stream consumes the server's SSE endpoint and feeds pushed events into the
// cache. Delivery is live-only: events published before the connection, or
// during a gap after a drop, are missed. There is no replay, so Run does not
// reconnect on its own; the caller decides whether to re-run and accept the
// gap.
type Stream struct {
	url    string
	client *http.Client
	cache  *Cache
	logger *slog.Logger
}

// NewStream creates a stream consumer for the given SSE endpoint URL.
func NewStream(url string, cache *Cache, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		url: url,
		// No overall timeout: the connection is long-lived by design.
		client: &http.Client{},
		cache:  cache,
		logger: logger,
	}
}

// Run connects and consumes events until the context is canceled or the
// connection drops. A clean context cancellation returns nil.
func (s *Stream) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing to do with a close error on a read stream

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	s.logger.Debug("event stream connected", "url", s.url)

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Blank line terminates one SSE event.
			if eventType != "" && data != "" {
				s.dispatch(eventType, []byte(data))
			}
			eventType, data = "", ""

		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// dispatch merges one decoded event into the cache. Heartbeats and the
// connection greeting carry no catalog data and are skipped.
func (s *Stream) dispatch(eventType string, data []byte) {
	switch events.EventType(eventType) {
	case events.EventBookAdded:
		var ev struct {
			Data events.BookAddedEventData `json:"data"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("malformed book.added event", "error", err)
			return
		}
		s.cache.MergeBook(ev.Data.Book)

	case events.EventAuthorUpdated:
		var ev struct {
			Data events.AuthorUpdatedEventData `json:"data"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("malformed author.updated event", "error", err)
			return
		}
		s.cache.MergeAuthor(ev.Data.Author)

	case events.EventHeartbeat:
		// Keepalive only.

	default:
		s.logger.Debug("ignoring event", "type", eventType)
	}
}
