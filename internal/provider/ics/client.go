// Package ics reads calendar events from an iCalendar (RFC 5545) feed URL.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// maxFeedBytes caps a single feed download.
const maxFeedBytes = 16 << 20

// Client fetches a connection's feed and turns its VEVENTs into provider events.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Client whose requests time out after timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ListEvents downloads the feed named by conn.AccountRef and returns the events that overlap
// window. Recurring events are expanded into one event per occurrence.
func (c *Client) ListEvents(ctx context.Context, conn domain.CalendarConnection, window domain.Window) ([]domain.RawEvent, error) {
	if conn.AccountRef == "" {
		return nil, errors.New("ics feed url is empty")
	}
	body, err := c.fetch(ctx, conn.AccountRef)
	if err != nil {
		return nil, err
	}

	events, err := parseFeed(body, window)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, ev := range events {
		if ev.Err != nil {
			failed++
		}
	}
	c.logger.Info("ics feed parsed",
		zap.String("connection_id", conn.ID),
		zap.String("feed", redactURL(conn.AccountRef)),
		zap.Int("events", len(events)),
		zap.Int("malformed", failed),
	)
	return events, nil
}

func (c *Client) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", redactURL(feedURL), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty ics body")
	}
	return body, nil
}

// redactURL keeps only scheme and host; private feed URLs carry secrets in path and query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
