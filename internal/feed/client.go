// Package feed reads the discovery and published-results feeds of the
// backend.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
)

// fetchSleepFunc is the sleep function used between retries (overridable in tests)
var fetchSleepFunc = time.Sleep

const retryBaseDelay = 250 * time.Millisecond

// Client polls the backend feeds over HTTP
type Client struct {
	httpClient *http.Client
	pendingURL string
	resultsURL string
	userAgent  string
	maxBytes   int64
	maxRetries int
	logger     zerolog.Logger
}

// NewClient creates a feed client. httpClient may be nil.
func NewClient(backend model.BackendConfig, poll model.PollConfig, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = util.NewHTTPClient(poll.Timeout, backend.HTTPProxy, backend.HTTPSProxy)
	}
	maxBytes := backend.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}
	return &Client{
		httpClient: httpClient,
		pendingURL: util.JoinURL(backend.BaseURL, backend.PendingPath),
		resultsURL: util.JoinURL(backend.BaseURL, backend.ResultsPath),
		userAgent:  backend.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: max(poll.MaxRetries, 0),
		logger:     logger,
	}
}

// FetchPending reads the discovery snapshot and derives claim identities.
// Blocks keep the feed's order.
func (c *Client) FetchPending(ctx context.Context) ([]model.Block, error) {
	var raw []model.BlockPayload
	if err := c.getJSON(ctx, model.FeedDiscovery, c.pendingURL, &raw); err != nil {
		return nil, err
	}

	blocks := make([]model.Block, 0, len(raw))
	for _, p := range raw {
		b, err := BlockFromPayload(p)
		if err != nil {
			return nil, &model.ConnectivityError{Feed: model.FeedDiscovery, Endpoint: c.pendingURL, Err: err}
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// FetchResults reads the published results for target
func (c *Client) FetchResults(ctx context.Context, target string) ([]model.PublishedResult, error) {
	endpoint := c.resultsURL
	if target != "" {
		endpoint += "?" + url.Values{"episode": {target}}.Encode()
	}

	var results []model.PublishedResult
	if err := c.getJSON(ctx, model.FeedResults, endpoint, &results); err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range results {
		results[i].FetchedAt = now
	}
	return results, nil
}

// BlockFromPayload validates a raw block and derives its claims
func BlockFromPayload(p model.BlockPayload) (model.Block, error) {
	if strings.TrimSpace(p.BlockID) == "" {
		return model.Block{}, fmt.Errorf("block without block_id")
	}
	ts, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s: %w", p.BlockID, err)
	}
	info := p.Info
	if info == "" {
		info = p.Headline
	}
	return model.BlockFromPayload(p.BlockID, ts, info, p.Claims), nil
}

func (c *Client) getJSON(ctx context.Context, feed, endpoint string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				break
			}
			c.logger.Debug().Str("feed", feed).Int("attempt", attempt).Dur("delay", delay).Err(lastErr).Msg("retrying poll")
			fetchSleepFunc(delay)
		}

		body, status, err := c.get(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return &model.ConnectivityError{Feed: feed, Endpoint: endpoint, StatusCode: status, Err: fmt.Errorf("decode: %w", err)}
			}
			return nil
		}

		lastErr = &model.ConnectivityError{Feed: feed, Endpoint: endpoint, StatusCode: status, Timeout: util.IsTimeout(err), Err: err}
		if ctx.Err() != nil || !isRetryable(status, err) {
			break
		}
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// isRetryable treats 5xx, 429 and transport errors other than
// cancellation as transient
func isRetryable(status int, err error) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	if status != 0 {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
