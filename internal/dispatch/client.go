// Package dispatch submits staged claims to the verification backend.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// Submitter is the outbound boundary to the verification backend
type Submitter interface {
	// SubmitNew asks for verification of a batch of new claims
	SubmitNew(ctx context.Context, sub model.FreshSubmission) error

	// SubmitResend asks the backend to overwrite a published result
	SubmitResend(ctx context.Context, sub model.ResendSubmission) error
}

// Client submits claims over HTTP
type Client struct {
	httpClient *http.Client
	limiter    *worker.Limiter
	approveURL string
	resendURL  string
	userAgent  string
	maxBytes   int64
	timeout    time.Duration
}

var _ Submitter = (*Client)(nil)

// NewClient creates a Client for the backend described by cfg.
// limiter may be nil.
func NewClient(cfg model.BackendConfig, httpClient *http.Client, limiter *worker.Limiter) *Client {
	if httpClient == nil {
		httpClient = util.NewHTTPClient(cfg.SubmitTimeout, cfg.HTTPProxy, cfg.HTTPSProxy)
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		approveURL: util.JoinURL(cfg.BaseURL, cfg.ApprovePath),
		resendURL:  util.JoinURL(cfg.BaseURL, cfg.ResendPath),
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		timeout:    cfg.SubmitTimeout,
	}
}

// SubmitNew posts a fresh sub-batch
func (c *Client) SubmitNew(ctx context.Context, sub model.FreshSubmission) error {
	if len(sub.Claims) == 0 {
		return model.NewValidationError("claims", nil, "no claims selected")
	}
	return c.post(ctx, c.approveURL, sub)
}

// SubmitResend posts a single overwrite instruction
func (c *Client) SubmitResend(ctx context.Context, sub model.ResendSubmission) error {
	if strings.TrimSpace(sub.Claim) == "" {
		return model.NewValidationError("claim", sub.Claim, "must not be empty")
	}
	return c.post(ctx, c.resendURL, sub)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return c.transportError(endpoint, 0, fmt.Errorf("rate limit: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(endpoint, 0, fmt.Errorf("submit: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return c.transportError(endpoint, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.transportError(endpoint, resp.StatusCode, statusError(resp, raw))
	}

	var ack model.SubmissionResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &ack); err != nil {
			return c.transportError(endpoint, resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}
	if strings.EqualFold(ack.Status, "error") {
		return fmt.Errorf("backend rejected submission: %s", ack.Message)
	}
	return nil
}

func (c *Client) transportError(endpoint string, status int, err error) error {
	return &model.ConnectivityError{
		Feed:       model.FeedDispatch,
		Endpoint:   endpoint,
		StatusCode: status,
		Timeout:    util.IsTimeout(err),
		Err:        err,
	}
}

func statusError(resp *http.Response, raw []byte) error {
	var detail model.ErrorResponse
	if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
		return fmt.Errorf("unexpected status: %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), detail.Detail)
	}
	return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
