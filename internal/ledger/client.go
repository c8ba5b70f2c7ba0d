package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arrowpuzzle/rewardflow/internal/metrics"
)

// Client talks to the reward-ledger HTTP API. All calls are bearer-authenticated;
// a 401 on any call maps to ErrSessionExpired and must propagate to the caller.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// ClientInterface is the ledger surface consumed by the orchestrator and
// reconciler. Separated for easier testing.
type ClientInterface interface {
	CreateIntent(ctx context.Context, req CreateRequest) (Intent, error)
	IntentStatus(ctx context.Context, intentID string) (IntentStatus, error)
	ClientComplete(ctx context.Context, intentID string) (IntentStatus, error)
	Cancel(ctx context.Context, intentID string) error
	ActiveIntents(ctx context.Context) ([]Intent, error)
}

// New creates a ledger client for the given base URL and bearer token.
func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithHTTPClient creates a ledger client with a caller-supplied http.Client.
func NewWithHTTPClient(base, token string, hc *http.Client) *Client {
	c := New(base, token)
	if hc != nil {
		c.http = hc
	}
	return c
}

// CreateIntent opens a reward intent for the given placement.
// A 409/422 becomes a *RejectionError carrying the server's failure code.
func (c *Client) CreateIntent(ctx context.Context, req CreateRequest) (Intent, error) {
	var out Intent
	err := c.do(ctx, http.MethodPost, "/ads/reward-intents", "create_intent", req, &out)
	return out, err
}

// IntentStatus fetches the current status of one intent.
func (c *Client) IntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	var out IntentStatus
	err := c.do(ctx, http.MethodGet, "/ads/reward-intents/"+intentID, "intent_status", nil, &out)
	return out, err
}

// ClientComplete reports ad completion and asks the ledger to settle the
// intent synchronously. The returned status may already be terminal if the
// provider's webhook raced us.
func (c *Client) ClientComplete(ctx context.Context, intentID string) (IntentStatus, error) {
	var out IntentStatus
	err := c.do(ctx, http.MethodPost, "/ads/reward-intents/"+intentID+"/client-complete", "client_complete", nil, &out)
	return out, err
}

// Cancel asks the ledger to cancel a pending intent. Callers treat this as
// fire-and-forget; the backend's own intent expiry is the backstop.
func (c *Client) Cancel(ctx context.Context, intentID string) error {
	return c.do(ctx, http.MethodPost, "/ads/reward-intents/"+intentID+"/cancel", "cancel_intent", nil, nil)
}

// ActiveIntents lists the session's currently pending intents.
func (c *Client) ActiveIntents(ctx context.Context) ([]Intent, error) {
	var out []Intent
	err := c.do(ctx, http.MethodGet, "/ads/reward-intents/active", "active_intents", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, op string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveLedgerRequest(op, 0, time.Since(start))
		return &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer res.Body.Close() //nolint:errcheck
	metrics.ObserveLedgerRequest(op, res.StatusCode, time.Since(start))

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return &APIError{Sentinel: ErrSessionExpired, Operation: op, Status: res.StatusCode}
	case res.StatusCode == http.StatusNotFound:
		return &APIError{Sentinel: ErrIntentNotFound, Operation: op, Status: res.StatusCode}
	case res.StatusCode == http.StatusConflict || res.StatusCode == http.StatusUnprocessableEntity:
		return &RejectionError{
			Operation:   op,
			Status:      res.StatusCode,
			FailureCode: readFailureCode(res.Body),
		}
	case res.StatusCode >= 500:
		return &APIError{Sentinel: ErrServerError, Operation: op, Status: res.StatusCode, Body: readSnippet(res.Body)}
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode, Body: readSnippet(res.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode, Err: err}
	}
	return nil
}

// readFailureCode extracts the machine-readable failure code from a
// rejection body. The backend wraps it as {"detail":{"error":CODE}}; a flat
// {"error":CODE} is tolerated as well.
func readFailureCode(r io.Reader) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	if len(payload.Detail) == 0 {
		return ""
	}
	var detail struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail.Error != "" {
		return detail.Error
	}
	var flat string
	if err := json.Unmarshal(payload.Detail, &flat); err == nil {
		return flat
	}
	return ""
}

func readSnippet(r io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}
