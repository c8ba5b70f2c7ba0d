package adprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// HTTPBridge reaches the real SDK through a local bridge endpoint exposed by
// the game's webview shim: POST {base}/show with a block ID, answered with
// the SDK's ShowResult once the creative finished or failed.
type HTTPBridge struct {
	base string
	http *http.Client
}

// NewHTTPBridge creates a bridge provider. The timeout bounds the whole
// display attempt, including the time the user spends watching.
func NewHTTPBridge(base string, timeout time.Duration) *HTTPBridge {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPBridge{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Show implements Provider.
func (b *HTTPBridge) Show(ctx context.Context, blockID string) (ShowResult, error) {
	payload, err := json.Marshal(struct {
		BlockID string `json:"block_id"`
	}{BlockID: blockID})
	if err != nil {
		return ShowResult{}, &ShowError{Sentinel: ErrProviderFailure, BlockID: blockID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/show", bytes.NewReader(payload))
	if err != nil {
		return ShowResult{}, &ShowError{Sentinel: ErrProviderFailure, BlockID: blockID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.http.Do(req)
	if err != nil {
		return ShowResult{}, &ShowError{Sentinel: ErrProviderFailure, BlockID: blockID, Err: err}
	}
	defer res.Body.Close() //nolint:errcheck

	if res.StatusCode != http.StatusOK {
		return ShowResult{}, &ShowError{
			Sentinel:    ErrProviderFailure,
			BlockID:     blockID,
			Description: res.Status,
		}
	}

	var result ShowResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return ShowResult{}, &ShowError{Sentinel: ErrProviderFailure, BlockID: blockID, Err: err}
	}
	if err := Classify(blockID, result); err != nil {
		return result, err
	}
	return result, nil
}
