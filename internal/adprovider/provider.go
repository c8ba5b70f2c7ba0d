// Package adprovider wraps the third-party rewarded-ad SDK behind a small
// contract: show a creative for a block and report, within bounded time,
// either completion or a classified failure.
package adprovider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotCompleted means the user closed the ad before completion. This is
	// a deliberate user action: the attempt cannot be granted later, so the
	// caller should cancel its intent.
	ErrNotCompleted = errors.New("adprovider: ad closed before completion")

	// ErrProviderFailure means the SDK or its network failed (creative did not
	// load, bridge unreachable, SDK-internal error). The provider's backend may
	// still settle the intent asynchronously, so the caller must NOT cancel.
	ErrProviderFailure = errors.New("adprovider: sdk or network failure")
)

// ShowResult is the SDK's report for one display attempt.
// Done == true is the only success signal.
type ShowResult struct {
	Done        bool   `json:"done"`
	State       string `json:"state"`
	Description string `json:"description"`
	Error       bool   `json:"error"`
}

// ShowError carries the SDK's state and description alongside the
// classification sentinel.
type ShowError struct {
	Sentinel    error
	BlockID     string
	State       string
	Description string
	Err         error
}

func (e *ShowError) Error() string {
	msg := fmt.Sprintf("adprovider: show %s: %v", e.BlockID, e.Sentinel)
	if e.State != "" {
		msg = fmt.Sprintf("%s (state=%s)", msg, e.State)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ShowError) Unwrap() error {
	return e.Sentinel
}

// Provider displays a rewarded ad for the given block. Implementations own
// their timeout: Show always returns within bounded time, and callers impose
// no second deadline on top.
type Provider interface {
	Show(ctx context.Context, blockID string) (ShowResult, error)
}

// Classify converts a raw ShowResult into the Provider error contract.
// A result with Done set classifies as success (nil).
func Classify(blockID string, res ShowResult) error {
	if res.Done {
		return nil
	}
	sentinel := ErrProviderFailure
	// The SDK reports a user close as a non-error termination.
	if !res.Error {
		sentinel = ErrNotCompleted
	}
	return &ShowError{
		Sentinel:    sentinel,
		BlockID:     blockID,
		State:       res.State,
		Description: res.Description,
	}
}
