// Package rewarded drives one rewarded-ad attempt end to end: create an
// intent at the ledger, show the creative, then settle the intent through
// the synchronous fast path or the status-poll fallback.
package rewarded

import "github.com/arrowpuzzle/rewardflow/internal/ledger"

// OutcomeKind enumerates the terminal results of one flow run.
type OutcomeKind string

const (
	// OutcomeGranted means the ledger credited the reward.
	OutcomeGranted OutcomeKind = "granted"
	// OutcomeRejected is a semantic refusal, carrying the server's failure code.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeTimeout means the poll budget elapsed with the intent still
	// pending. The intent stays tracked for the reconciler and for Resume.
	OutcomeTimeout OutcomeKind = "timeout"
	// OutcomeNotCompleted means the user closed the ad early. The intent was
	// cancelled; a fresh attempt starts from scratch.
	OutcomeNotCompleted OutcomeKind = "not_completed"
	// OutcomeProviderError is an SDK/network fault during display. The intent
	// stays alive: the provider's backend may still settle it.
	OutcomeProviderError OutcomeKind = "provider_error"
	// OutcomeUnavailable means the ad unit is not configured or disabled.
	OutcomeUnavailable OutcomeKind = "unavailable"
	// OutcomeError is any other request failure before or after the ad.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the client-local result of one flow run. Never persisted.
// IntentID is empty only when no intent was created; on OutcomeTimeout it is
// always preserved so a caller can resume polling instead of opening a
// duplicate intent.
type Outcome struct {
	Kind        OutcomeKind          `json:"outcome"`
	IntentID    string               `json:"intent_id,omitempty"`
	Status      *ledger.IntentStatus `json:"status,omitempty"`
	FailureCode string               `json:"failure_code,omitempty"`
	Retriable   bool                 `json:"retriable"`
}
