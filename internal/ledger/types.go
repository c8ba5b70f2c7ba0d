// Package ledger implements the client for the backend reward-ledger API.
// The backend is the sole source of truth for whether a reward was credited;
// this package only transports and classifies its answers.
package ledger

import "time"

// Placement identifies why a reward is requested. The backend enforces
// at most one pending intent per placement per user.
type Placement string

const (
	PlacementDailyCoins Placement = "reward_daily_coins"
	PlacementHint       Placement = "reward_hint"
	PlacementRevive     Placement = "reward_revive"
)

// Placements lists every known placement.
var Placements = []Placement{PlacementDailyCoins, PlacementHint, PlacementRevive}

// Valid reports whether p is a known placement.
func (p Placement) Valid() bool {
	switch p {
	case PlacementDailyCoins, PlacementHint, PlacementRevive:
		return true
	}
	return false
}

// Status is the server-side state of a reward intent. Transitions are
// monotonic: pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusGranted  Status = "granted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether s is a dead-end status. A terminal intent must
// never be polled or acted on again.
func (s Status) Terminal() bool {
	switch s {
	case StatusGranted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Machine-readable failure codes returned by the ledger. Surfaced verbatim
// to messaging.
const (
	FailureDailyLimitReached    = "DAILY_LIMIT_REACHED"
	FailureHintBalanceNotZero   = "HINT_BALANCE_NOT_ZERO"
	FailureReviveAlreadyUsed    = "REVIVE_ALREADY_USED"
	FailureAdsLocked            = "ADS_LOCKED_BEFORE_LEVEL_21"
	FailureIntentExpired        = "INTENT_EXPIRED"
	FailureIntentAlreadyPending = "REWARD_INTENT_ALREADY_PENDING"
	FailureAdNotCompleted       = "AD_NOT_COMPLETED"
	FailureIntentNotFound       = "INTENT_NOT_FOUND"
)

// Intent is one server-tracked attempt to earn a reward by watching an ad.
// Server-assigned and never mutated by the client; a new attempt always
// creates a fresh intent.
type Intent struct {
	IntentID  string    `json:"intent_id"`
	Placement Placement `json:"placement"`
	Status    Status    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	Level     int       `json:"level,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// IntentStatus is the ledger's current view of one intent, including the
// placement-specific payload filled in when the reward was granted.
type IntentStatus struct {
	IntentID      string    `json:"intent_id"`
	Placement     Placement `json:"placement"`
	Status        Status    `json:"status"`
	FailureCode   string    `json:"failure_code,omitempty"`
	Coins         *int      `json:"coins,omitempty"`
	HintBalance   *int      `json:"hint_balance,omitempty"`
	ReviveGranted bool      `json:"revive_granted,omitempty"`
	UsedToday     *int      `json:"used_today,omitempty"`
	LimitToday    *int      `json:"limit_today,omitempty"`
	ResetsAt      string    `json:"resets_at,omitempty"`
}

// CreateRequest is the payload for opening a new reward intent.
// SessionID and Level are required by the backend for revive placements.
type CreateRequest struct {
	Placement Placement `json:"placement"`
	SessionID string    `json:"session_id,omitempty"`
	Level     *int      `json:"level,omitempty"`
}
