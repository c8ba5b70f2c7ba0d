package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldIntentID  = "intent_id"
	FieldCycleID   = "cycle_id"
	FieldToastID   = "toast_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Reward domain fields
	FieldPlacement   = "placement"
	FieldBlockID     = "block_id"
	FieldOutcome     = "outcome"
	FieldStatus      = "status"
	FieldFailureCode = "failure_code"
	FieldTrigger     = "trigger"

	// Network fields
	FieldBaseURL    = "base_url"
	FieldOperation  = "operation"
	FieldHTTPStatus = "http_status"
)
