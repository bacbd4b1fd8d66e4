package types

import "time"

// OutcomeStatus is the terminal state of one event's processing.
type OutcomeStatus string

const (
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"

	// OutcomePending marks an event claimed but not yet finished.
	OutcomePending OutcomeStatus = "pending"
)

// Skip reasons.
const (
	ReasonNonMessage = "non_message"
	ReasonNonText    = "non_text"
	ReasonDuplicate  = "duplicate"
)

// Failure stages.
const (
	StageCompletion = "completion"
	StageDelivery   = "delivery"
)

// Outcome is the per-event result reported in the webhook response.
type Outcome struct {
	EventID      string        `json:"event_id"`
	Status       OutcomeStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	Cause        string        `json:"cause,omitempty"`
	Stage        string        `json:"stage,omitempty"`
	FallbackSent bool          `json:"fallback_sent,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}
