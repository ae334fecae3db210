// Package notify carries orchestrator events to connected participants.
// Delivery is fire-and-forget: a failed publish never rolls back persisted
// state, and a participant who reconnects reconstructs current state from
// the session store, not from replayed events.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/parley-labs/parley/pkg/contracts"
)

// EventType names one orchestrator-emitted event.
type EventType string

const (
	// Acknowledgments to the submitting participant.
	EventOpeningReceived      EventType = "opening_received"
	EventResponseReceived     EventType = "response_received"
	EventContextReceived      EventType = "context_received"
	EventVerificationReceived EventType = "verification_received"

	// Artifact announcements to the counter-party (or both).
	EventSummaryReady       EventType = "summary_ready"
	EventSessionAccepted    EventType = "session_accepted"
	EventSessionRejected    EventType = "session_rejected"
	EventDisputePointsReady EventType = "dispute_points_ready"
	EventContextRequested   EventType = "context_requested"
	EventFactListReady      EventType = "fact_list_ready"
	EventVerificationWait   EventType = "verification_pending"
	EventJudgmentReady      EventType = "judgment_ready"

	// EventError signals a retryable failure (verdict generation, storage).
	// It never carries raw engine errors.
	EventError EventType = "error"
)

// Event is one notification scoped to a single participant. Payloads carry
// only what the receiving participant needs; in particular a fact-list
// event carries only that participant's filtered view.
type Event struct {
	ID        string                     `json:"id"`
	Type      EventType                  `json:"type"`
	SessionID string                     `json:"session_id"`
	Recipient contracts.ParticipantNumber `json:"recipient"`
	Payload   any                        `json:"payload,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewEvent constructs an event addressed to one participant.
func NewEvent(t EventType, sessionID string, recipient contracts.ParticipantNumber, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
