package contracts

import "time"

// ParticipantNumber is the fixed role of a participant within a session.
// Participant 1 always supplies the opening narrative; participant 2 always
// responds to it. Roles never change after creation.
type ParticipantNumber int

const (
	Participant1 ParticipantNumber = 1
	Participant2 ParticipantNumber = 2
)

// Valid reports whether n is one of the two roles.
func (n ParticipantNumber) Valid() bool { return n == Participant1 || n == Participant2 }

// Other returns the counter-party's role.
func (n ParticipantNumber) Other() ParticipantNumber {
	if n == Participant1 {
		return Participant2
	}
	return Participant1
}

// Participant is one of the two parties in a session. Both are created
// together with the session; JoinedAt is set the first time each connects.
type Participant struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Number      ParticipantNumber `json:"participant_number"`
	Token       string            `json:"token"`
	IsInitiator bool              `json:"is_initiator"`
	Email       string            `json:"email,omitempty"`
	JoinedAt    *time.Time        `json:"joined_at,omitempty"`
}

// OpeningStatement is participant 1's structured narrative: the four fixed
// answers that open a session.
type OpeningStatement struct {
	WhatHappened      string    `json:"what_happened"`
	WhatLedToIt       string    `json:"what_led_to_it"`
	HowItMadeThemFeel string    `json:"how_it_made_them_feel"`
	DesiredOutcome    string    `json:"desired_outcome"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// ResponseKind selects the form of participant 2's response.
type ResponseKind string

const (
	// ResponseAnswerSet mirrors the opening statement's four questions.
	ResponseAnswerSet ResponseKind = "answer_set"
	// ResponseDispute is a single free-text rebuttal.
	ResponseDispute ResponseKind = "dispute_text"
)

// CounterStatement is participant 2's response, in either form.
type CounterStatement struct {
	Kind              ResponseKind `json:"response_type"`
	DisputeText       string       `json:"dispute_text,omitempty"`
	WhatHappened      string       `json:"what_happened,omitempty"`
	WhatLedToIt       string       `json:"what_led_to_it,omitempty"`
	HowItMadeThemFeel string       `json:"how_it_made_them_feel,omitempty"`
	DesiredOutcome    string       `json:"desired_outcome,omitempty"`
	SubmittedAt       time.Time    `json:"submitted_at"`
}
