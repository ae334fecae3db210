// Package contracts defines the shared domain types of the mediation
// protocol: sessions, participants, statements, facts, and judgments.
// Every other package speaks in these types; none of them carries behavior
// beyond validation and view construction.
package contracts

import "time"

// Status enumerates the session state machine. Transitions are monotonic
// along the protocol graph; Rejected and Completed are terminal.
type Status string

const (
	StatusWaitingP2Join       Status = "waiting_p2_join"
	StatusWaitingP2Acceptance Status = "waiting_p2_acceptance"
	StatusP2Answering         Status = "p2_answering"
	StatusWaitingP1Context    Status = "waiting_p1_context"
	StatusWaitingP2Context    Status = "waiting_p2_context"
	StatusFactVerification    Status = "fact_verification"
	StatusGeneratingJudgment  Status = "generating_judgment"
	StatusCompleted           Status = "completed"
	StatusRejected            Status = "rejected"
)

// allStatuses is the closed enumeration; anything else is a storage bug.
var allStatuses = map[Status]bool{
	StatusWaitingP2Join:       true,
	StatusWaitingP2Acceptance: true,
	StatusP2Answering:         true,
	StatusWaitingP1Context:    true,
	StatusWaitingP2Context:    true,
	StatusFactVerification:    true,
	StatusGeneratingJudgment:  true,
	StatusCompleted:           true,
	StatusRejected:            true,
}

// transitions enumerates every legal edge in the protocol graph.
var transitions = map[Status][]Status{
	StatusWaitingP2Join:       {StatusWaitingP2Acceptance},
	StatusWaitingP2Acceptance: {StatusP2Answering, StatusRejected},
	StatusP2Answering:         {StatusWaitingP1Context},
	StatusWaitingP1Context:    {StatusWaitingP2Context},
	StatusWaitingP2Context:    {StatusGeneratingJudgment, StatusFactVerification},
	StatusFactVerification:    {StatusGeneratingJudgment},
	StatusGeneratingJudgment:  {StatusCompleted},
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool { return allStatuses[s] }

// Terminal reports whether no further action is accepted for a session in s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusRejected }

// CanTransition reports whether the edge s -> next exists in the protocol graph.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Visibility controls what raw narrative crosses between participants.
type Visibility string

const (
	VisibilityOpen  Visibility = "open"
	VisibilityBlind Visibility = "blind"
)

// Workflow selects the protocol variant after the context stages.
type Workflow string

const (
	WorkflowSimple   Workflow = "simple"
	WorkflowAdvanced Workflow = "advanced"
	WorkflowDynamic  Workflow = "dynamic"
)

// Language is the session's output language. A closed set: every prompt and
// every deterministic fallback string exists per language.
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguagePortuguese Language = "pt"
)

// Stage identifies one narrative-submission point in the protocol.
type Stage string

const (
	StageOpening   Stage = "p1_initial"
	StageResponse  Stage = "p2_response"
	StageContextP1 Stage = "p1_context"
	StageContextP2 Stage = "p2_context"
)

// ValidStage reports whether s names a narrative stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageOpening, StageResponse, StageContextP1, StageContextP2:
		return true
	}
	return false
}

// GenerationOverride carries a per-session generation endpoint override
// (for locally hosted OpenAI-compatible engines).
type GenerationOverride struct {
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Session is the unit of negotiation: one complete two-party mediation
// instance plus every artifact accumulated along the protocol.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`

	// CurrentRound is unused by the live protocol; retained for
	// compatibility with the superseded round-based flow.
	CurrentRound int `json:"current_round"`

	Visibility         Visibility          `json:"visibility_mode"`
	Workflow           Workflow            `json:"workflow"`
	Language           Language            `json:"language"`
	Model              string              `json:"model,omitempty"`
	Override           *GenerationOverride `json:"generation_override,omitempty"`
	Title              string              `json:"title,omitempty"`
	InitialDescription string              `json:"initial_description,omitempty"`

	// Artifacts, each optional, filled as the protocol progresses.
	Opening         *OpeningStatement `json:"opening,omitempty"`
	Counter         *CounterStatement `json:"counter,omitempty"`
	OpeningSummary  string            `json:"opening_summary,omitempty"`
	Briefing        string            `json:"briefing,omitempty"`
	ResponseSummary string            `json:"response_summary,omitempty"`
	DisputePoints   []string          `json:"dispute_points,omitempty"`
	// P1Context and P2Context hold the participant's additional context
	// verbatim; the summaries are the derived cross-party renditions. A
	// submission survives even when the summary generation fails.
	P1Context        string          `json:"p1_context,omitempty"`
	P2Context        string          `json:"p2_context,omitempty"`
	P1ContextSummary string          `json:"p1_context_summary,omitempty"`
	P2ContextSummary string          `json:"p2_context_summary,omitempty"`
	Facts            []Fact          `json:"facts,omitempty"`
	P1Verifications  VerificationSet `json:"p1_verifications,omitempty"`
	P2Verifications  VerificationSet `json:"p2_verifications,omitempty"`
	Profile          *Profile        `json:"profile,omitempty"`
	Judgment         *Judgment       `json:"judgment,omitempty"`

	Participants []Participant `json:"participants,omitempty"`
}

// ParticipantByNumber returns the participant with the given role number,
// or nil if the session record does not carry participants.
func (s *Session) ParticipantByNumber(n ParticipantNumber) *Participant {
	for i := range s.Participants {
		if s.Participants[i].Number == n {
			return &s.Participants[i]
		}
	}
	return nil
}
