package api

import (
	"time"

	"github.com/parley-labs/parley/pkg/contracts"
)

// SessionView is the participant-scoped projection of a session. In blind
// visibility each side sees only derived artifacts of the other side's
// submissions, never the raw text; the internal profile is not part of the
// view (the debug endpoint serves it separately).
type SessionView struct {
	ID              string                        `json:"id"`
	CreatedAt       time.Time                     `json:"created_at"`
	Status          contracts.Status              `json:"status"`
	Visibility      contracts.Visibility          `json:"visibility"`
	Workflow        contracts.Workflow            `json:"workflow"`
	Language        contracts.Language            `json:"language"`
	Title           string                        `json:"title"`
	Initial         string                        `json:"initial_description,omitempty"`
	Opening         *contracts.OpeningStatement   `json:"opening,omitempty"`
	Counter         *contracts.CounterStatement   `json:"response,omitempty"`
	OpeningSummary  string                        `json:"opening_summary,omitempty"`
	Briefing        string                        `json:"briefing,omitempty"`
	ResponseSummary string                        `json:"response_summary,omitempty"`
	DisputePoints   []string                      `json:"dispute_points,omitempty"`
	Facts           []contracts.Fact              `json:"facts,omitempty"`
	Verifications   contracts.VerificationSet     `json:"verifications,omitempty"`
	Judgment        *contracts.Judgment           `json:"judgment,omitempty"`
	Participants    []ParticipantView             `json:"participants"`
	Viewer          contracts.ParticipantNumber   `json:"viewer,omitempty"`
}

// ParticipantView omits tokens and identifiers of the counterparty.
type ParticipantView struct {
	Number      contracts.ParticipantNumber `json:"number"`
	IsInitiator bool                        `json:"is_initiator"`
	Joined      bool                        `json:"joined"`
}

// NewSessionView projects sess for the given viewer. Viewer 0 means an
// unauthenticated read and hides all raw submissions.
func NewSessionView(sess *contracts.Session, viewer contracts.ParticipantNumber) SessionView {
	v := SessionView{
		ID:              sess.ID,
		CreatedAt:       sess.CreatedAt,
		Status:          sess.Status,
		Visibility:      sess.Visibility,
		Workflow:        sess.Workflow,
		Language:        sess.Language,
		Title:           sess.Title,
		OpeningSummary:  sess.OpeningSummary,
		Briefing:        sess.Briefing,
		ResponseSummary: sess.ResponseSummary,
		DisputePoints:   sess.DisputePoints,
		Viewer:          viewer,
	}
	for _, p := range sess.Participants {
		v.Participants = append(v.Participants, ParticipantView{
			Number:      p.Number,
			IsInitiator: p.IsInitiator,
			Joined:      p.JoinedAt != nil,
		})
	}

	open := sess.Visibility == contracts.VisibilityOpen
	if viewer == contracts.Participant1 || (open && viewer.Valid()) {
		v.Initial = sess.InitialDescription
		v.Opening = sess.Opening
	}
	if viewer == contracts.Participant2 || (open && viewer.Valid()) {
		v.Counter = sess.Counter
	}

	if viewer.Valid() && len(sess.Facts) > 0 {
		v.Facts = contracts.ViewFor(sess.Facts, viewer).Facts
		if viewer == contracts.Participant1 {
			v.Verifications = sess.P1Verifications
		} else {
			v.Verifications = sess.P2Verifications
		}
	}

	if sess.Status == contracts.StatusCompleted {
		v.Judgment = sess.Judgment
	}
	return v
}
