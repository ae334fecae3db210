// Package orchestrator drives the negotiation state machine. Every action
// runs load, validate, mutate, persist under the owning session's lock;
// illegal actions are rejected with no mutation, and event delivery happens
// after persistence and never rolls anything back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/judgment"
	"github.com/parley-labs/parley/pkg/mailer"
	"github.com/parley-labs/parley/pkg/mediation"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/profile"
	"github.com/parley-labs/parley/pkg/store"
)

var (
	// ErrInvalidState is a validation error: the action's precondition does
	// not match the session's current status. The stored session is left
	// untouched.
	ErrInvalidState = errors.New("action not allowed in current session state")
	// ErrWrongRole is a validation error: the actor's participant number
	// does not match the role the transition expects.
	ErrWrongRole = errors.New("action not allowed for this participant")
	// ErrBadPayload is a validation error for malformed submissions.
	ErrBadPayload = errors.New("invalid payload")
)

var tracer = otel.Tracer("github.com/parley-labs/parley/pkg/orchestrator")

// Engines groups the generation-backed collaborators. A per-session
// endpoint override swaps the underlying client, never the collaborators'
// behavior.
type Engines struct {
	Deriver     *mediation.Deriver
	Accumulator *profile.Accumulator
	Pipeline    *judgment.Pipeline
}

// EngineFactory returns the engine set for a session, honoring its
// generation override if any.
type EngineFactory func(sess *contracts.Session) Engines

// Tracker records an action's start and completion for metrics. The
// observability provider's TrackAction satisfies it.
type Tracker func(ctx context.Context, action, sessionID string) (context.Context, func(error))

// Orchestrator owns all session mutation.
type Orchestrator struct {
	store   *store.SessionStore
	files   *store.FileStore
	engines EngineFactory
	channel notify.Channel
	mail    *mailer.Mailer
	logger  *slog.Logger
	locks   *sessionLocks
	track   Tracker
	now     func() time.Time
}

func New(st *store.SessionStore, files *store.FileStore, engines EngineFactory, channel notify.Channel, mail *mailer.Mailer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   st,
		files:   files,
		engines: engines,
		channel: channel,
		mail:    mail,
		logger:  logger,
		locks:   newSessionLocks(),
		now:     time.Now,
	}
}

// SetTracker installs an optional per-action metrics hook.
func (o *Orchestrator) SetTracker(t Tracker) { o.track = t }

// CreateParams are the session creation options.
type CreateParams struct {
	Visibility contracts.Visibility
	Workflow   contracts.Workflow
	Language   contracts.Language
	Title      string
	Initial    string
	Model      string
	Override   *contracts.GenerationOverride
	P1Email    string
	P2Email    string
}

// CreateSession builds a fresh session with both participants and persists
// it. Participant 2's invitation mail goes out immediately when their
// address is known.
func (o *Orchestrator) CreateSession(ctx context.Context, p CreateParams) (*contracts.Session, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.CreateSession")
	defer span.End()

	if p.Visibility == "" {
		p.Visibility = contracts.VisibilityOpen
	}
	if p.Workflow == "" {
		p.Workflow = contracts.WorkflowSimple
	}
	if p.Language == "" {
		p.Language = contracts.LanguageEnglish
	}

	id := uuid.NewString()
	sess := &contracts.Session{
		ID:                 id,
		CreatedAt:          o.now().UTC(),
		Status:             contracts.StatusWaitingP2Join,
		Visibility:         p.Visibility,
		Workflow:           p.Workflow,
		Language:           p.Language,
		Model:              p.Model,
		Override:           p.Override,
		Title:              p.Title,
		InitialDescription: p.Initial,
		Participants: []contracts.Participant{
			{ID: uuid.NewString(), SessionID: id, Number: contracts.Participant1, Token: uuid.NewString(), IsInitiator: true, Email: p.P1Email},
			{ID: uuid.NewString(), SessionID: id, Number: contracts.Participant2, Token: uuid.NewString(), Email: p.P2Email},
		},
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", id))
	o.logger.Info("session created", "session_id", id, "workflow", sess.Workflow, "language", sess.Language)

	if p.P2Email != "" {
		go o.mail.SessionInvitation(p.P2Email, id, sess.Participants[1].Token)
	}
	return sess, nil
}

// Join resolves a participant token, marks first-time joins, and registers
// the participant on the notification channel.
func (o *Orchestrator) Join(ctx context.Context, token string) (*contracts.Session, *contracts.Participant, error) {
	p, err := o.store.JoinByToken(ctx, token, o.now())
	if err != nil {
		return nil, nil, err
	}
	sess, err := o.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := o.channel.Join(ctx, sess.ID, p.Number); err != nil {
		// Advisory only; the session store remains the source of truth.
		o.logger.Warn("channel join failed", "session_id", sess.ID, "participant", p.Number, "error", err)
	}
	return sess, p, nil
}

// Leave removes the participant from the channel membership table.
func (o *Orchestrator) Leave(ctx context.Context, sessionID string, n contracts.ParticipantNumber) {
	if err := o.channel.Leave(ctx, sessionID, n); err != nil {
		o.logger.Warn("channel leave failed", "session_id", sessionID, "participant", n, "error", err)
	}
}

// withSession runs fn under the session's lock with the loaded record.
// fn must persist whatever it changes; withSession never saves.
func (o *Orchestrator) withSession(ctx context.Context, sessionID, action string, fn func(ctx context.Context, sess *contracts.Session) error) error {
	ctx, span := tracer.Start(ctx, "orchestrator."+action,
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	finish := func(error) {}
	if o.track != nil {
		ctx, finish = o.track(ctx, action, sessionID)
	}

	release := o.locks.acquire(sessionID)
	defer release()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		finish(err)
		return err
	}
	err = fn(ctx, sess)
	finish(err)
	return err
}

// actor resolves and validates the acting participant.
func actor(sess *contracts.Session, participantID string, want contracts.ParticipantNumber) (*contracts.Participant, error) {
	for i := range sess.Participants {
		if sess.Participants[i].ID == participantID {
			p := &sess.Participants[i]
			if p.Number != want {
				return nil, fmt.Errorf("%w: participant %d cannot perform this action", ErrWrongRole, p.Number)
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("participant %s: %w", participantID, store.ErrNotFound)
}

// known resolves a participant id within the session without a role check.
func known(sess *contracts.Session, participantID string) *contracts.Participant {
	for i := range sess.Participants {
		if sess.Participants[i].ID == participantID {
			return &sess.Participants[i]
		}
	}
	return nil
}

// emit publishes fire-and-forget; a delivery failure never affects the
// already-persisted state change.
func (o *Orchestrator) emit(ctx context.Context, ev notify.Event) {
	if err := o.channel.Publish(ctx, ev); err != nil {
		o.logger.Warn("event not delivered", "session_id", ev.SessionID, "type", ev.Type, "error", err)
	}
}

// evidence assembles every attachment of the session for generation calls.
func (o *Orchestrator) evidence(ctx context.Context, sessionID string) mediation.Evidence {
	attachments, err := o.store.Attachments(ctx, sessionID)
	if err != nil {
		o.logger.Warn("attachment load failed, continuing without evidence", "session_id", sessionID, "error", err)
		return mediation.Evidence{}
	}
	return mediation.BuildEvidence(o.files, attachments, o.logger)
}

func (o *Orchestrator) email(sess *contracts.Session, n contracts.ParticipantNumber) string {
	if p := sess.ParticipantByNumber(n); p != nil {
		return p.Email
	}
	return ""
}
