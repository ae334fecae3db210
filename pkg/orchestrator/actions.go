package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/profile"
)

// SubmitOpening records participant 1's four structured answers, derives the
// neutral summary and the invitation briefing, and moves the session to
// waiting_p2_acceptance.
func (o *Orchestrator) SubmitOpening(ctx context.Context, sessionID, participantID string, opening contracts.OpeningStatement) error {
	return o.withSession(ctx, sessionID, "SubmitOpening", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status != contracts.StatusWaitingP2Join {
			return fmt.Errorf("submit opening in %s: %w", sess.Status, ErrInvalidState)
		}
		if _, err := actor(sess, participantID, contracts.Participant1); err != nil {
			return err
		}
		if strings.TrimSpace(opening.WhatHappened) == "" {
			return fmt.Errorf("opening statement needs an account of what happened: %w", ErrBadPayload)
		}

		opening.SubmittedAt = o.now().UTC()
		sess.Opening = &opening

		eng := o.engines(sess)
		sess.Profile = eng.Accumulator.Accumulate(ctx, sess.Profile, profile.OpeningInput(sess.Opening))

		ev := o.evidence(ctx, sessionID)
		sess.OpeningSummary = eng.Deriver.OpeningSummary(ctx, sess, ev)
		sess.Briefing = eng.Deriver.Briefing(ctx, sess)
		sess.Status = contracts.StatusWaitingP2Acceptance

		if err := o.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save opening: %w", err)
		}

		p2 := sess.ParticipantByNumber(contracts.Participant2)
		o.emit(ctx, notify.NewEvent(notify.EventOpeningReceived, sessionID, contracts.Participant1, map[string]any{
			"p2_token": p2.Token,
		}))
		o.emit(ctx, notify.NewEvent(notify.EventSummaryReady, sessionID, contracts.Participant2, map[string]any{
			"summary":  sess.OpeningSummary,
			"briefing": sess.Briefing,
		}))
		if addr := p2.Email; addr != "" {
			go o.mail.SessionInvitation(addr, sessionID, p2.Token)
		}
		return nil
	})
}

// Decide records participant 2's choice to engage. Rejection is terminal.
func (o *Orchestrator) Decide(ctx context.Context, sessionID, participantID string, accept bool) error {
	return o.withSession(ctx, sessionID, "Decide", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status != contracts.StatusWaitingP2Acceptance {
			return fmt.Errorf("decide in %s: %w", sess.Status, ErrInvalidState)
		}
		if _, err := actor(sess, participantID, contracts.Participant2); err != nil {
			return err
		}

		if accept {
			sess.Status = contracts.StatusP2Answering
		} else {
			sess.Status = contracts.StatusRejected
		}
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save decision: %w", err)
		}

		if accept {
			o.emit(ctx, notify.NewEvent(notify.EventSessionAccepted, sessionID, contracts.Participant1, nil))
			o.emit(ctx, notify.NewEvent(notify.EventSessionAccepted, sessionID, contracts.Participant2, nil))
			return nil
		}
		o.emit(ctx, notify.NewEvent(notify.EventSessionRejected, sessionID, contracts.Participant1, nil))
		o.emit(ctx, notify.NewEvent(notify.EventSessionRejected, sessionID, contracts.Participant2, nil))
		if addr := o.email(sess, contracts.Participant1); addr != "" {
			go o.mail.SessionRejected(addr, sessionID)
		}
		return nil
	})
}

// SubmitResponse records participant 2's counter statement, derives the
// dispute points and the response summary, and hands the turn to
// participant 1 for additional context.
func (o *Orchestrator) SubmitResponse(ctx context.Context, sessionID, participantID string, counter contracts.CounterStatement) error {
	return o.withSession(ctx, sessionID, "SubmitResponse", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status != contracts.StatusP2Answering {
			return fmt.Errorf("submit response in %s: %w", sess.Status, ErrInvalidState)
		}
		if _, err := actor(sess, participantID, contracts.Participant2); err != nil {
			return err
		}
		switch counter.Kind {
		case contracts.ResponseDispute:
			if strings.TrimSpace(counter.DisputeText) == "" {
				return fmt.Errorf("dispute response needs text: %w", ErrBadPayload)
			}
		case contracts.ResponseAnswerSet:
			if strings.TrimSpace(counter.WhatHappened) == "" {
				return fmt.Errorf("answer set needs an account of what happened: %w", ErrBadPayload)
			}
		default:
			return fmt.Errorf("unknown response kind %q: %w", counter.Kind, ErrBadPayload)
		}

		counter.SubmittedAt = o.now().UTC()
		sess.Counter = &counter

		eng := o.engines(sess)
		sess.Profile = eng.Accumulator.Accumulate(ctx, sess.Profile, profile.ResponseInput(sess.Counter))

		ev := o.evidence(ctx, sessionID)
		sess.DisputePoints = eng.Deriver.DisputePoints(ctx, sess, ev)
		sess.ResponseSummary = eng.Deriver.ResponseSummary(ctx, sess, ev)
		sess.Status = contracts.StatusWaitingP1Context

		if err := o.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save response: %w", err)
		}

		o.emit(ctx, notify.NewEvent(notify.EventResponseReceived, sessionID, contracts.Participant2, nil))
		payload := map[string]any{
			"dispute_points":   sess.DisputePoints,
			"response_summary": sess.ResponseSummary,
		}
		// In blind mode participant 1 only ever sees the derived summary.
		if sess.Visibility == contracts.VisibilityOpen {
			payload["response"] = sess.Counter
		}
		o.emit(ctx, notify.NewEvent(notify.EventDisputePointsReady, sessionID, contracts.Participant1, payload))
		if addr := o.email(sess, contracts.Participant1); addr != "" {
			go o.mail.ResponseReceived(addr, sessionID)
		}
		return nil
	})
}

// SubmitContext records one participant's additional context. The acting
// role is dictated by status: participant 1 answers first, then participant
// 2, and participant 2's submission triggers the workflow branch.
func (o *Orchestrator) SubmitContext(ctx context.Context, sessionID, participantID, text string) error {
	return o.withSession(ctx, sessionID, "SubmitContext", func(ctx context.Context, sess *contracts.Session) error {
		var want contracts.ParticipantNumber
		switch sess.Status {
		case contracts.StatusWaitingP1Context:
			want = contracts.Participant1
		case contracts.StatusWaitingP2Context:
			want = contracts.Participant2
		case contracts.StatusGeneratingJudgment:
			// The earlier submission already advanced the session; a re-POST
			// after a generation failure retries the judgment instead.
			if known(sess, participantID) == nil {
				return fmt.Errorf("participant %s: %w", participantID, ErrWrongRole)
			}
			return o.runJudgment(ctx, sess)
		default:
			return fmt.Errorf("submit context in %s: %w", sess.Status, ErrInvalidState)
		}
		if _, err := actor(sess, participantID, want); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("context text is empty: %w", ErrBadPayload)
		}

		stage := contracts.StageContextP1
		if want == contracts.Participant2 {
			stage = contracts.StageContextP2
		}
		eng := o.engines(sess)
		sess.Profile = eng.Accumulator.Accumulate(ctx, sess.Profile, profile.ContextInput(stage, text))

		ev := o.evidence(ctx, sessionID)
		summary := eng.Deriver.ContextSummary(ctx, sess, want, text, ev)

		if want == contracts.Participant1 {
			sess.P1Context = text
			sess.P1ContextSummary = summary
			sess.Status = contracts.StatusWaitingP2Context
			if err := o.store.SaveSession(ctx, sess); err != nil {
				return fmt.Errorf("save context: %w", err)
			}
			o.emit(ctx, notify.NewEvent(notify.EventContextReceived, sessionID, contracts.Participant1, nil))
			o.emit(ctx, notify.NewEvent(notify.EventContextRequested, sessionID, contracts.Participant2, map[string]any{
				"context_summary": summary,
			}))
			if addr := o.email(sess, contracts.Participant2); addr != "" {
				go o.mail.ContextAdded(addr, sessionID)
			}
			return nil
		}

		sess.P2Context = text
		sess.P2ContextSummary = summary

		if sess.Workflow == contracts.WorkflowAdvanced {
			sess.Facts = eng.Deriver.FactList(ctx, sess, ev)
			sess.Status = contracts.StatusFactVerification
			if err := o.store.SaveSession(ctx, sess); err != nil {
				return fmt.Errorf("save fact list: %w", err)
			}
			o.emit(ctx, notify.NewEvent(notify.EventContextReceived, sessionID, contracts.Participant2, nil))
			for _, n := range []contracts.ParticipantNumber{contracts.Participant1, contracts.Participant2} {
				o.emit(ctx, notify.NewEvent(notify.EventFactListReady, sessionID, n, map[string]any{
					"facts": contracts.ViewFor(sess.Facts, n).Facts,
				}))
			}
			return nil
		}

		sess.Status = contracts.StatusGeneratingJudgment
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save context: %w", err)
		}
		o.emit(ctx, notify.NewEvent(notify.EventContextReceived, sessionID, contracts.Participant2, nil))
		return o.runJudgment(ctx, sess)
	})
}

// SubmitFactVerification records one participant's verdicts over their
// filtered fact view. Re-submission overwrites the earlier set; the second
// distinct participant to arrive releases the judgment exactly once.
func (o *Orchestrator) SubmitFactVerification(ctx context.Context, sessionID, participantID string, set contracts.VerificationSet) error {
	return o.withSession(ctx, sessionID, "SubmitFactVerification", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status == contracts.StatusGeneratingJudgment {
			if known(sess, participantID) == nil {
				return fmt.Errorf("participant %s: %w", participantID, ErrWrongRole)
			}
			return o.runJudgment(ctx, sess)
		}
		if sess.Status != contracts.StatusFactVerification {
			return fmt.Errorf("verify facts in %s: %w", sess.Status, ErrInvalidState)
		}
		p := known(sess, participantID)
		if p == nil {
			return fmt.Errorf("participant %s: %w", participantID, ErrWrongRole)
		}
		visible := len(contracts.ViewFor(sess.Facts, p.Number).Facts)
		for pos, v := range set {
			if pos < 0 || pos >= visible {
				return fmt.Errorf("fact position %d out of range: %w", pos, ErrBadPayload)
			}
			if !v.Status.Valid() {
				return fmt.Errorf("verification status %q: %w", v.Status, ErrBadPayload)
			}
		}

		if p.Number == contracts.Participant1 {
			sess.P1Verifications = set
		} else {
			sess.P2Verifications = set
		}

		both := sess.P1Verifications != nil && sess.P2Verifications != nil
		if both {
			sess.Status = contracts.StatusGeneratingJudgment
		}
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save verification: %w", err)
		}

		o.emit(ctx, notify.NewEvent(notify.EventVerificationReceived, sessionID, p.Number, nil))
		if !both {
			o.emit(ctx, notify.NewEvent(notify.EventVerificationWait, sessionID, p.Number.Other(), nil))
			return nil
		}
		return o.runJudgment(ctx, sess)
	})
}

// RetryJudgment re-runs the judgment phase after a generation failure. It is
// idempotent: the session stays in generating_judgment until a verdict is
// produced and persisted.
func (o *Orchestrator) RetryJudgment(ctx context.Context, sessionID string) error {
	return o.withSession(ctx, sessionID, "RetryJudgment", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status != contracts.StatusGeneratingJudgment {
			return fmt.Errorf("retry judgment in %s: %w", sess.Status, ErrInvalidState)
		}
		return o.runJudgment(ctx, sess)
	})
}

// runJudgment runs sanitize plus verdict and completes the session. The
// caller must hold the session lock and have persisted the
// generating_judgment status already. On failure the status is left as is so
// the action can be retried.
func (o *Orchestrator) runJudgment(ctx context.Context, sess *contracts.Session) error {
	eng := o.engines(sess)
	ev := o.evidence(ctx, sess.ID)

	j, err := eng.Pipeline.Run(ctx, sess, sess.Profile, ev)
	if err != nil {
		o.logger.Error("judgment generation failed", "session_id", sess.ID, "error", err)
		for _, n := range []contracts.ParticipantNumber{contracts.Participant1, contracts.Participant2} {
			o.emit(ctx, notify.NewEvent(notify.EventError, sess.ID, n, map[string]any{
				"message": "Judgment generation failed. The judgment can be retried.",
			}))
		}
		return fmt.Errorf("run judgment: %w", err)
	}

	sess.Judgment = j
	sess.Status = contracts.StatusCompleted
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save judgment: %w", err)
	}
	o.logger.Info("session completed", "session_id", sess.ID, "verdict", j.Verdict)

	for _, n := range []contracts.ParticipantNumber{contracts.Participant1, contracts.Participant2} {
		o.emit(ctx, notify.NewEvent(notify.EventJudgmentReady, sess.ID, n, map[string]any{
			"judgment": j,
		}))
		if addr := o.email(sess, n); addr != "" {
			go o.mail.JudgmentReady(addr, sess.ID)
		}
	}
	return nil
}
