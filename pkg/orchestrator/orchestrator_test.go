package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/judgment"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mailer"
	"github.com/parley-labs/parley/pkg/mediation"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/profile"
	"github.com/parley-labs/parley/pkg/store"
)

const stubRecord = `{
	"p1_factual_claims": ["P1 paid the deposit"],
	"p2_factual_claims": ["P2 kept the deposit"],
	"agreed_facts": ["a deposit changed hands"],
	"disputed_facts": [{"topic": "refund terms", "p1_version": "refundable", "p2_version": "non-refundable"}],
	"documented_evidence": [],
	"p1_desired_outcome": "refund",
	"p2_desired_outcome": "keep the deposit"
}`

const stubVerdict = `{
	"verdict": "p1_more_right",
	"p1_correct_behaviors": ["kept the receipt"],
	"p1_wrong_behaviors": [],
	"p2_correct_behaviors": [],
	"p2_wrong_behaviors": ["ignored the written terms"],
	"justification": "The receipt states the deposit was refundable."
}`

const stubFacts = `{"facts": [
	{"id": 1, "statement": "P1 paid a deposit", "source": "p1"},
	{"id": 2, "statement": "P2 kept the deposit", "source": "p2"},
	{"id": 3, "statement": "a deposit changed hands", "source": "both"}
]}`

// stubEngine routes by prompt shape the way a live model would be asked,
// and counts verdict calls so tests can assert exactly-once judgment.
// cancelVerdict, when set, aborts the caller's context during the verdict
// call, the one generation failure that must surface as a retryable error.
type stubEngine struct {
	verdictCalls  atomic.Int64
	cancelVerdict atomic.Value // context.CancelFunc
}

func (s *stubEngine) Generate(ctx context.Context, req llm.Request) (string, error) {
	system, user := "", ""
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = m.Content
		case llm.RoleUser:
			user = m.Content
		}
	}
	switch {
	case strings.Contains(system, "forensic analyst"):
		return stubRecord, nil
	case strings.Contains(system, "expert mediator"):
		s.verdictCalls.Add(1)
		if cancel, ok := s.cancelVerdict.Load().(context.CancelFunc); ok && cancel != nil {
			s.cancelVerdict.Store(context.CancelFunc(nil))
			cancel()
			return "", ctx.Err()
		}
		return stubVerdict, nil
	case strings.Contains(system, "expert analyst"):
		return `{"p1": {"identity": "tenant", "confidence": 0.8}, "p2": {"identity": "landlord", "confidence": 0.7}, "relationship": {"type": "rental", "details": "", "confidence": 0.6}, "clues": []}`, nil
	case strings.Contains(user, "disputePoints"):
		return `{"disputePoints": ["whether the deposit was refundable"]}`, nil
	case strings.Contains(user, `"facts"`):
		return stubFacts, nil
	default:
		return "a neutral generated summary", nil
	}
}

type fixture struct {
	orc     *Orchestrator
	channel *notify.MemoryChannel
	engine  *stubEngine
	store   *store.SessionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	files, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	engine := &stubEngine{}
	tuning := config.DefaultTuning()
	factory := func(sess *contracts.Session) Engines {
		return Engines{
			Deriver:     mediation.NewDeriver(engine, tuning.Derivation, logger),
			Accumulator: profile.NewAccumulator(engine, tuning.Analysis, logger),
			Pipeline:    judgment.NewPipeline(engine, tuning, logger),
		}
	}
	channel := notify.NewMemoryChannel()
	mail := mailer.New("", "", "", "", "noreply@parley.dev", "http://localhost:8080", logger)

	return &fixture{
		orc:     New(st, files, factory, channel, mail, logger),
		channel: channel,
		engine:  engine,
		store:   st,
	}
}

func (f *fixture) create(t *testing.T, workflow contracts.Workflow, visibility contracts.Visibility) *contracts.Session {
	t.Helper()
	sess, err := f.orc.CreateSession(context.Background(), CreateParams{
		Visibility: visibility,
		Workflow:   workflow,
		Language:   contracts.LanguageEnglish,
		Title:      "deposit dispute",
		Initial:    "my landlord kept my deposit",
	})
	require.NoError(t, err)
	return sess
}

func opening() contracts.OpeningStatement {
	return contracts.OpeningStatement{
		WhatHappened:      "the landlord kept my full deposit",
		WhatLedToIt:       "I moved out after the lease ended",
		HowItMadeThemFeel: "cheated",
		DesiredOutcome:    "full refund",
	}
}

func counter() contracts.CounterStatement {
	return contracts.CounterStatement{
		Kind:        contracts.ResponseDispute,
		DisputeText: "the deposit covered repainting, per the lease",
	}
}

// advance walks a fresh session up to waiting for P2's context.
func (f *fixture) advance(t *testing.T, sess *contracts.Session) (p1ID, p2ID string) {
	t.Helper()
	ctx := context.Background()
	p1ID = sess.ParticipantByNumber(contracts.Participant1).ID
	p2ID = sess.ParticipantByNumber(contracts.Participant2).ID
	require.NoError(t, f.orc.SubmitOpening(ctx, sess.ID, p1ID, opening()))
	require.NoError(t, f.orc.Decide(ctx, sess.ID, p2ID, true))
	require.NoError(t, f.orc.SubmitResponse(ctx, sess.ID, p2ID, counter()))
	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p1ID, "I have the receipt"))
	return p1ID, p2ID
}

func TestSimpleWorkflowRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	_, p2ID := f.advance(t, sess)

	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p2ID, "the lease allows deductions"))

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, got.Status)
	require.NotNil(t, got.Judgment)
	assert.Equal(t, contracts.VerdictP1MoreRight, got.Judgment.Verdict)
	require.NotNil(t, got.Judgment.Sanitized)
	assert.Equal(t, "refund", got.Judgment.Sanitized.P1DesiredOutcome)
	assert.NotEmpty(t, got.OpeningSummary)
	assert.NotEmpty(t, got.Briefing)
	assert.NotEmpty(t, got.DisputePoints)
	assert.Equal(t, int64(1), f.engine.verdictCalls.Load())

	var ready int
	for _, ev := range f.channel.Events(sess.ID) {
		if ev.Type == notify.EventJudgmentReady {
			ready++
		}
	}
	assert.Equal(t, 2, ready)
}

func TestContextSubmissionStoredVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityBlind)
	_, p2ID := f.advance(t, sess)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "I have the receipt", got.P1Context)
	assert.Equal(t, "a neutral generated summary", got.P1ContextSummary)

	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p2ID, "the lease names repainting on page two"))

	got, err = f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "the lease names repainting on page two", got.P2Context)
	assert.Equal(t, "a neutral generated summary", got.P2ContextSummary)
}

func TestRejectionIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	p1ID := sess.ParticipantByNumber(contracts.Participant1).ID
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID

	require.NoError(t, f.orc.SubmitOpening(ctx, sess.ID, p1ID, opening()))
	require.NoError(t, f.orc.Decide(ctx, sess.ID, p2ID, false))

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, got.Status)

	err = f.orc.SubmitResponse(ctx, sess.ID, p2ID, counter())
	assert.ErrorIs(t, err, ErrInvalidState)
	err = f.orc.Decide(ctx, sess.ID, p2ID, true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestIllegalActionLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID

	before, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	err = f.orc.SubmitResponse(ctx, sess.ID, p2ID, counter())
	assert.ErrorIs(t, err, ErrInvalidState)

	after, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWrongRoleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID

	err := f.orc.SubmitOpening(ctx, sess.ID, p2ID, opening())
	assert.ErrorIs(t, err, ErrWrongRole)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusWaitingP2Join, got.Status)
	assert.Nil(t, got.Opening)
}

func TestBlindModeHidesRawResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityBlind)
	p1ID := sess.ParticipantByNumber(contracts.Participant1).ID
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID
	require.NoError(t, f.orc.SubmitOpening(ctx, sess.ID, p1ID, opening()))
	require.NoError(t, f.orc.Decide(ctx, sess.ID, p2ID, true))
	require.NoError(t, f.orc.SubmitResponse(ctx, sess.ID, p2ID, counter()))

	for _, ev := range f.channel.Events(sess.ID) {
		if ev.Type != notify.EventDisputePointsReady {
			continue
		}
		payload, ok := ev.Payload.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, payload, "response_summary")
		assert.NotContains(t, payload, "response")
		return
	}
	t.Fatal("dispute points event not published")
}

func TestAdvancedWorkflowFactBarrier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowAdvanced, contracts.VisibilityOpen)
	p1ID, p2ID := f.advance(t, sess)
	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p2ID, "the lease allows deductions"))

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFactVerification, got.Status)
	require.Len(t, got.Facts, 3)

	// P1 verifies facts sourced p2 or both, P2 those sourced p1 or both.
	assert.Len(t, contracts.ViewFor(got.Facts, contracts.Participant1).Facts, 2)
	assert.Len(t, contracts.ViewFor(got.Facts, contracts.Participant2).Facts, 2)

	one := contracts.VerificationSet{
		0: {Status: contracts.VerifyDisagree, Comment: "not what the lease says"},
		1: {Status: contracts.VerifyAgree},
	}
	require.NoError(t, f.orc.SubmitFactVerification(ctx, sess.ID, p1ID, one))

	mid, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFactVerification, mid.Status)
	assert.Equal(t, int64(0), f.engine.verdictCalls.Load())

	// Re-submission before the barrier closes overwrites the earlier set.
	redo := contracts.VerificationSet{0: {Status: contracts.VerifyPartially}}
	require.NoError(t, f.orc.SubmitFactVerification(ctx, sess.ID, p1ID, redo))
	mid, err = f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, redo, mid.P1Verifications)

	require.NoError(t, f.orc.SubmitFactVerification(ctx, sess.ID, p2ID, contracts.VerificationSet{
		0: {Status: contracts.VerifyAgree},
	}))

	done, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, done.Status)
	require.NotNil(t, done.Judgment)
	assert.Equal(t, int64(1), f.engine.verdictCalls.Load())
}

func TestFactVerificationRejectsBadPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowAdvanced, contracts.VisibilityOpen)
	p1ID, p2ID := f.advance(t, sess)
	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p2ID, "context"))

	err := f.orc.SubmitFactVerification(ctx, sess.ID, p1ID, contracts.VerificationSet{
		7: {Status: contracts.VerifyAgree},
	})
	assert.ErrorIs(t, err, ErrBadPayload)

	err = f.orc.SubmitFactVerification(ctx, sess.ID, p1ID, contracts.VerificationSet{
		0: {Status: "maybe"},
	})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestVerdictFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	_, p2ID := f.advance(t, sess)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.engine.cancelVerdict.Store(context.CancelFunc(cancel))
	err := f.orc.SubmitContext(runCtx, sess.ID, p2ID, "the lease allows deductions")
	require.Error(t, err)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusGeneratingJudgment, got.Status)
	assert.Nil(t, got.Judgment)

	var errored bool
	for _, ev := range f.channel.Events(sess.ID) {
		if ev.Type == notify.EventError {
			errored = true
		}
	}
	assert.True(t, errored)

	require.NoError(t, f.orc.RetryJudgment(ctx, sess.ID))

	got, err = f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, got.Status)
	require.NotNil(t, got.Judgment)
}

func TestResubmittingContextRetriesJudgment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	_, p2ID := f.advance(t, sess)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.engine.cancelVerdict.Store(context.CancelFunc(cancel))
	require.Error(t, f.orc.SubmitContext(runCtx, sess.ID, p2ID, "the lease allows deductions"))

	// A second POST of the same action while the judgment is pending retries
	// the generation instead of failing with an invalid-state error.
	require.NoError(t, f.orc.SubmitContext(ctx, sess.ID, p2ID, "the lease allows deductions"))

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, got.Status)
}

func TestRetryJudgmentOnlyWhileGenerating(t *testing.T) {
	f := newFixture(t)
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	err := f.orc.RetryJudgment(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestJoinByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	token := sess.ParticipantByNumber(contracts.Participant2).Token

	got, p, err := f.orc.Join(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, contracts.Participant2, p.Number)
	require.NotNil(t, p.JoinedAt)
	first := *p.JoinedAt

	time.Sleep(5 * time.Millisecond)
	_, p, err = f.orc.Join(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first, *p.JoinedAt)

	_, _, err = f.orc.Join(ctx, "no-such-token")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUploadAndDeleteAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.create(t, contracts.WorkflowSimple, contracts.VisibilityOpen)
	p1ID := sess.ParticipantByNumber(contracts.Participant1).ID
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID

	a, err := f.orc.UploadAttachment(ctx, sess.ID, p1ID, contracts.StageOpening, "receipt.txt", "text/plain", []byte("deposit: 900, refundable"))
	require.NoError(t, err)
	assert.Equal(t, contracts.AttachmentText, a.Kind)

	got, data, err := f.orc.OpenAttachment(ctx, sess.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "receipt.txt", got.OriginalName)
	assert.Equal(t, []byte("deposit: 900, refundable"), data)

	_, err = f.orc.UploadAttachment(ctx, sess.ID, p1ID, contracts.StageOpening, "x.bin", "application/octet-stream", []byte{1})
	assert.ErrorIs(t, err, ErrBadPayload)

	err = f.orc.DeleteAttachment(ctx, sess.ID, p2ID, a.ID)
	assert.ErrorIs(t, err, ErrWrongRole)

	require.NoError(t, f.orc.DeleteAttachment(ctx, sess.ID, p1ID, a.ID))
	_, _, err = f.orc.OpenAttachment(ctx, sess.ID, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
