//go:build property
// +build property

// Package orchestrator_test contains property-based tests for the fact
// verification barrier.
package orchestrator_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/judgment"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mailer"
	"github.com/parley-labs/parley/pkg/mediation"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/orchestrator"
	"github.com/parley-labs/parley/pkg/profile"
	"github.com/parley-labs/parley/pkg/store"
)

// countingEngine answers every prompt with a minimal valid completion and
// counts how many verdicts it was asked for.
type countingEngine struct {
	verdicts atomic.Int64
}

func (e *countingEngine) Generate(_ context.Context, req llm.Request) (string, error) {
	var system, user string
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
		return `{"p1_factual_claims": [], "p2_factual_claims": [], "agreed_facts": [], "disputed_facts": [], "documented_evidence": [], "p1_desired_outcome": "x", "p2_desired_outcome": "y"}`, nil
	case strings.Contains(system, "expert mediator"):
		e.verdicts.Add(1)
		return `{"verdict": "both_partially_right", "p1_correct_behaviors": [], "p1_wrong_behaviors": [], "p2_correct_behaviors": [], "p2_wrong_behaviors": [], "justification": "split"}`, nil
	case strings.Contains(user, "disputePoints"):
		return `{"disputePoints": ["the point"]}`, nil
	case strings.Contains(user, `"facts"`):
		return `{"facts": [{"id": 1, "statement": "a", "source": "p1"}, {"id": 2, "statement": "b", "source": "p2"}, {"id": 3, "statement": "c", "source": "both"}]}`, nil
	default:
		return `{"p1": {"identity": "Unknown", "confidence": 0}, "p2": {"identity": "Unknown", "confidence": 0}, "relationship": {"type": "Unknown", "details": "", "confidence": 0}, "clues": []}`, nil
	}
}

// TestBarrierFiresExactlyOnce verifies that for any concurrent interleaving
// of verification submissions and re-submissions, the judgment is generated
// exactly once and the session always completes.
func TestBarrierFiresExactlyOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	statuses := []contracts.VerificationStatus{
		contracts.VerifyAgree, contracts.VerifyDisagree, contracts.VerifyPartially,
	}

	properties.Property("second writer releases the judgment exactly once", prop.ForAll(
		func(p1Extra, p2Extra, statusSeed int) bool {
			engine := &countingEngine{}
			orc, st, sessID, p1ID, p2ID := verificationFixture(t, engine)

			status := func(i int) contracts.VerificationStatus {
				return statuses[(statusSeed+i)%len(statuses)]
			}
			set := func(i int) contracts.VerificationSet {
				return contracts.VerificationSet{
					0: {Status: status(i)},
					1: {Status: status(i + 1)},
				}
			}

			var wg sync.WaitGroup
			submit := func(participantID string, n int) {
				for i := 0; i <= n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						// Late submissions legitimately fail once the
						// session leaves fact_verification.
						_ = orc.SubmitFactVerification(context.Background(), sessID, participantID, set(i))
					}(i)
				}
			}
			submit(p1ID, p1Extra%3)
			submit(p2ID, p2Extra%3)
			wg.Wait()

			sess, err := st.GetSession(context.Background(), sessID)
			if err != nil {
				return false
			}
			return sess.Status == contracts.StatusCompleted &&
				sess.Judgment != nil &&
				engine.verdicts.Load() == 1
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// verificationFixture builds a session already sitting at fact_verification.
func verificationFixture(t *testing.T, engine llm.Client) (*orchestrator.Orchestrator, *store.SessionStore, string, string, string) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	files, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.DiscardHandler)
	tuning := config.DefaultTuning()
	factory := func(_ *contracts.Session) orchestrator.Engines {
		return orchestrator.Engines{
			Deriver:     mediation.NewDeriver(engine, tuning.Derivation, logger),
			Accumulator: profile.NewAccumulator(engine, tuning.Analysis, logger),
			Pipeline:    judgment.NewPipeline(engine, tuning, logger),
		}
	}
	mail := mailer.New("", "", "", "", "noreply@parley.dev", "http://localhost:8080", logger)
	orc := orchestrator.New(st, files, factory, notify.NewMemoryChannel(), mail, logger)

	ctx := context.Background()
	sess, err := orc.CreateSession(ctx, orchestrator.CreateParams{
		Workflow: contracts.WorkflowAdvanced,
		Title:    "barrier",
		Initial:  "initial",
	})
	if err != nil {
		t.Fatal(err)
	}
	p1ID := sess.ParticipantByNumber(contracts.Participant1).ID
	p2ID := sess.ParticipantByNumber(contracts.Participant2).ID

	if err := orc.SubmitOpening(ctx, sess.ID, p1ID, contracts.OpeningStatement{
		WhatHappened: "a", WhatLedToIt: "b", HowItMadeThemFeel: "c", DesiredOutcome: "d",
	}); err != nil {
		t.Fatal(err)
	}
	if err := orc.Decide(ctx, sess.ID, p2ID, true); err != nil {
		t.Fatal(err)
	}
	if err := orc.SubmitResponse(ctx, sess.ID, p2ID, contracts.CounterStatement{
		Kind: contracts.ResponseDispute, DisputeText: "disagree",
	}); err != nil {
		t.Fatal(err)
	}
	if err := orc.SubmitContext(ctx, sess.ID, p1ID, "p1 context"); err != nil {
		t.Fatal(err)
	}
	if err := orc.SubmitContext(ctx, sess.ID, p2ID, "p2 context"); err != nil {
		t.Fatal(err)
	}
	return orc, st, sess.ID, p1ID, p2ID
}
