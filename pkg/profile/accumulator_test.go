package profile

import (
	"context"
	"log/slog"
	"testing"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccumulator(engine llm.Client) *Accumulator {
	return NewAccumulator(engine, config.DefaultTuning().Analysis, slog.New(slog.DiscardHandler))
}

func TestAccumulateParsesAndClamps(t *testing.T) {
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return `{
			"p1": {"identity": "wife", "confidence": 1.7},
			"p2": {"identity": "husband", "confidence": "-0.3"},
			"relationship": {"type": "married couple", "details": "with infant", "confidence": "0.8"},
			"clues": ["mentions 'our baby'"]
		}`, nil
	})

	p := newAccumulator(engine).Accumulate(context.Background(), nil, ContextInput(contracts.StageContextP1, "our baby was crying"))

	assert.Equal(t, "wife", p.P1.Identity)
	assert.Equal(t, 1.0, p.P1.Confidence, "over-range clamped to 1")
	assert.Equal(t, 0.0, p.P2.Confidence, "negative clamped to 0")
	assert.Equal(t, 0.8, p.Relationship.Confidence, "string confidence coerced")
	assert.Equal(t, contracts.StageContextP1, p.LastStage)
	assert.Equal(t, []string{"mentions 'our baby'"}, p.Clues)
}

func TestAccumulateNonNumericConfidenceDefaultsToZero(t *testing.T) {
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return `{"p1": {"identity": "neighbor", "confidence": "high"}, "p2": {"identity": "neighbor", "confidence": null}, "relationship": {"type": "neighbors", "confidence": 0.5}, "clues": []}`, nil
	})

	p := newAccumulator(engine).Accumulate(context.Background(), nil, OpeningInput(&contracts.OpeningStatement{WhatHappened: "the fence fell"}))

	assert.Equal(t, "neighbor", p.P1.Identity)
	assert.Equal(t, 0.0, p.P1.Confidence)
	assert.Equal(t, 0.0, p.P2.Confidence)
	assert.Equal(t, 0.5, p.Relationship.Confidence)
}

func TestAccumulateFailureKeepsExisting(t *testing.T) {
	failing := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", llm.ErrGeneration
	})
	existing := &contracts.Profile{
		P1: contracts.IdentityGuess{Identity: "employee", Confidence: 0.6},
		P2: contracts.IdentityGuess{Identity: "manager", Confidence: 0.7},
	}

	p := newAccumulator(failing).Accumulate(context.Background(), existing,
		ResponseInput(&contracts.CounterStatement{Kind: contracts.ResponseDispute, DisputeText: "that is not what happened"}))
	assert.Same(t, existing, p, "existing inference returned unchanged")
}

func TestAccumulateFailureWithoutExistingReturnsUnknownShell(t *testing.T) {
	failing := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "not json", nil
	})

	p := newAccumulator(failing).Accumulate(context.Background(), nil, ContextInput(contracts.StageContextP2, "x"))
	require.NotNil(t, p)
	assert.Equal(t, "unknown", p.P1.Identity)
	assert.Equal(t, 0.0, p.P1.Confidence)
	assert.False(t, p.Known())
	assert.Equal(t, contracts.StageContextP2, p.LastStage)
}

// Replaying the same stage inputs with a deterministic stub always yields
// the same final confidences.
func TestAccumulateDeterministic(t *testing.T) {
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return `{"p1": {"identity": "tenant", "confidence": 0.4}, "p2": {"identity": "landlord", "confidence": 0.6}, "relationship": {"type": "rental", "confidence": 0.5}, "clues": ["rent mentioned"]}`, nil
	})

	run := func() *contracts.Profile {
		a := newAccumulator(engine)
		var p *contracts.Profile
		inputs := []StageInput{
			OpeningInput(&contracts.OpeningStatement{WhatHappened: "rent went up"}),
			ResponseInput(&contracts.CounterStatement{Kind: contracts.ResponseDispute, DisputeText: "costs went up"}),
			ContextInput(contracts.StageContextP1, "a"),
			ContextInput(contracts.StageContextP2, "b"),
		}
		for _, in := range inputs {
			p = a.Accumulate(context.Background(), p, in)
		}
		return p
	}

	first, second := run(), run()
	assert.Equal(t, first.P1.Confidence, second.P1.Confidence)
	assert.Equal(t, first.P2.Confidence, second.P2.Confidence)
	assert.Equal(t, first.Relationship.Confidence, second.Relationship.Confidence)
}

// The prior inference travels back to the engine so it revises rather than
// restarts.
func TestAccumulateFeedsPriorAnalysis(t *testing.T) {
	var got llm.Request
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		return "", llm.ErrGeneration
	})
	existing := &contracts.Profile{
		P1:    contracts.IdentityGuess{Identity: "wife", Confidence: 0.9},
		Clues: []string{"wedding mentioned"},
	}

	newAccumulator(engine).Accumulate(context.Background(), existing, ContextInput(contracts.StageContextP1, "x"))

	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "PREVIOUS ANALYSIS TO VALIDATE/UPDATE")
	assert.Contains(t, got.Messages[1].Content, "wife")
	assert.Contains(t, got.Messages[1].Content, "wedding mentioned")
}
