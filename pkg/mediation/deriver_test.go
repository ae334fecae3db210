package mediation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingEngine() llm.Client {
	return llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", llm.ErrGeneration
	})
}

func fixedEngine(out string) llm.Client {
	return llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return out, nil
	})
}

func testDeriver(engine llm.Client) *Deriver {
	return NewDeriver(engine, config.DefaultTuning().Derivation, slog.New(slog.DiscardHandler))
}

func sessionFixture(lang contracts.Language) *contracts.Session {
	return &contracts.Session{
		ID:       "s1",
		Language: lang,
		Opening: &contracts.OpeningStatement{
			WhatHappened:      "the fence fell",
			WhatLedToIt:       "a storm",
			HowItMadeThemFeel: "frustrated",
			DesiredOutcome:    "repair it together",
		},
		Counter: &contracts.CounterStatement{
			Kind:        contracts.ResponseDispute,
			DisputeText: "the fence was already broken",
		},
	}
}

func TestOpeningSummary(t *testing.T) {
	sess := sessionFixture(contracts.LanguageEnglish)

	out := testDeriver(fixedEngine("a neutral summary")).OpeningSummary(context.Background(), sess, Evidence{})
	assert.Equal(t, "a neutral summary", out)

	// Failure restates the raw answers so the transition still advances.
	out = testDeriver(failingEngine()).OpeningSummary(context.Background(), sess, Evidence{})
	assert.Contains(t, out, "the fence fell")
	assert.Contains(t, out, "repair it together")
}

func TestBriefingFallbackLanguages(t *testing.T) {
	d := testDeriver(failingEngine())

	en := d.Briefing(context.Background(), sessionFixture(contracts.LanguageEnglish))
	assert.Contains(t, en, "accept")

	pt := d.Briefing(context.Background(), sessionFixture(contracts.LanguagePortuguese))
	assert.Contains(t, pt, "mediacao")
}

func TestDisputePoints(t *testing.T) {
	sess := sessionFixture(contracts.LanguageEnglish)

	points := testDeriver(fixedEngine("```json\n{\"disputePoints\":[\"who pays\",\"who maintains\"]}\n```")).
		DisputePoints(context.Background(), sess, Evidence{})
	assert.Equal(t, []string{"who pays", "who maintains"}, points)

	points = testDeriver(fixedEngine("not json at all")).DisputePoints(context.Background(), sess, Evidence{})
	require.Len(t, points, 1)
	assert.Contains(t, points[0], "Unable to identify")

	points = testDeriver(failingEngine()).DisputePoints(context.Background(), sess, Evidence{})
	require.Len(t, points, 1)
	assert.Contains(t, points[0], "Unable to identify")
}

func TestContextSummaryFallsBackToRawText(t *testing.T) {
	sess := sessionFixture(contracts.LanguageEnglish)
	raw := "we had already agreed to split costs last year"

	out := testDeriver(failingEngine()).ContextSummary(context.Background(), sess, contracts.Participant1, raw, Evidence{})
	assert.Equal(t, raw, out)
}

func TestFactList(t *testing.T) {
	sess := sessionFixture(contracts.LanguageEnglish)

	facts := testDeriver(fixedEngine(`{"facts":[
		{"id":1,"statement":"the fence fell","source":"both"},
		{"id":2,"statement":"p1 paid for the fence","source":"p1"},
		{"statement":"source missing","source":"p3"}]}`)).
		FactList(context.Background(), sess, Evidence{})
	require.Len(t, facts, 3)
	assert.Equal(t, contracts.SourceP1, facts[1].Source)
	// Unknown sources are attributed to both, missing ids filled in.
	assert.Equal(t, contracts.SourceBoth, facts[2].Source)
	assert.Equal(t, 3, facts[2].ID)

	facts = testDeriver(failingEngine()).FactList(context.Background(), sess, Evidence{})
	require.Len(t, facts, 1)
	assert.Equal(t, contracts.SourceBoth, facts[0].Source)
	assert.Contains(t, facts[0].Statement, "Unable to extract")
}

func TestDeriverUsesTuning(t *testing.T) {
	var got llm.Request
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		return "ok", nil
	})
	d := NewDeriver(engine, config.GenerationParams{Temperature: 0.7, MaxTokens: 2000}, slog.New(slog.DiscardHandler))
	d.Briefing(context.Background(), sessionFixture(contracts.LanguageEnglish))

	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 2000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, llm.RoleSystem, got.Messages[0].Role)
}

func TestPortuguesePrompts(t *testing.T) {
	var got llm.Request
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		return "ok", nil
	})
	testDeriver(engine)
	d := NewDeriver(engine, config.DefaultTuning().Derivation, slog.New(slog.DiscardHandler))
	d.OpeningSummary(context.Background(), sessionFixture(contracts.LanguagePortuguese), Evidence{})

	assert.True(t, strings.Contains(got.Messages[0].Content, "PORTUGUES"))
	assert.Contains(t, got.Messages[1].Content, "O que aconteceu")
}

func TestFactListErrorNeverPropagates(t *testing.T) {
	engine := llm.GenerateFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("connection refused")
	})
	facts := testDeriver(engine).FactList(context.Background(), sessionFixture(contracts.LanguageEnglish), Evidence{})
	require.NotEmpty(t, facts)
}
