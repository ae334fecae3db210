// Package profile infers who the two participants are and how they relate,
// revising the inference after each narrative stage. The inference is
// background signal for the judgment pipeline; it is never authoritative
// and never blocks the protocol.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
)

const systemPrompt = `You are an expert analyst identifying participant identities and relationships from mediation text.
Your task is to deduce WHO each participant is (e.g., husband, wife, employee, manager, neighbor, friend, parent, child, etc.) and their RELATIONSHIP.

IMPORTANT RULES:
- Extract ONLY what can be reasonably inferred from the text
- Assign confidence scores (0.0 to 1.0) for each deduction
- If evidence is weak or contradictory, use low confidence scores
- Consider pronouns, relationship terms, and context clues
- Update your previous analysis if new information confirms or contradicts it`

// StageInput is the narrative text of one stage, already rendered to the
// labeled form the analysis prompt expects.
type StageInput struct {
	Stage contracts.Stage
	Text  string
}

// OpeningInput renders participant 1's opening statement for analysis.
func OpeningInput(o *contracts.OpeningStatement) StageInput {
	return StageInput{
		Stage: contracts.StageOpening,
		Text: fmt.Sprintf("P1 INITIAL ANSWERS:\n- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
			o.WhatHappened, o.WhatLedToIt, o.HowItMadeThemFeel, o.DesiredOutcome),
	}
}

// ResponseInput renders participant 2's response for analysis.
func ResponseInput(c *contracts.CounterStatement) StageInput {
	if c.Kind == contracts.ResponseDispute {
		return StageInput{
			Stage: contracts.StageResponse,
			Text:  "P2 RESPONSE:\n- Dispute: " + c.DisputeText,
		}
	}
	return StageInput{
		Stage: contracts.StageResponse,
		Text: fmt.Sprintf("P2 RESPONSE:\n- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
			c.WhatHappened, c.WhatLedToIt, c.HowItMadeThemFeel, c.DesiredOutcome),
	}
}

// ContextInput renders one participant's additional context for analysis.
func ContextInput(stage contracts.Stage, text string) StageInput {
	label := "P1"
	if stage == contracts.StageContextP2 {
		label = "P2"
	}
	return StageInput{Stage: stage, Text: label + " ADDITIONAL CONTEXT:\n" + text}
}

// Accumulator feeds each stage's narrative plus the entire prior inference
// back to the generation engine so it revises rather than restarts.
type Accumulator struct {
	engine llm.Client
	params config.GenerationParams
	logger *slog.Logger
	now    func() time.Time
}

func NewAccumulator(engine llm.Client, params config.GenerationParams, logger *slog.Logger) *Accumulator {
	return &Accumulator{engine: engine, params: params, logger: logger, now: time.Now}
}

// Accumulate returns the updated inference. It never fails past its
// boundary: on any generation or parse error the existing profile comes
// back unchanged, or a fully-unknown shell if there is none yet.
func (a *Accumulator) Accumulate(ctx context.Context, existing *contracts.Profile, in StageInput) *contracts.Profile {
	user := a.userPrompt(existing, in)

	out, err := a.engine.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: a.params.Temperature,
		MaxTokens:   a.params.MaxTokens,
	})
	if err == nil {
		// The engine sometimes returns confidences as strings or out of
		// range; decode loosely and coerce rather than failing the stage.
		var raw struct {
			P1 struct {
				Identity   string `json:"identity"`
				Confidence any    `json:"confidence"`
			} `json:"p1"`
			P2 struct {
				Identity   string `json:"identity"`
				Confidence any    `json:"confidence"`
			} `json:"p2"`
			Relationship struct {
				Type       string `json:"type"`
				Details    string `json:"details"`
				Confidence any    `json:"confidence"`
			} `json:"relationship"`
			Clues []string `json:"clues"`
		}
		if derr := llm.DecodeJSON(out, &raw); derr == nil {
			return &contracts.Profile{
				P1: contracts.IdentityGuess{Identity: raw.P1.Identity, Confidence: clamp(coerce(raw.P1.Confidence))},
				P2: contracts.IdentityGuess{Identity: raw.P2.Identity, Confidence: clamp(coerce(raw.P2.Confidence))},
				Relationship: contracts.RelationshipGuess{
					Type:       raw.Relationship.Type,
					Details:    raw.Relationship.Details,
					Confidence: clamp(coerce(raw.Relationship.Confidence)),
				},
				Clues:     raw.Clues,
				LastStage: in.Stage,
				UpdatedAt: a.now(),
			}
		} else {
			err = derr
		}
	}

	a.logger.Warn("participant analysis failed, keeping prior inference", "stage", in.Stage, "error", err)
	if existing != nil {
		return existing
	}
	shell := contracts.UnknownProfile()
	shell.LastStage = in.Stage
	shell.UpdatedAt = a.now()
	return shell
}

func (a *Accumulator) userPrompt(existing *contracts.Profile, in StageInput) string {
	var b strings.Builder
	if existing != nil {
		fmt.Fprintf(&b, `
PREVIOUS ANALYSIS TO VALIDATE/UPDATE:
- P1 identity: %s (confidence: %g)
- P2 identity: %s (confidence: %g)
- Relationship: %s - %s (confidence: %g)
- Previous clues: %s
`,
			orUnknown(existing.P1.Identity), existing.P1.Confidence,
			orUnknown(existing.P2.Identity), existing.P2.Confidence,
			orUnknown(existing.Relationship.Type), existing.Relationship.Details, existing.Relationship.Confidence,
			strings.Join(existing.Clues, ", "))
	}

	fmt.Fprintf(&b, `
NEW INPUT FROM STAGE %q:
%s

Analyze and return JSON with this EXACT structure:
{
  "p1": {
    "identity": "role/relationship term (e.g., 'wife', 'employee', 'neighbor')",
    "confidence": 0.0-1.0
  },
  "p2": {
    "identity": "role/relationship term (e.g., 'husband', 'manager', 'neighbor')",
    "confidence": 0.0-1.0
  },
  "relationship": {
    "type": "relationship type (e.g., 'married couple', 'workplace', 'neighbors', 'family')",
    "details": "brief description of context (e.g., 'married couple with infant')",
    "confidence": 0.0-1.0
  },
  "clues": ["list of text clues that led to these conclusions"]
}`, in.Stage, in.Text)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// coerce turns whatever the engine put in a confidence slot into a float,
// defaulting to 0.
func coerce(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// clamp coerces a confidence into [0,1]. NaN compares false on both bounds
// and falls through to 0.
func clamp(v float64) float64 {
	if v >= 0 && v <= 1 {
		return v
	}
	if v > 1 {
		return 1
	}
	return 0
}
