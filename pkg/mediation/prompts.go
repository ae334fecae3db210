package mediation

import (
	"fmt"
	"strings"

	"github.com/parley-labs/parley/pkg/contracts"
)

// pick returns the english or portuguese variant of a prompt fragment.
// Language is a closed enum; anything that is not portuguese is english.
func pick(lang contracts.Language, en, pt string) string {
	if lang == contracts.LanguagePortuguese {
		return pt
	}
	return en
}

// languageDirective is prepended to system prompts so locally hosted models
// do not drift into the wrong language.
func languageDirective(lang contracts.Language) string {
	return pick(lang,
		"RESPOND ENTIRELY IN ENGLISH.",
		"RESPONDA INTEIRAMENTE EM PORTUGUES. NAO USE NENHUMA PALAVRA EM INGLES.")
}

func imageDirective(lang contracts.Language, hasImages bool) string {
	if !hasImages {
		return ""
	}
	return pick(lang,
		" CAREFULLY ANALYZE any attached images and extract relevant information from them.",
		" ANALISE CUIDADOSAMENTE as imagens anexadas e extraia informacoes relevantes delas.")
}

// openingBlock renders participant 1's four answers as labeled lines.
func openingBlock(lang contracts.Language, o *contracts.OpeningStatement) string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf(pick(lang,
		"- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
		"- O que aconteceu: %s\n- O que levou a isso: %s\n- Como isso os fez sentir: %s\n- Resultado desejado: %s"),
		o.WhatHappened, o.WhatLedToIt, o.HowItMadeThemFeel, o.DesiredOutcome)
}

// responseBlock renders participant 2's response in whichever form it took.
func responseBlock(lang contracts.Language, c *contracts.CounterStatement) string {
	if c == nil {
		return ""
	}
	if c.Kind == contracts.ResponseDispute {
		return pick(lang, "- Their response: ", "- Sua resposta: ") + c.DisputeText
	}
	return fmt.Sprintf(pick(lang,
		"- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
		"- O que aconteceu: %s\n- O que levou a isso: %s\n- Como isso os fez sentir: %s\n- Resultado desejado: %s"),
		c.WhatHappened, c.WhatLedToIt, c.HowItMadeThemFeel, c.DesiredOutcome)
}

func participantLabel(lang contracts.Language, n contracts.ParticipantNumber) string {
	return fmt.Sprintf(pick(lang, "Participant %d", "Participante %d"), n)
}

// Deterministic fallbacks, one per derivation, per language.

func fallbackBriefing(lang contracts.Language) string {
	return pick(lang,
		"Participant 1 has shared their perspective. Review their summary and decide whether you accept to take part in this mediation session.",
		"O Participante 1 compartilhou sua perspectiva. Revise o resumo e decida se aceita participar desta sessao de mediacao.")
}

func fallbackDisputePoints(lang contracts.Language) []string {
	return []string{pick(lang,
		"Unable to identify specific dispute points. Additional context may help clarify.",
		"Nao foi possivel identificar pontos de disputa especificos. Contexto adicional pode ajudar a esclarecer.")}
}

func fallbackResponseSummary(lang contracts.Language) string {
	return pick(lang,
		"Unable to generate summary. Please review the key dispute points above.",
		"Nao foi possivel gerar o resumo. Por favor, revise os pontos-chave de disputa acima.")
}

func fallbackFacts(lang contracts.Language) []contracts.Fact {
	return []contracts.Fact{{
		ID: 1,
		Statement: pick(lang,
			"Unable to extract specific facts from the responses.",
			"Nao foi possivel extrair fatos especificos das respostas."),
		Source: contracts.SourceBoth,
	}}
}

// fallbackOpeningSummary restates the four answers verbatim so participant 2
// still has something faithful to review.
func fallbackOpeningSummary(lang contracts.Language, o *contracts.OpeningStatement) string {
	header := pick(lang,
		"Participant 1 shared the following perspective:",
		"O Participante 1 compartilhou a seguinte perspectiva:")
	return header + "\n" + openingBlock(lang, o)
}

func joinAttachmentInfo(descriptions []string) string {
	if len(descriptions) == 0 {
		return ""
	}
	return "\n\nAttachments/Evidence provided:\n" + strings.Join(descriptions, "\n")
}
