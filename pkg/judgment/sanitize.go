package judgment

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mediation"
)

var sanitizedSchema = mustCompile("sanitized.json", `{
	"type": "object",
	"required": ["p1_factual_claims", "p2_factual_claims", "disputed_facts"],
	"properties": {
		"p1_factual_claims": {"type": "array", "items": {"type": "string"}},
		"p2_factual_claims": {"type": "array", "items": {"type": "string"}},
		"agreed_facts": {"type": "array", "items": {"type": "string"}},
		"disputed_facts": {"type": "array", "items": {
			"type": "object",
			"required": ["topic"],
			"properties": {
				"topic": {"type": "string"},
				"p1_version": {"type": "string"},
				"p2_version": {"type": "string"}
			}
		}},
		"documented_evidence": {"type": "array", "items": {"type": "string"}},
		"p1_desired_outcome": {"type": "string"},
		"p2_desired_outcome": {"type": "string"}
	}
}`)

const sanitizeSystemEN = `You are a forensic analyst extracting ONLY objective, verifiable facts from dispute narratives. RESPOND ENTIRELY IN ENGLISH.

Your task: Remove ALL subjective interpretations, emotional language, and tone markers. Preserve ONLY:
- Verifiable claims (dates, amounts, actions taken)
- Documented evidence references
- Factual statements both parties agree on
- Conflicting factual claims (state both versions neutrally)

STRIP OUT COMPLETELY:
- "Feels like", "seems", "dismissive", "respectful", etc.
- Judgments about attitude or tone
- Inferred intentions ("trying to control", "doesn't care")
- Emotional framing
- Assertive or aggressive language
- Expressions of frustration or anger
- Personality characterizations

NEUTRALIZE phrases like:
- "I should decide" -> "P1 believes they should have decision-making authority"
- "She always ignores" -> "P1 claims their opinions are not considered"
- "He is controlling" -> "P2 claims P1 makes unilateral decisions"

Output: Pure factual record with NO editorial commentary.`

const sanitizeSystemPT = `Você é um analista forense extraindo APENAS fatos objetivos e verificáveis de narrativas de disputa. RESPONDA INTEIRAMENTE EM PORTUGUÊS.

Sua tarefa: Remover TODAS as interpretações subjetivas, linguagem emocional e marcadores de tom. Preservar APENAS:
- Afirmações verificáveis (datas, valores, ações tomadas)
- Referências a evidências documentadas
- Declarações factuais com as quais ambas as partes concordam
- Afirmações factuais conflitantes (declare ambas as versões de forma neutra)

REMOVER COMPLETAMENTE:
- "Sente-se como", "parece", "desdenhoso", "respeitoso", etc.
- Julgamentos sobre atitude ou tom
- Intenções inferidas ("tentando controlar", "não se importa")
- Enquadramento emocional
- Linguagem assertiva ou agressiva
- Expressões de frustração ou raiva
- Caracterizações de personalidade

NEUTRALIZAR frases como:
- "Eu deveria decidir" -> "P1 acredita que deveria ter autoridade de decisão"
- "Ela sempre ignora" -> "P1 afirma que suas opiniões não são consideradas"
- "Ele é controlador" -> "P2 afirma que P1 toma decisões unilaterais"

Saída: Registro factual puro SEM comentário editorial.`

// Sanitize produces the tone-free factual record. It never fails: on any
// generation or shape error it returns an empty-but-well-typed record with
// the desired outcomes taken verbatim from the raw submissions.
func (p *Pipeline) Sanitize(ctx context.Context, sess *contracts.Session, ev mediation.Evidence) *contracts.SanitizedRecord {
	pt := sess.Language == contracts.LanguagePortuguese
	system := sanitizeSystemEN
	if pt {
		system = sanitizeSystemPT
	}

	out, err := p.generate(ctx, p.sanitize, system, sanitizeUserPrompt(sess, ev), ev.Images)
	if err == nil {
		if verr := validate(sanitizedSchema, out); verr == nil {
			var record contracts.SanitizedRecord
			if derr := llm.DecodeJSON(out, &record); derr == nil {
				normalizeRecord(&record)
				return &record
			} else {
				err = derr
			}
		} else {
			err = verr
		}
	}

	p.logger.Warn("sanitization failed, using empty record", "session_id", sess.ID, "error", err)
	record := &contracts.SanitizedRecord{
		P1FactualClaims:    []string{},
		P2FactualClaims:    []string{},
		AgreedFacts:        []string{},
		DisputedFacts:      []contracts.DisputedFact{},
		DocumentedEvidence: []string{},
	}
	if sess.Opening != nil {
		record.P1DesiredOutcome = sess.Opening.DesiredOutcome
	}
	if sess.Counter != nil {
		record.P2DesiredOutcome = sess.Counter.DesiredOutcome
	}
	return record
}

// normalizeRecord replaces nil slices so serialized records always carry
// well-typed empty lists.
func normalizeRecord(r *contracts.SanitizedRecord) {
	if r.P1FactualClaims == nil {
		r.P1FactualClaims = []string{}
	}
	if r.P2FactualClaims == nil {
		r.P2FactualClaims = []string{}
	}
	if r.AgreedFacts == nil {
		r.AgreedFacts = []string{}
	}
	if r.DisputedFacts == nil {
		r.DisputedFacts = []contracts.DisputedFact{}
	}
	if r.DocumentedEvidence == nil {
		r.DocumentedEvidence = []string{}
	}
}

func sanitizeUserPrompt(sess *contracts.Session, ev mediation.Evidence) string {
	pt := sess.Language == contracts.LanguagePortuguese
	var b strings.Builder

	if pt {
		b.WriteString("Analise as seguintes perspectivas e crie um REGISTRO FACTUAL SANITIZADO.\n\nPARTICIPANTE 1 Respostas:\n")
	} else {
		b.WriteString("Analyze the following perspectives and create a SANITIZED FACTUAL RECORD.\n\nPARTICIPANT 1 Answers:\n")
	}
	b.WriteString(openingLines(sess, pt))
	if sess.P1Context != "" {
		if pt {
			b.WriteString("\n- Contexto adicional: " + sess.P1Context)
		} else {
			b.WriteString("\n- Additional context: " + sess.P1Context)
		}
	}

	if pt {
		b.WriteString("\n\nPARTICIPANTE 2 Resposta:\n")
	} else {
		b.WriteString("\n\nPARTICIPANT 2 Response:\n")
	}
	b.WriteString(responseLines(sess, pt))
	if sess.P2Context != "" {
		if pt {
			b.WriteString("\n- Contexto adicional: " + sess.P2Context)
		} else {
			b.WriteString("\n- Additional context: " + sess.P2Context)
		}
	}

	b.WriteString(verificationSection(sess, pt))
	b.WriteString(ev.Text)

	if pt {
		b.WriteString(`

Retorne JSON com esta estrutura:
{
  "p1_factual_claims": ["afirmação factual neutra 1", "afirmação factual neutra 2"],
  "p2_factual_claims": ["afirmação factual neutra 1", "afirmação factual neutra 2"],
  "agreed_facts": ["fatos com os quais ambos concordam"],
  "disputed_facts": [
    {"topic": "tópico", "p1_version": "versão de P1", "p2_version": "versão de P2"}
  ],
  "documented_evidence": ["evidência de anexos"],
  "p1_desired_outcome": "resultado desejado neutralizado",
  "p2_desired_outcome": "resultado desejado neutralizado"
}`)
	} else {
		b.WriteString(`

Return JSON with this structure:
{
  "p1_factual_claims": ["neutral factual statement 1", "neutral factual statement 2"],
  "p2_factual_claims": ["neutral factual statement 1", "neutral factual statement 2"],
  "agreed_facts": ["facts both parties agree on"],
  "disputed_facts": [
    {"topic": "topic", "p1_version": "P1's version", "p2_version": "P2's version"}
  ],
  "documented_evidence": ["evidence from attachments"],
  "p1_desired_outcome": "neutralized desired outcome",
  "p2_desired_outcome": "neutralized desired outcome"
}`)
	}
	return b.String()
}

func openingLines(sess *contracts.Session, pt bool) string {
	o := sess.Opening
	if o == nil {
		return ""
	}
	if pt {
		return fmt.Sprintf("- O que aconteceu: %s\n- O que levou a isso: %s\n- Como isso os fez sentir: %s\n- Resultado desejado: %s",
			o.WhatHappened, o.WhatLedToIt, o.HowItMadeThemFeel, o.DesiredOutcome)
	}
	return fmt.Sprintf("- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
		o.WhatHappened, o.WhatLedToIt, o.HowItMadeThemFeel, o.DesiredOutcome)
}

func responseLines(sess *contracts.Session, pt bool) string {
	c := sess.Counter
	if c == nil {
		return ""
	}
	if c.Kind == contracts.ResponseDispute {
		if pt {
			return "- Disputa: " + c.DisputeText
		}
		return "- Dispute: " + c.DisputeText
	}
	if pt {
		return fmt.Sprintf("- O que aconteceu: %s\n- O que levou a isso: %s\n- Como isso os fez sentir: %s\n- Resultado desejado: %s",
			c.WhatHappened, c.WhatLedToIt, c.HowItMadeThemFeel, c.DesiredOutcome)
	}
	return fmt.Sprintf("- What happened: %s\n- What led to it: %s\n- How it made them feel: %s\n- Desired outcome: %s",
		c.WhatHappened, c.WhatLedToIt, c.HowItMadeThemFeel, c.DesiredOutcome)
}

// verificationSection renders the fact list with each side's verification.
// The stored verification maps are keyed by filtered position; the fact
// views recover the entry for each global fact id.
func verificationSection(sess *contracts.Session, pt bool) string {
	if len(sess.Facts) == 0 {
		return ""
	}
	var b strings.Builder
	if pt {
		b.WriteString("\n\nVERIFICAÇÃO DE FATOS (cada participante verificou os fatos alegados pelo outro):")
	} else {
		b.WriteString("\n\nFACT VERIFICATION RESULTS (each participant verified facts claimed by the other):")
	}

	p1View := contracts.ViewFor(sess.Facts, contracts.Participant1)
	p2View := contracts.ViewFor(sess.Facts, contracts.Participant2)

	claimedBy := func(src contracts.FactSource) string {
		switch src {
		case contracts.SourceP1:
			return "P1"
		case contracts.SourceP2:
			return "P2"
		}
		if pt {
			return "ambos"
		}
		return "both"
	}
	verb := "verification"
	if pt {
		verb = "verificação"
	}

	for i, fact := range sess.Facts {
		label := "claimed by"
		if pt {
			label = "alegado por"
		}
		fmt.Fprintf(&b, "\n%d. %q (%s: %s)", i+1, fact.Statement, label, claimedBy(fact.Source))

		if fv, ok := p1View.Verification(sess.P1Verifications, fact.ID); ok {
			fmt.Fprintf(&b, "\n   - P1 %s: %s", verb, fv.Status)
			if fv.Comment != "" {
				fmt.Fprintf(&b, " - %q", fv.Comment)
			}
		}
		if fv, ok := p2View.Verification(sess.P2Verifications, fact.ID); ok {
			fmt.Fprintf(&b, "\n   - P2 %s: %s", verb, fv.Status)
			if fv.Comment != "" {
				fmt.Fprintf(&b, " - %q", fv.Comment)
			}
		}
	}

	if pt {
		b.WriteString("\n\nIMPORTANTE: Os comentários de verificação acima contêm informações CRUCIAIS que devem ser consideradas no julgamento. Eles representam as objeções e esclarecimentos de cada participante sobre os fatos alegados.")
	} else {
		b.WriteString("\n\nIMPORTANT: The verification comments above contain CRUCIAL information that must be considered in the judgment. They represent each participant's objections and clarifications about the alleged facts.")
	}
	return b.String()
}
