package judgment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mediation"
)

var verdictSchema = mustCompile("verdict.json", `{
	"type": "object",
	"required": ["verdict", "justification"],
	"properties": {
		"verdict": {"type": "string"},
		"p1_correct_behaviors": {"type": "array", "items": {"type": "string"}},
		"p1_wrong_behaviors": {"type": "array", "items": {"type": "string"}},
		"p2_correct_behaviors": {"type": "array", "items": {"type": "string"}},
		"p2_wrong_behaviors": {"type": "array", "items": {"type": "string"}},
		"justification": {"type": "string"}
	}
}`)

const verdictSystemEN = `You are an expert mediator providing a decisive judgment. RESPOND ENTIRELY IN ENGLISH.

CRITICAL RULE: Base your verdict ONLY on the SANITIZED FACTUAL RECORD provided.
DO NOT CONSIDER:
- How participants expressed themselves
- Tone, confidence, or assertiveness
- Emotional appeals or diplomatic language
- Whether someone seemed "rude" or "polite"

EVALUATE ONLY:
- Logical consistency of factual claims
- Evidence supporting each position
- Legal/ethical obligations (contracts, vows, responsibilities)
- Fairness of outcomes based on objective circumstances

IMPORTANT: A participant who is factually correct but was assertive/direct should NOT be penalized for their tone. Judge the FACTS, not the presentation.

You must choose ONE of these six verdicts:
1. "p1_right" - Participant 1 is right
2. "p1_more_right" - Participant 1 is more right than Participant 2
3. "both_right" - Both participants are right
4. "neither_right" - Neither participant is right
5. "p2_more_right" - Participant 2 is more right than Participant 1
6. "p2_right" - Participant 2 is right

Do NOT force a conciliatory tone if one party is clearly at fault. Be decisive and evidence-based.`

const verdictSystemPT = `Você é um mediador especialista fornecendo um julgamento decisivo. RESPONDA INTEIRAMENTE EM PORTUGUÊS (exceto os códigos de veredicto que devem permanecer em inglês).

REGRA CRÍTICA: Baseie seu veredicto APENAS no REGISTRO FACTUAL SANITIZADO fornecido.
NÃO CONSIDERE:
- Como os participantes se expressaram
- Tom, confiança ou assertividade
- Apelos emocionais ou linguagem diplomática
- Se alguém pareceu "rude" ou "educado"

AVALIE APENAS:
- Consistência lógica das afirmações factuais
- Evidências que apoiam cada posição
- Obrigações legais/éticas (contratos, votos, responsabilidades)
- Justiça dos resultados baseada em circunstâncias objetivas

IMPORTANTE: Um participante que está factualmente correto mas foi assertivo/direto NÃO deve ser penalizado por seu tom. Julgue os FATOS, não a apresentação.

Você deve escolher UM destes seis veredictos:
1. "p1_right" - Participante 1 está certo
2. "p1_more_right" - Participante 1 está mais certo que o Participante 2
3. "both_right" - Ambos os participantes estão certos
4. "neither_right" - Nenhum participante está certo
5. "p2_more_right" - Participante 2 está mais certo que o Participante 1
6. "p2_right" - Participante 2 está certo

NÃO force um tom conciliatório se uma parte está claramente em falta. Seja decisivo e baseado em evidências.`

// Decide runs the verdict phase over the sanitized record. An invalid
// verdict value is coerced to neither_right. An engine failure yields a
// fully-populated "unable to assess" judgment; only a failure caused by
// context cancellation propagates as an error so the action can be
// redelivered.
func (p *Pipeline) Decide(ctx context.Context, sess *contracts.Session, record *contracts.SanitizedRecord, prof *contracts.Profile, ev mediation.Evidence) (*contracts.Judgment, error) {
	pt := sess.Language == contracts.LanguagePortuguese
	system := verdictSystemEN
	if pt {
		system = verdictSystemPT
	}

	out, err := p.generate(ctx, p.verdict, system, verdictUserPrompt(sess, record, prof, ev), ev.Images)
	if err == nil {
		if verr := validate(verdictSchema, out); verr == nil {
			var j contracts.Judgment
			if derr := llm.DecodeJSON(out, &j); derr == nil {
				if !j.Verdict.Valid() {
					p.logger.Warn("invalid verdict coerced", "session_id", sess.ID, "verdict", j.Verdict)
					j.Verdict = contracts.VerdictNeitherRight
				}
				j.Sanitized = record
				return &j, nil
			} else {
				err = derr
			}
		} else {
			err = verr
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("verdict generation: %w", err)
	}

	p.logger.Error("verdict generation failed, producing neutral judgment", "session_id", sess.ID, "error", err)
	unable := "Unable to assess"
	justification := "Unable to generate judgment due to processing error."
	if pt {
		unable = "Não foi possível avaliar"
		justification = "Não foi possível gerar julgamento devido a erro de processamento."
	}
	return &contracts.Judgment{
		Verdict:            contracts.VerdictNeitherRight,
		P1CorrectBehaviors: []string{unable},
		P1WrongBehaviors:   []string{unable},
		P2CorrectBehaviors: []string{unable},
		P2WrongBehaviors:   []string{unable},
		Justification:      justification,
	}, nil
}

func verdictUserPrompt(sess *contracts.Session, record *contracts.SanitizedRecord, prof *contracts.Profile, ev mediation.Evidence) string {
	pt := sess.Language == contracts.LanguagePortuguese
	var b strings.Builder

	if pt {
		b.WriteString("IMPORTANTE: Escreva toda a justificação e listas de comportamentos em português. Use apenas os códigos de veredicto em inglês (p1_right, p1_more_right, etc).\n")
	}
	b.WriteString(backgroundSection(prof))
	if pt {
		b.WriteString("\nAnalise este REGISTRO FACTUAL SANITIZADO (tom e emoções já removidos) e forneça seu julgamento baseado APENAS nos fatos:\n\n")
	} else {
		b.WriteString("\nAnalyze this SANITIZED FACTUAL RECORD (tone and emotions already removed) and provide your judgment based ONLY on the facts:\n\n")
	}
	b.WriteString(renderRecord(record, pt))
	b.WriteString(ev.Text)

	if pt {
		b.WriteString(`

LEMBRETE: Não penalize nenhum participante por parecer assertivo ou confiante. Julgue apenas a correção factual e obrigações éticas/legais.

Retorne JSON com esta estrutura EXATA:
{
  "verdict": "um de: p1_right, p1_more_right, both_right, neither_right, p2_more_right, p2_right",
  "p1_correct_behaviors": ["comportamento factualmente correto 1"],
  "p1_wrong_behaviors": ["comportamento factualmente incorreto 1"],
  "p2_correct_behaviors": ["comportamento factualmente correto 1"],
  "p2_wrong_behaviors": ["comportamento factualmente incorreto 1"],
  "justification": "Explicação abrangente de 2-3 parágrafos do seu veredicto, focando em FATOS e OBRIGAÇÕES, não em tom ou apresentação"
}`)
	} else {
		b.WriteString(`

REMINDER: Do not penalize any participant for seeming assertive or confident. Judge only factual correctness and ethical/legal obligations.

Return JSON with this EXACT structure:
{
  "verdict": "one of: p1_right, p1_more_right, both_right, neither_right, p2_more_right, p2_right",
  "p1_correct_behaviors": ["factually correct behavior 1"],
  "p1_wrong_behaviors": ["factually incorrect behavior 1"],
  "p2_correct_behaviors": ["factually correct behavior 1"],
  "p2_wrong_behaviors": ["factually incorrect behavior 1"],
  "justification": "2-3 paragraph comprehensive explanation of your verdict, focusing on FACTS and OBLIGATIONS, not tone or presentation"
}`)
	}
	return b.String()
}

// backgroundSection injects the accumulated identity inference for
// background understanding, never as verdict input. Low-confidence guesses
// are marked as uncertain.
func backgroundSection(prof *contracts.Profile) string {
	if !prof.Known() {
		return ""
	}
	identity := func(g contracts.IdentityGuess, label string) string {
		if g.Identity == "" || g.Identity == "unknown" {
			return label + ": Unknown"
		}
		marker := ""
		if g.Confidence < 0.5 {
			marker = "?"
		}
		return fmt.Sprintf("%s: %s%s (%d%%)", label, g.Identity, marker, int(math.Round(g.Confidence*100)))
	}

	rel := "Relationship: Unknown"
	if r := prof.Relationship; r.Type != "" && r.Type != "unknown" {
		marker := ""
		if r.Confidence < 0.5 {
			marker = "?"
		}
		details := ""
		if r.Details != "" {
			details = " - " + r.Details
		}
		rel = fmt.Sprintf("Relationship: %s%s%s (%d%%)", r.Type, marker, details, int(math.Round(r.Confidence*100)))
	}

	clues := prof.Clues
	if len(clues) > 5 {
		clues = clues[:5]
	}
	return fmt.Sprintf(`
[INTERNAL CONTEXT - Use this to better understand the parties involved]
%s
%s
%s
Key clues: %s
`,
		identity(prof.P1, "P1"), identity(prof.P2, "P2"), rel, strings.Join(clues, ", "))
}

func renderRecord(r *contracts.SanitizedRecord, pt bool) string {
	var b strings.Builder
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n" + title + ":\n")
		for i, item := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
	}

	if pt {
		section("AFIRMAÇÕES FACTUAIS DE P1", r.P1FactualClaims)
		section("AFIRMAÇÕES FACTUAIS DE P2", r.P2FactualClaims)
		section("FATOS ACORDADOS POR AMBOS", r.AgreedFacts)
	} else {
		section("P1 FACTUAL CLAIMS", r.P1FactualClaims)
		section("P2 FACTUAL CLAIMS", r.P2FactualClaims)
		section("FACTS AGREED BY BOTH", r.AgreedFacts)
	}

	if len(r.DisputedFacts) > 0 {
		if pt {
			b.WriteString("\nFATOS DISPUTADOS:\n")
		} else {
			b.WriteString("\nDISPUTED FACTS:\n")
		}
		for i, f := range r.DisputedFacts {
			fmt.Fprintf(&b, "%d. %s\n   - P1: %s\n   - P2: %s\n", i+1, f.Topic, f.P1Version, f.P2Version)
		}
	}

	if pt {
		section("EVIDÊNCIA DOCUMENTADA", r.DocumentedEvidence)
	} else {
		section("DOCUMENTED EVIDENCE", r.DocumentedEvidence)
	}

	unspecified := "Not specified"
	p1Label, p2Label := "P1 DESIRED OUTCOME", "P2 DESIRED OUTCOME"
	if pt {
		unspecified = "Não especificado"
		p1Label, p2Label = "RESULTADO DESEJADO POR P1", "RESULTADO DESEJADO POR P2"
	}
	p1Out, p2Out := r.P1DesiredOutcome, r.P2DesiredOutcome
	if p1Out == "" {
		p1Out = unspecified
	}
	if p2Out == "" {
		p2Out = unspecified
	}
	fmt.Fprintf(&b, "\n%s: %s\n%s: %s\n", p1Label, p1Out, p2Label, p2Out)
	return b.String()
}
