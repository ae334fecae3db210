package mediation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
)

// Deriver runs the generation calls that produce derived artifacts. Every
// method returns usable content; failures are logged and replaced by the
// deterministic fallback for that artifact.
type Deriver struct {
	engine llm.Client
	params config.GenerationParams
	logger *slog.Logger
}

func NewDeriver(engine llm.Client, params config.GenerationParams, logger *slog.Logger) *Deriver {
	return &Deriver{engine: engine, params: params, logger: logger}
}

func (d *Deriver) generate(ctx context.Context, system, user string, images []llm.Image) (string, error) {
	return d.engine.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: d.params.Temperature,
		MaxTokens:   d.params.MaxTokens,
		Images:      images,
	})
}

// OpeningSummary produces the neutral restatement of participant 1's
// perspective shown to participant 2.
func (d *Deriver) OpeningSummary(ctx context.Context, sess *contracts.Session, ev Evidence) string {
	lang := sess.Language
	system := pick(lang,
		"You are an AI mediator. ", "Voce e um mediador de IA. ") +
		languageDirective(lang) + " " +
		pick(lang,
			"Create a clear, neutral summary of Participant 1's perspective for Participant 2 to review. If there are attached documents, include relevant information from them (numbers, values, dates).",
			"Crie um resumo claro e neutro da perspectiva do Participante 1 para o Participante 2 revisar. Se houver documentos anexados, inclua informacoes relevantes deles (numeros, valores, datas).") +
		imageDirective(lang, len(ev.Images) > 0)

	user := pick(lang,
		"Participant 1 provided these answers:\n", "IMPORTANTE: Escreva sua resposta inteiramente em portugues.\n\nParticipante 1 forneceu estas respostas:\n") +
		openingBlock(lang, sess.Opening) + ev.Text + "\n\n" +
		pick(lang,
			"Create a concise, neutral summary (2-3 paragraphs) that Participant 2 can read to understand Participant 1's perspective. If there are attached documents or images, mention relevant facts from them.",
			"Crie um resumo conciso e neutro (2-3 paragrafos) que o Participante 2 possa ler para entender a perspectiva do Participante 1. Se houver documentos ou imagens anexadas, mencione fatos relevantes deles.")

	out, err := d.generate(ctx, system, user, ev.Images)
	if err != nil {
		d.logger.Warn("opening summary generation failed, using fallback", "session_id", sess.ID, "error", err)
		return fallbackOpeningSummary(lang, sess.Opening)
	}
	return out
}

// Briefing produces the short message asking participant 2 whether they
// accept to take part.
func (d *Deriver) Briefing(ctx context.Context, sess *contracts.Session) string {
	lang := sess.Language
	system := pick(lang, "You are an AI mediator. ", "Voce e um mediador de IA. ") +
		languageDirective(lang) + " " +
		pick(lang,
			"Create a brief message for Participant 2 explaining what they need to do next.",
			"Crie uma mensagem breve para o Participante 2 explicando o que eles precisam fazer em seguida.")

	user := pick(lang,
		"Participant 1 has submitted their perspective. Create a brief message (2-3 sentences) asking Participant 2 if they accept to participate in this mediation session. Explain they will review Participant 1's perspective and provide their own.",
		"IMPORTANTE: Escreva em portugues.\n\nO Participante 1 enviou sua perspectiva. Crie uma mensagem breve (2-3 frases) perguntando ao Participante 2 se ele aceita participar desta sessao de mediacao. Explique que ele revisara a perspectiva do Participante 1 e fornecera a sua propria.")

	out, err := d.generate(ctx, system, user, nil)
	if err != nil {
		d.logger.Warn("briefing generation failed, using fallback", "session_id", sess.ID, "error", err)
		return fallbackBriefing(lang)
	}
	return out
}

// DisputePoints identifies the key points of disagreement between the two
// perspectives.
func (d *Deriver) DisputePoints(ctx context.Context, sess *contracts.Session, ev Evidence) []string {
	lang := sess.Language
	system := pick(lang,
		"You are an AI mediator analyzing a conflict. ",
		"Voce e um mediador de IA analisando um conflito. ") +
		languageDirective(lang) + " " +
		pick(lang,
			"Identify key points of disagreement between the two participants. If there are attached documents, consider the facts from them in your analysis.",
			"Identifique pontos-chave de desacordo entre os dois participantes. Se houver documentos anexados, considere os fatos deles na analise.") +
		imageDirective(lang, len(ev.Images) > 0)

	user := pick(lang,
		"Analyze these two perspectives and identify 3-5 key dispute points as a JSON array:\n\nParticipant 1:\n",
		"IMPORTANTE: Todos os pontos devem estar em portugues.\n\nAnalise estas duas perspectivas e identifique 3-5 pontos-chave de disputa como um array JSON:\n\nParticipante 1:\n") +
		openingBlock(lang, sess.Opening) + "\n\n" +
		pick(lang, "Participant 2's response:\n", "Resposta do Participante 2:\n") +
		responseBlock(lang, sess.Counter) + ev.Text + "\n\n" +
		pick(lang,
			`Return JSON: {"disputePoints": ["point 1", "point 2", "point 3"]}`,
			`Retorne JSON: {"disputePoints": ["ponto 1", "ponto 2", "ponto 3"]}`)

	out, err := d.generate(ctx, system, user, ev.Images)
	if err == nil {
		var parsed struct {
			DisputePoints []string `json:"disputePoints"`
		}
		if derr := llm.DecodeJSON(out, &parsed); derr == nil && len(parsed.DisputePoints) > 0 {
			return parsed.DisputePoints
		}
		err = fmt.Errorf("%w: no dispute points in completion", llm.ErrGeneration)
	}
	d.logger.Warn("dispute point generation failed, using fallback", "session_id", sess.ID, "error", err)
	return fallbackDisputePoints(lang)
}

// ResponseSummary produces the neutral summary of participant 2's
// perspective that participant 1 reviews before adding context.
func (d *Deriver) ResponseSummary(ctx context.Context, sess *contracts.Session, ev Evidence) string {
	lang := sess.Language
	system := pick(lang, "You are a neutral mediator. ", "Voce e um mediador neutro. ") +
		languageDirective(lang) + " " +
		pick(lang,
			"Generate a concise summary of Participant 2's perspective and concerns for Participant 1 to review before adding additional context. If there are attached documents, include relevant information from them.",
			"Gere um resumo conciso da perspectiva e preocupacoes do Participante 2 para o Participante 1 revisar antes de adicionar contexto adicional. Se houver documentos anexados, inclua informacoes relevantes deles.") +
		imageDirective(lang, len(ev.Images) > 0)

	user := pick(lang,
		"Based on the following, create a neutral summary of Participant 2's perspective:\n\nPARTICIPANT 1's Initial Perspective:\n",
		"IMPORTANTE: Escreva em portugues.\n\nCom base no seguinte, crie um resumo neutro da perspectiva do Participante 2:\n\nPerspectiva Inicial do PARTICIPANTE 1:\n") +
		openingBlock(lang, sess.Opening) + "\n\n" +
		pick(lang, "PARTICIPANT 2's Response:\n", "Resposta do PARTICIPANTE 2:\n") +
		responseBlock(lang, sess.Counter) + ev.Text + "\n\n" +
		pick(lang,
			"Provide a 2-3 paragraph summary that captures Participant 2's perspective, concerns, and how they view the situation. If there are attached documents, mention relevant facts from them.",
			"Forneca um resumo de 2-3 paragrafos que capture a perspectiva, preocupacoes e como o Participante 2 ve a situacao. Se houver documentos anexados, mencione fatos relevantes.")

	out, err := d.generate(ctx, system, user, ev.Images)
	if err != nil {
		d.logger.Warn("response summary generation failed, using fallback", "session_id", sess.ID, "error", err)
		return fallbackResponseSummary(lang)
	}
	return out
}

// ContextSummary condenses one participant's additional context. On failure
// it falls back to the raw text, which is always safe to show.
func (d *Deriver) ContextSummary(ctx context.Context, sess *contracts.Session, n contracts.ParticipantNumber, text string, ev Evidence) string {
	lang := sess.Language
	label := participantLabel(lang, n)
	system := pick(lang, "You are a neutral mediator. ", "Voce e um mediador neutro. ") +
		languageDirective(lang) + " " +
		fmt.Sprintf(pick(lang,
			"Summarize the additional context provided by %s in a clear, neutral way. If there are attached documents, include relevant information from them.",
			"Resuma o contexto adicional fornecido pelo %s de forma clara e neutra. Se houver documentos anexados, inclua informacoes relevantes deles."), label) +
		imageDirective(lang, len(ev.Images) > 0)

	user := fmt.Sprintf(pick(lang,
		"%s provided the following additional context:\n\n%q%s\n\nCreate a 1-2 paragraph neutral summary of this additional context that highlights the key points. If there are attached documents, mention relevant facts from them.",
		"IMPORTANTE: Escreva em portugues.\n\n%s forneceu o seguinte contexto adicional:\n\n%q%s\n\nCrie um resumo neutro de 1-2 paragrafos deste contexto adicional que destaque os pontos-chave. Se houver documentos anexados, mencione fatos relevantes."),
		label, text, ev.Text)

	out, err := d.generate(ctx, system, user, ev.Images)
	if err != nil {
		d.logger.Warn("context summary generation failed, falling back to raw text", "session_id", sess.ID, "participant", n, "error", err)
		return text
	}
	return out
}

// FactList extracts the verifiable fact list for the advanced workflow.
// Facts with an unknown source are attributed to both parties rather than
// dropped, so neither participant's filtered view silently loses a claim.
func (d *Deriver) FactList(ctx context.Context, sess *contracts.Session, ev Evidence) []contracts.Fact {
	lang := sess.Language
	system := pick(lang,
		"You are a neutral mediator extracting stated facts. RESPOND ENTIRELY IN ENGLISH.\n\nYour task is to identify specific facts stated by each participant that can be verified or disputed. Do NOT add interpretations - only stated facts.\n\nIMPORTANT ABOUT ATTACHMENTS:\n- Documents/images attached by Participant 1 should generate facts with source=\"p1\"\n- Documents/images attached by Participant 2 should generate facts with source=\"p2\"\n- Extract relevant facts such as numbers, dates, values, and other verifiable information from attachments\n- Attachments indicate \"from Participant X\" - use this to determine the correct source",
		"Voce e um mediador neutro extraindo fatos declarados. RESPONDA INTEIRAMENTE EM PORTUGUES (exceto os valores de 'source' que devem permanecer em ingles).\n\nSua tarefa e identificar fatos especificos declarados por cada participante que possam ser verificados ou disputados. NAO adicione interpretacoes - apenas fatos declarados.\n\nIMPORTANTE SOBRE ANEXOS:\n- Documentos/imagens anexados por Participant 1 devem gerar fatos com source=\"p1\"\n- Documentos/imagens anexados por Participant 2 devem gerar fatos com source=\"p2\"\n- Extraia fatos relevantes como numeros, datas, valores e outras informacoes verificaveis dos anexos\n- Os anexos indicam \"from Participant X\" - use isso para determinar a source correta") +
		imageDirective(lang, len(ev.Images) > 0)

	p1Context := ""
	if sess.P1Context != "" {
		p1Context = pick(lang, "\n- Additional context: ", "\n- Contexto adicional: ") + sess.P1Context
	}
	p2Context := ""
	if sess.P2Context != "" {
		p2Context = pick(lang, "\n- Additional context: ", "\n- Contexto adicional: ") + sess.P2Context
	}

	user := pick(lang,
		"Analyze these perspectives and extract 5-10 specific facts that were stated. Each fact should be a clear statement that the other participant can agree or disagree with.\n\nPARTICIPANT 1:\n",
		"Analise estas perspectivas e extraia 5-10 fatos especificos que foram declarados. Cada fato deve ser uma declaracao clara que o outro participante pode concordar ou discordar.\n\nPARTICIPANTE 1:\n") +
		openingBlock(lang, sess.Opening) + p1Context + "\n\n" +
		pick(lang, "PARTICIPANT 2:\n", "PARTICIPANTE 2:\n") +
		responseBlock(lang, sess.Counter) + p2Context +
		joinAttachmentInfo(ev.Descriptions) + ev.Text + "\n\n" +
		pick(lang,
			"Return JSON:\n{\n  \"facts\": [\n    {\"id\": 1, \"statement\": \"fact statement\", \"source\": \"p1\" or \"p2\" or \"both\"}\n  ]\n}",
			"Retorne JSON:\n{\n  \"facts\": [\n    {\"id\": 1, \"statement\": \"declaracao do fato\", \"source\": \"p1\" ou \"p2\" ou \"both\"}\n  ]\n}")

	out, err := d.generate(ctx, system, user, ev.Images)
	if err == nil {
		var parsed struct {
			Facts []contracts.Fact `json:"facts"`
		}
		if derr := llm.DecodeJSON(out, &parsed); derr == nil && len(parsed.Facts) > 0 {
			for i := range parsed.Facts {
				if s := parsed.Facts[i].Source; s != contracts.SourceP1 && s != contracts.SourceP2 {
					parsed.Facts[i].Source = contracts.SourceBoth
				}
				if parsed.Facts[i].ID == 0 {
					parsed.Facts[i].ID = i + 1
				}
			}
			return parsed.Facts
		}
		err = fmt.Errorf("%w: no facts in completion", llm.ErrGeneration)
	}
	d.logger.Warn("fact list generation failed, using fallback", "session_id", sess.ID, "error", err)
	return fallbackFacts(lang)
}
