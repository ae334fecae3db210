// Package mediation produces the derived artifacts of a session: the
// opening summary, the acceptance briefing, dispute points, context
// summaries, and the verifiable fact list. Every derivation attempts one
// generation call and falls back to deterministic, language-appropriate
// content on failure; nothing here ever blocks a protocol transition.
package mediation

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
)

// FileReader fetches stored attachment bytes by stored name.
type FileReader interface {
	Read(name string) ([]byte, error)
}

// maxInlineChars caps how much of one text attachment is inlined into a
// prompt.
const maxInlineChars = 5000

// Evidence is the prompt-ready form of a session's attachments: text and
// csv files inlined (truncated), images as base64 payloads for
// vision-capable engines, plus one-line descriptions of everything.
type Evidence struct {
	Text         string
	Images       []llm.Image
	Descriptions []string
}

// BuildEvidence reads each attachment and formats it for inclusion in
// generation calls. Unreadable files are logged and skipped; evidence
// assembly never fails an action.
func BuildEvidence(files FileReader, attachments []contracts.Attachment, logger *slog.Logger) Evidence {
	var ev Evidence
	var docs strings.Builder

	for _, a := range attachments {
		ev.Descriptions = append(ev.Descriptions,
			fmt.Sprintf("[%s] %s (from Participant %d)", a.Kind, a.OriginalName, a.ParticipantNumber))

		switch a.Kind {
		case contracts.AttachmentText, contracts.AttachmentCSV:
			data, err := files.Read(a.FileName)
			if err != nil {
				logger.Warn("skipping unreadable attachment", "file", a.FileName, "error", err)
				continue
			}
			content := string(data)
			if len(content) > maxInlineChars {
				content = content[:maxInlineChars] + "\n[... content truncated ...]"
			}
			fmt.Fprintf(&docs, "\n--- %s (%s from Participant %d) ---\n%s\n--- END OF DOCUMENT ---\n",
				a.OriginalName, strings.ToUpper(string(a.Kind)), a.ParticipantNumber, content)

		case contracts.AttachmentImage:
			data, err := files.Read(a.FileName)
			if err != nil {
				logger.Warn("skipping unreadable attachment", "file", a.FileName, "error", err)
				continue
			}
			ev.Images = append(ev.Images, llm.Image{
				Name:      a.OriginalName,
				MediaType: a.MimeType,
				Base64:    base64.StdEncoding.EncodeToString(data),
			})
		}
	}

	if docs.Len() > 0 {
		ev.Text = "\n\n=== ATTACHED DOCUMENTS ===\n" + docs.String()
	}
	for _, img := range ev.Images {
		ev.Text += fmt.Sprintf("\n[IMAGE ATTACHED: %s - analyze this image for relevant information]\n", img.Name)
	}
	return ev
}
