package mediation

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFiles map[string][]byte

func (m mapFiles) Read(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no such file %q", name)
	}
	return data, nil
}

func TestBuildEvidence(t *testing.T) {
	files := mapFiles{
		"a.txt": []byte("receipt total: 120.00"),
		"b.png": []byte{0x89, 0x50},
	}
	attachments := []contracts.Attachment{
		{FileName: "a.txt", OriginalName: "receipt.txt", Kind: contracts.AttachmentText,
			MimeType: "text/plain", ParticipantNumber: contracts.Participant1},
		{FileName: "b.png", OriginalName: "fence.png", Kind: contracts.AttachmentImage,
			MimeType: "image/png", ParticipantNumber: contracts.Participant2},
		{FileName: "gone.csv", OriginalName: "gone.csv", Kind: contracts.AttachmentCSV,
			MimeType: "text/csv", ParticipantNumber: contracts.Participant1},
	}

	ev := BuildEvidence(files, attachments, slog.New(slog.DiscardHandler))

	assert.Contains(t, ev.Text, "=== ATTACHED DOCUMENTS ===")
	assert.Contains(t, ev.Text, "receipt total: 120.00")
	assert.Contains(t, ev.Text, "receipt.txt (TEXT from Participant 1)")
	assert.Contains(t, ev.Text, "[IMAGE ATTACHED: fence.png")
	assert.NotContains(t, ev.Text, "gone.csv ---", "unreadable files are skipped, not inlined")

	require.Len(t, ev.Images, 1)
	assert.Equal(t, "image/png", ev.Images[0].MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(files["b.png"]), ev.Images[0].Base64)

	// Descriptions cover every attachment, readable or not.
	require.Len(t, ev.Descriptions, 3)
	assert.Equal(t, "[text] receipt.txt (from Participant 1)", ev.Descriptions[0])
}

func TestBuildEvidenceTruncatesLongText(t *testing.T) {
	files := mapFiles{"big.txt": []byte(strings.Repeat("x", maxInlineChars+100))}
	attachments := []contracts.Attachment{
		{FileName: "big.txt", OriginalName: "big.txt", Kind: contracts.AttachmentText,
			ParticipantNumber: contracts.Participant1},
	}

	ev := BuildEvidence(files, attachments, slog.New(slog.DiscardHandler))
	assert.Contains(t, ev.Text, "[... content truncated ...]")
	assert.NotContains(t, ev.Text, strings.Repeat("x", maxInlineChars+1))
}

func TestBuildEvidenceEmpty(t *testing.T) {
	ev := BuildEvidence(mapFiles{}, nil, slog.New(slog.DiscardHandler))
	assert.Empty(t, ev.Text)
	assert.Empty(t, ev.Images)
	assert.Empty(t, ev.Descriptions)
}
