package contracts

import (
	"strings"
	"time"
)

// AttachmentKind is the file-type category of a piece of evidence.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentText     AttachmentKind = "text"
	AttachmentCSV      AttachmentKind = "csv"
	AttachmentPDF      AttachmentKind = "pdf"
	AttachmentDocument AttachmentKind = "document"
)

// KindForMIME maps a MIME type to its attachment category.
func KindForMIME(mimeType string) AttachmentKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentImage
	case mimeType == "text/plain":
		return AttachmentText
	case mimeType == "text/csv":
		return AttachmentCSV
	case mimeType == "application/pdf":
		return AttachmentPDF
	}
	return AttachmentDocument
}

// AllowedMIME reports whether an upload of the given MIME type is accepted.
func AllowedMIME(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp",
		"text/plain", "text/csv",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return true
	}
	return false
}

// Attachment is evidence bound to one stage and one participant. The record
// is immutable once stored; deletion is explicit.
type Attachment struct {
	ID                int64             `json:"id"`
	SessionID         string            `json:"session_id"`
	ParticipantID     string            `json:"participant_id"`
	ParticipantNumber ParticipantNumber `json:"participant_number"`
	Stage             Stage             `json:"stage"`
	FileName          string            `json:"file_name"`
	OriginalName      string            `json:"original_name"`
	Kind              AttachmentKind    `json:"file_type"`
	MimeType          string            `json:"mime_type"`
	Size              int64             `json:"file_size"`
	UploadedAt        time.Time         `json:"uploaded_at"`
}
