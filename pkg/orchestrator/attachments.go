package orchestrator

import (
	"context"
	"fmt"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/store"
)

// maxAttachmentSize caps a single upload at 10 MiB.
const maxAttachmentSize = 10 << 20

// UploadAttachment stores the file bytes and the attachment record. Uploads
// are refused once the session reaches a terminal status; the stage tags
// which submission the evidence belongs to.
func (o *Orchestrator) UploadAttachment(ctx context.Context, sessionID, participantID string, stage contracts.Stage, originalName, mimeType string, data []byte) (*contracts.Attachment, error) {
	var out *contracts.Attachment
	err := o.withSession(ctx, sessionID, "UploadAttachment", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status.Terminal() {
			return fmt.Errorf("upload in %s: %w", sess.Status, ErrInvalidState)
		}
		var p *contracts.Participant
		for i := range sess.Participants {
			if sess.Participants[i].ID == participantID {
				p = &sess.Participants[i]
			}
		}
		if p == nil {
			return fmt.Errorf("participant %s: %w", participantID, ErrWrongRole)
		}
		if !contracts.ValidStage(stage) {
			return fmt.Errorf("unknown stage %q: %w", stage, ErrBadPayload)
		}
		if !contracts.AllowedMIME(mimeType) {
			return fmt.Errorf("unsupported file type %q: %w", mimeType, ErrBadPayload)
		}
		if len(data) == 0 || len(data) > maxAttachmentSize {
			return fmt.Errorf("attachment size %d out of range: %w", len(data), ErrBadPayload)
		}

		name, err := o.files.Save(originalName, data)
		if err != nil {
			return fmt.Errorf("store attachment: %w", err)
		}
		a := &contracts.Attachment{
			SessionID:         sessionID,
			ParticipantID:     p.ID,
			ParticipantNumber: p.Number,
			Stage:             stage,
			FileName:          name,
			OriginalName:      originalName,
			Kind:              contracts.KindForMIME(mimeType),
			MimeType:          mimeType,
			Size:              int64(len(data)),
			UploadedAt:        o.now().UTC(),
		}
		if err := o.store.AddAttachment(ctx, a); err != nil {
			// Orphaned bytes are worse than a failed upload.
			if derr := o.files.Delete(name); derr != nil {
				o.logger.Warn("orphan cleanup failed", "file", name, "error", derr)
			}
			return fmt.Errorf("record attachment: %w", err)
		}
		o.logger.Info("attachment uploaded", "session_id", sessionID, "attachment_id", a.ID, "kind", a.Kind, "size", a.Size)
		out = a
		return nil
	})
	return out, err
}

// DeleteAttachment removes the record and the stored bytes. Only the
// uploader may delete, and only before the session completes.
func (o *Orchestrator) DeleteAttachment(ctx context.Context, sessionID, participantID string, id int64) error {
	return o.withSession(ctx, sessionID, "DeleteAttachment", func(ctx context.Context, sess *contracts.Session) error {
		if sess.Status.Terminal() {
			return fmt.Errorf("delete attachment in %s: %w", sess.Status, ErrInvalidState)
		}
		a, err := o.store.AttachmentByID(ctx, id)
		if err != nil {
			return err
		}
		if a.SessionID != sessionID {
			return store.ErrNotFound
		}
		if a.ParticipantID != participantID {
			return fmt.Errorf("attachment belongs to another participant: %w", ErrWrongRole)
		}
		if err := o.store.DeleteAttachment(ctx, id); err != nil {
			return err
		}
		if err := o.files.Delete(a.FileName); err != nil {
			o.logger.Warn("attachment file removal failed", "file", a.FileName, "error", err)
		}
		return nil
	})
}

// Attachments lists a session's attachment records.
func (o *Orchestrator) Attachments(ctx context.Context, sessionID string) ([]contracts.Attachment, error) {
	return o.store.Attachments(ctx, sessionID)
}

// OpenAttachment returns the record and raw bytes for serving.
func (o *Orchestrator) OpenAttachment(ctx context.Context, sessionID string, id int64) (*contracts.Attachment, []byte, error) {
	a, err := o.store.AttachmentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.SessionID != sessionID {
		return nil, nil, store.ErrNotFound
	}
	data, err := o.files.Read(a.FileName)
	if err != nil {
		return nil, nil, err
	}
	return a, data, nil
}

// GetSession loads a session for read-only presentation.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*contracts.Session, error) {
	return o.store.GetSession(ctx, sessionID)
}

// SessionByToken resolves a participant token to its session and participant.
func (o *Orchestrator) SessionByToken(ctx context.Context, token string) (*contracts.Session, *contracts.Participant, error) {
	return o.store.SessionByToken(ctx, token)
}

// SetParticipantEmail stores a participant's notification address.
func (o *Orchestrator) SetParticipantEmail(ctx context.Context, participantID, email string) error {
	return o.store.UpdateParticipantEmail(ctx, participantID, email)
}
