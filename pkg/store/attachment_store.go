package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parley-labs/parley/pkg/contracts"
)

const attachmentColumns = `id, session_id, participant_id, participant_number, stage,
	file_name, original_name, kind, mime_type, size, uploaded_at`

// AddAttachment records attachment metadata and fills in the generated id.
func (s *SessionStore) AddAttachment(ctx context.Context, a *contracts.Attachment) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (session_id, participant_id, participant_number, stage,
			file_name, original_name, kind, mime_type, size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.ParticipantID, int(a.ParticipantNumber), string(a.Stage),
		a.FileName, a.OriginalName, string(a.Kind), a.MimeType, a.Size,
		a.UploadedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("attachment id: %w", err)
	}
	return nil
}

// Attachments lists every attachment of a session in upload order.
func (s *SessionStore) Attachments(ctx context.Context, sessionID string) ([]contracts.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AttachmentsByStage lists a session's attachments bound to one stage.
func (s *SessionStore) AttachmentsByStage(ctx context.Context, sessionID string, stage contracts.Stage) ([]contracts.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE session_id = ? AND stage = ? ORDER BY id`,
		sessionID, string(stage))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AttachmentByID loads one attachment record.
func (s *SessionStore) AttachmentByID(ctx context.Context, id int64) (*contracts.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	return scanAttachment(row)
}

// DeleteAttachment removes the metadata row. The caller deletes the bytes.
func (s *SessionStore) DeleteAttachment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attachment %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanAttachment(row rowScanner) (*contracts.Attachment, error) {
	var (
		a          contracts.Attachment
		number     int
		stage      string
		kind       string
		uploadedAt string
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.ParticipantID, &number, &stage,
		&a.FileName, &a.OriginalName, &kind, &a.MimeType, &a.Size, &uploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.ParticipantNumber = contracts.ParticipantNumber(number)
	a.Stage = contracts.Stage(stage)
	a.Kind = contracts.AttachmentKind(kind)
	a.UploadedAt = parseTime(uploadedAt)
	return &a, nil
}
