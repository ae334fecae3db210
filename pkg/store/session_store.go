// Package store persists sessions, participants, and attachment metadata in
// sqlite, and raw attachment bytes on disk. The session row is read and
// written whole; concurrency control lives in the orchestrator, not here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parley-labs/parley/pkg/contracts"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("not found")

type SessionStore struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and migrates it.
func Open(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; keep the pool at a single connection so
	// concurrent handlers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return NewSessionStore(db)
}

func NewSessionStore(db *sql.DB) (*SessionStore, error) {
	s := &SessionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME,
		status TEXT NOT NULL,
		current_round INTEGER NOT NULL DEFAULT 0,
		visibility TEXT NOT NULL,
		workflow TEXT NOT NULL,
		language TEXT NOT NULL,
		model TEXT,
		override JSON,
		title TEXT,
		initial_description TEXT,
		opening JSON,
		counter JSON,
		opening_summary TEXT,
		briefing TEXT,
		response_summary TEXT,
		dispute_points JSON,
		p1_context TEXT,
		p2_context TEXT,
		p1_context_summary TEXT,
		p2_context_summary TEXT,
		facts JSON,
		p1_verifications JSON,
		p2_verifications JSON,
		profile JSON,
		judgment JSON
	);
	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		number INTEGER NOT NULL,
		token TEXT NOT NULL UNIQUE,
		is_initiator INTEGER NOT NULL DEFAULT 0,
		email TEXT,
		joined_at DATETIME,
		UNIQUE (session_id, number)
	);
	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		participant_id TEXT NOT NULL,
		participant_number INTEGER NOT NULL,
		stage TEXT NOT NULL,
		file_name TEXT NOT NULL,
		original_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		uploaded_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_session ON attachments(session_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying database.
func (s *SessionStore) Close() error { return s.db.Close() }

const sessionColumns = `id, created_at, status, current_round, visibility, workflow, language,
	model, override, title, initial_description, opening, counter, opening_summary, briefing,
	response_summary, dispute_points, p1_context, p2_context, p1_context_summary,
	p2_context_summary, facts, p1_verifications, p2_verifications, profile, judgment`

// CreateSession inserts the session and both participant rows in one
// transaction.
func (s *SessionStore) CreateSession(ctx context.Context, sess *contracts.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range sess.Participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO participants (id, session_id, number, token, is_initiator, email, joined_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.SessionID, int(p.Number), p.Token, p.IsInitiator, nullString(p.Email), nullTime(p.JoinedAt),
		)
		if err != nil {
			return fmt.Errorf("insert participant %d: %w", p.Number, err)
		}
	}
	return tx.Commit()
}

// SaveSession rewrites the whole session row. Participants are untouched;
// they change only through JoinByToken and UpdateParticipantEmail.
func (s *SessionStore) SaveSession(ctx context.Context, sess *contracts.Session) error {
	query := `UPDATE sessions SET
		created_at = ?, status = ?, current_round = ?, visibility = ?, workflow = ?, language = ?,
		model = ?, override = ?, title = ?, initial_description = ?, opening = ?, counter = ?,
		opening_summary = ?, briefing = ?, response_summary = ?, dispute_points = ?,
		p1_context = ?, p2_context = ?, p1_context_summary = ?, p2_context_summary = ?,
		facts = ?, p1_verifications = ?, p2_verifications = ?, profile = ?, judgment = ?
		WHERE id = ?`
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	// sessionArgs leads with the id; rotate it to the WHERE position.
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

// GetSession loads a session with both participants.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*contracts.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	if sess.Participants, err = s.participants(ctx, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// SessionByToken resolves a participant access token to its session and
// participant record.
func (s *SessionStore) SessionByToken(ctx context.Context, token string) (*contracts.Session, *contracts.Participant, error) {
	p, err := s.participantByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, p, nil
}

// JoinByToken marks the participant joined the first time they connect and
// returns the record. Subsequent calls leave joined_at untouched.
func (s *SessionStore) JoinByToken(ctx context.Context, token string, now time.Time) (*contracts.Participant, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET joined_at = ? WHERE token = ? AND joined_at IS NULL`,
		now.UTC().Format(time.RFC3339Nano), token)
	if err != nil {
		return nil, fmt.Errorf("mark joined: %w", err)
	}
	return s.participantByToken(ctx, token)
}

// UpdateParticipantEmail stores the address used for notification mail.
func (s *SessionStore) UpdateParticipantEmail(ctx context.Context, participantID, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE participants SET email = ? WHERE id = ?`, nullString(email), participantID)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	return nil
}

func (s *SessionStore) participantByToken(ctx context.Context, token string) (*contracts.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, number, token, is_initiator, email, joined_at
		 FROM participants WHERE token = ?`, token)
	return scanParticipant(row)
}

func (s *SessionStore) participants(ctx context.Context, sessionID string) ([]contracts.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, number, token, is_initiator, email, joined_at
		 FROM participants WHERE session_id = ? ORDER BY number`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*contracts.Participant, error) {
	var (
		p        contracts.Participant
		number   int
		email    sql.NullString
		joinedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.SessionID, &number, &p.Token, &p.IsInitiator, &email, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Number = contracts.ParticipantNumber(number)
	p.Email = email.String
	if joinedAt.Valid && joinedAt.String != "" {
		t := parseTime(joinedAt.String)
		p.JoinedAt = &t
	}
	return &p, nil
}

// sessionArgs flattens a session into the column order of sessionColumns.
func sessionArgs(sess *contracts.Session) ([]any, error) {
	override, err := marshalNullable(sess.Override)
	if err != nil {
		return nil, err
	}
	opening, err := marshalNullable(sess.Opening)
	if err != nil {
		return nil, err
	}
	counter, err := marshalNullable(sess.Counter)
	if err != nil {
		return nil, err
	}
	profile, err := marshalNullable(sess.Profile)
	if err != nil {
		return nil, err
	}
	judgment, err := marshalNullable(sess.Judgment)
	if err != nil {
		return nil, err
	}
	disputePoints, err := marshalEmptyable(len(sess.DisputePoints) > 0, sess.DisputePoints)
	if err != nil {
		return nil, err
	}
	facts, err := marshalEmptyable(len(sess.Facts) > 0, sess.Facts)
	if err != nil {
		return nil, err
	}
	p1v, err := marshalEmptyable(len(sess.P1Verifications) > 0, sess.P1Verifications)
	if err != nil {
		return nil, err
	}
	p2v, err := marshalEmptyable(len(sess.P2Verifications) > 0, sess.P2Verifications)
	if err != nil {
		return nil, err
	}

	return []any{
		sess.ID,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(sess.Status),
		sess.CurrentRound,
		string(sess.Visibility),
		string(sess.Workflow),
		string(sess.Language),
		nullString(sess.Model),
		override,
		nullString(sess.Title),
		nullString(sess.InitialDescription),
		opening,
		counter,
		nullString(sess.OpeningSummary),
		nullString(sess.Briefing),
		nullString(sess.ResponseSummary),
		disputePoints,
		nullString(sess.P1Context),
		nullString(sess.P2Context),
		nullString(sess.P1ContextSummary),
		nullString(sess.P2ContextSummary),
		facts,
		p1v,
		p2v,
		profile,
		judgment,
	}, nil
}

func scanSession(row rowScanner) (*contracts.Session, error) {
	var (
		sess                                  contracts.Session
		createdAt                             string
		status, visibility, workflow, lang    string
		model, title, description             sql.NullString
		override, opening, counter            sql.NullString
		summary, briefing, respSummary        sql.NullString
		disputePoints, p1ctx, p2ctx           sql.NullString
		p1ctxSummary, p2ctxSummary            sql.NullString
		facts, p1v, p2v, profile, judgment    sql.NullString
	)
	err := row.Scan(&sess.ID, &createdAt, &status, &sess.CurrentRound, &visibility, &workflow, &lang,
		&model, &override, &title, &description, &opening, &counter, &summary, &briefing,
		&respSummary, &disputePoints, &p1ctx, &p2ctx, &p1ctxSummary, &p2ctxSummary,
		&facts, &p1v, &p2v, &profile, &judgment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sess.CreatedAt = parseTime(createdAt)
	sess.Status = contracts.Status(status)
	sess.Visibility = contracts.Visibility(visibility)
	sess.Workflow = contracts.Workflow(workflow)
	sess.Language = contracts.Language(lang)
	sess.Model = model.String
	sess.Title = title.String
	sess.InitialDescription = description.String
	sess.OpeningSummary = summary.String
	sess.Briefing = briefing.String
	sess.ResponseSummary = respSummary.String
	sess.P1Context = p1ctx.String
	sess.P2Context = p2ctx.String
	sess.P1ContextSummary = p1ctxSummary.String
	sess.P2ContextSummary = p2ctxSummary.String

	if err := unmarshalNullable(override, &sess.Override); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(opening, &sess.Opening); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(counter, &sess.Counter); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(profile, &sess.Profile); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(judgment, &sess.Judgment); err != nil {
		return nil, err
	}
	if err := unmarshalInto(disputePoints, &sess.DisputePoints); err != nil {
		return nil, err
	}
	if err := unmarshalInto(facts, &sess.Facts); err != nil {
		return nil, err
	}
	if err := unmarshalInto(p1v, &sess.P1Verifications); err != nil {
		return nil, err
	}
	if err := unmarshalInto(p2v, &sess.P2Verifications); err != nil {
		return nil, err
	}
	return &sess, nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column: %w", err)
	}
	return string(data), nil
}

func marshalEmptyable(present bool, v any) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column: %w", err)
	}
	return string(data), nil
}

func unmarshalNullable[T any](col sql.NullString, dst **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	out := new(T)
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	*dst = out
	return nil
}

func unmarshalInto(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
