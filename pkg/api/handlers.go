package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/orchestrator"
)

// CreateSessionRequest is the payload for POST /api/sessions.
type CreateSessionRequest struct {
	Visibility contracts.Visibility          `json:"visibility"`
	Workflow   contracts.Workflow            `json:"workflow"`
	Language   contracts.Language            `json:"language"`
	Title      string                        `json:"title"`
	Initial    string                        `json:"initial_description"`
	Model      string                        `json:"model,omitempty"`
	Override   *contracts.GenerationOverride `json:"override,omitempty"`
	P1Email    string                        `json:"p1_email,omitempty"`
	P2Email    string                        `json:"p2_email,omitempty"`
}

// CreateSessionResponse returns the creator's token together with the
// invitation token for the second participant.
type CreateSessionResponse struct {
	Session SessionView `json:"session"`
	P1Token string      `json:"p1_token"`
	P2Token string      `json:"p2_token"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Title == "" {
		WriteBadRequest(w, "Missing required field: title")
		return
	}

	sess, err := s.orc.CreateSession(r.Context(), orchestrator.CreateParams{
		Visibility: req.Visibility,
		Workflow:   req.Workflow,
		Language:   req.Language,
		Title:      req.Title,
		Initial:    req.Initial,
		Model:      req.Model,
		Override:   req.Override,
		P1Email:    req.P1Email,
		P2Email:    req.P2Email,
	})
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		Session: NewSessionView(sess, contracts.Participant1),
		P1Token: sess.ParticipantByNumber(contracts.Participant1).Token,
		P2Token: sess.ParticipantByNumber(contracts.Participant2).Token,
	})
}

// JoinResponse carries the joining participant's own identity next to their
// scoped view of the session.
type JoinResponse struct {
	Session       SessionView                 `json:"session"`
	ParticipantID string                      `json:"participant_id"`
	Number        contracts.ParticipantNumber `json:"number"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.orc.Join(r.Context(), r.PathValue("token"))
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinResponse{
		Session:       NewSessionView(sess, p.Number),
		ParticipantID: p.ID,
		Number:        p.Number,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(sess, p.Number))
}

// JudgmentResponse bundles the verdict with the material it was rendered
// from, so the result page needs a single fetch. Facts and verifications are
// the viewer's own filtered view; see contracts.ViewFor.
type JudgmentResponse struct {
	Judgment      *contracts.Judgment       `json:"judgment"`
	Facts         []contracts.Fact          `json:"facts,omitempty"`
	Verifications contracts.VerificationSet `json:"verifications,omitempty"`
	Title         string                    `json:"title"`
	Language      contracts.Language        `json:"language"`
}

func (s *Server) handleGetJudgment(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	if sess.Status != contracts.StatusCompleted || sess.Judgment == nil {
		WriteNotFound(w, "No judgment has been produced for this session")
		return
	}
	resp := JudgmentResponse{
		Judgment: sess.Judgment,
		Facts:    contracts.ViewFor(sess.Facts, p.Number).Facts,
		Title:    sess.Title,
		Language: sess.Language,
	}
	if p.Number == contracts.Participant1 {
		resp.Verifications = sess.P1Verifications
	} else {
		resp.Verifications = sess.P2Verifications
	}
	writeJSON(w, http.StatusOK, resp)
}

// InviteResponse carries the second participant's join link.
type InviteResponse struct {
	Token string `json:"token"`
	Link  string `json:"link"`
}

// handleInviteLink returns participant 2's invitation. Only the initiator
// may request it.
func (s *Server) handleInviteLink(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	if p.Number != contracts.Participant1 {
		WriteForbidden(w, "Only the initiating participant can fetch the invite link")
		return
	}
	p2 := sess.ParticipantByNumber(contracts.Participant2)
	writeJSON(w, http.StatusOK, InviteResponse{
		Token: p2.Token,
		Link:  s.publicURL + "/session/" + sess.ID + "/" + p2.Token,
	})
}

// handleGetOpening returns participant 1's raw structured answers. In blind
// visibility only participant 1 may read them.
func (s *Server) handleGetOpening(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	if sess.Opening == nil {
		WriteNotFound(w, "No opening statement has been submitted")
		return
	}
	if p.Number != contracts.Participant1 && sess.Visibility != contracts.VisibilityOpen {
		WriteForbidden(w, "Opening answers are not shared in blind sessions")
		return
	}
	writeJSON(w, http.StatusOK, sess.Opening)
}

// ContextsResponse holds both sides' additional context. The viewer gets
// their own submission verbatim; the counterparty's side is the derived
// summary unless the session is open.
type ContextsResponse struct {
	P1Context string `json:"p1_context,omitempty"`
	P2Context string `json:"p2_context,omitempty"`
}

func (s *Server) handleGetContexts(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	resp := ContextsResponse{
		P1Context: sess.P1ContextSummary,
		P2Context: sess.P2ContextSummary,
	}
	open := sess.Visibility == contracts.VisibilityOpen
	if open || p.Number == contracts.Participant1 {
		resp.P1Context = sess.P1Context
	}
	if open || p.Number == contracts.Participant2 {
		resp.P2Context = sess.P2Context
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetProfile serves the identity-inference blob for the debug panel.
// An empty object means no inference has run yet.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	if sess.Profile == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sess.Profile)
}

// OpeningRequest is the payload for POST /api/sessions/{id}/opening.
type OpeningRequest struct {
	WhatHappened      string `json:"what_happened"`
	WhatLedToIt       string `json:"what_led_to_it"`
	HowItMadeThemFeel string `json:"how_it_made_them_feel"`
	DesiredOutcome    string `json:"desired_outcome"`
}

func (s *Server) handleSubmitOpening(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req OpeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	err := s.orc.SubmitOpening(r.Context(), sess.ID, p.ID, contracts.OpeningStatement{
		WhatHappened:      req.WhatHappened,
		WhatLedToIt:       req.WhatLedToIt,
		HowItMadeThemFeel: req.HowItMadeThemFeel,
		DesiredOutcome:    req.DesiredOutcome,
	})
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

// DecisionRequest is the payload for POST /api/sessions/{id}/decision.
type DecisionRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.orc.Decide(r.Context(), sess.ID, p.ID, req.Accept); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

// ResponseRequest is the payload for POST /api/sessions/{id}/response.
// Kind selects between a free-form dispute and the structured answer set.
type ResponseRequest struct {
	Kind              contracts.ResponseKind `json:"kind"`
	DisputeText       string                 `json:"dispute_text,omitempty"`
	WhatHappened      string                 `json:"what_happened,omitempty"`
	WhatLedToIt       string                 `json:"what_led_to_it,omitempty"`
	HowItMadeThemFeel string                 `json:"how_it_made_them_feel,omitempty"`
	DesiredOutcome    string                 `json:"desired_outcome,omitempty"`
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	err := s.orc.SubmitResponse(r.Context(), sess.ID, p.ID, contracts.CounterStatement{
		Kind:              req.Kind,
		DisputeText:       req.DisputeText,
		WhatHappened:      req.WhatHappened,
		WhatLedToIt:       req.WhatLedToIt,
		HowItMadeThemFeel: req.HowItMadeThemFeel,
		DesiredOutcome:    req.DesiredOutcome,
	})
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

// ContextRequest is the payload for POST /api/sessions/{id}/context.
type ContextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmitContext(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.orc.SubmitContext(r.Context(), sess.ID, p.ID, req.Text); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

// VerificationsRequest maps each fact's position in the caller's filtered
// list to their verdict on it.
type VerificationsRequest struct {
	Verifications contracts.VerificationSet `json:"verifications"`
}

func (s *Server) handleSubmitVerifications(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	var req VerificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if len(req.Verifications) == 0 {
		WriteBadRequest(w, "At least one verification is required")
		return
	}
	if err := s.orc.SubmitFactVerification(r.Context(), sess.ID, p.ID, req.Verifications); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

func (s *Server) handleRetryJudgment(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	if err := s.orc.RetryJudgment(r.Context(), sess.ID); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	s.writeUpdated(w, r, sess.ID, p.Number)
}

// EmailRequest is the payload for POST /api/sessions/{id}/email.
type EmailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSetEmail(w http.ResponseWriter, r *http.Request) {
	_, p := s.participant(w, r)
	if p == nil {
		return
	}
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		WriteBadRequest(w, "Missing required field: email")
		return
	}
	if err := s.orc.SetParticipantEmail(r.Context(), p.ID, req.Email); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maxUploadBytes caps multipart upload bodies, form overhead included.
const maxUploadBytes = 11 << 20

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteBadRequest(w, "Invalid multipart body")
		return
	}
	stage := contracts.Stage(r.FormValue("stage"))
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	mimeType := header.Header.Get("Content-Type")

	a, err := s.orc.UploadAttachment(r.Context(), sess.ID, p.ID, stage, header.Filename, mimeType, data)
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	attachments, err := s.orc.Attachments(r.Context(), sess.ID)
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	if attachments == nil {
		attachments = []contracts.Attachment{}
	}
	writeJSON(w, http.StatusOK, attachments)
}

func (s *Server) handleServeAttachment(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("attachmentID"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "Invalid attachment id")
		return
	}
	a, data, err := s.orc.OpenAttachment(r.Context(), sess.ID, id)
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+a.OriginalName+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("attachmentID"), 10, 64)
	if err != nil {
		WriteBadRequest(w, "Invalid attachment id")
		return
	}
	if err := s.orc.DeleteAttachment(r.Context(), sess.ID, p.ID, id); err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeUpdated responds to a successful action with the caller's fresh view.
func (s *Server) writeUpdated(w http.ResponseWriter, r *http.Request, sessionID string, n contracts.ParticipantNumber) {
	sess, err := s.orc.GetSession(r.Context(), sessionID)
	if err != nil {
		WriteOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(sess, n))
}
