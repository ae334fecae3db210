package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/orchestrator"
)

// Server exposes the negotiation service over HTTP. Participants
// authenticate every request with their session token via the
// X-Participant-Token header or the token query parameter.
type Server struct {
	orc       *orchestrator.Orchestrator
	events    notify.Subscriber
	publicURL string
	logger    *slog.Logger
}

func NewServer(orc *orchestrator.Orchestrator, events notify.Subscriber, publicURL string, logger *slog.Logger) *Server {
	return &Server{orc: orc, events: events, publicURL: publicURL, logger: logger}
}

// Routes builds the full route table.
func (s *Server) Routes(limiter *IPRateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/join/{token}", s.handleJoin)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/judgment", s.handleGetJudgment)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/sessions/{id}/invite", s.handleInviteLink)
	mux.HandleFunc("GET /api/sessions/{id}/opening", s.handleGetOpening)
	mux.HandleFunc("GET /api/sessions/{id}/contexts", s.handleGetContexts)
	mux.HandleFunc("GET /api/sessions/{id}/participant-context", s.handleGetProfile)

	mux.HandleFunc("POST /api/sessions/{id}/opening", s.handleSubmitOpening)
	mux.HandleFunc("POST /api/sessions/{id}/decision", s.handleDecide)
	mux.HandleFunc("POST /api/sessions/{id}/response", s.handleSubmitResponse)
	mux.HandleFunc("POST /api/sessions/{id}/context", s.handleSubmitContext)
	mux.HandleFunc("POST /api/sessions/{id}/verifications", s.handleSubmitVerifications)
	mux.HandleFunc("POST /api/sessions/{id}/judgment/retry", s.handleRetryJudgment)
	mux.HandleFunc("POST /api/sessions/{id}/email", s.handleSetEmail)

	mux.HandleFunc("POST /api/sessions/{id}/attachments", s.handleUploadAttachment)
	mux.HandleFunc("GET /api/sessions/{id}/attachments", s.handleListAttachments)
	mux.HandleFunc("GET /api/sessions/{id}/attachments/{attachmentID}", s.handleServeAttachment)
	mux.HandleFunc("DELETE /api/sessions/{id}/attachments/{attachmentID}", s.handleDeleteAttachment)

	var h http.Handler = mux
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return RequestLogger(s.logger, h)
}

// participant authenticates the request against the session in the path.
// A nil return means the response has already been written.
func (s *Server) participant(w http.ResponseWriter, r *http.Request) (*contracts.Session, *contracts.Participant) {
	token := r.Header.Get("X-Participant-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "Unauthorized", "A participant token is required")
		return nil, nil
	}
	sess, p, err := s.orc.SessionByToken(r.Context(), token)
	if err != nil {
		WriteOrchestratorError(w, err)
		return nil, nil
	}
	if id := r.PathValue("id"); id != "" && id != sess.ID {
		WriteForbidden(w, "Token does not belong to this session")
		return nil, nil
	}
	return sess, p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
