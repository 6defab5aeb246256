package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wxbridge/internal/auth"
	"wxbridge/internal/message"
)

// handleToken handles POST /integration/box/1.0/token, the
// client-credentials exchange the engagement platform performs before
// posting messages.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}

	if req.GrantType != "client_credentials" {
		s.writeError(w, http.StatusUnprocessableEntity, "UnsupportedGrantType", "grant_type must be client_credentials")
		return
	}

	if !s.credentialsMatch(req.ClientID, req.ClientSecret) {
		s.logger.Warn("token request with invalid credentials", "client_id", req.ClientID)
		s.writeError(w, http.StatusUnauthorized, "InvalidClient", "invalid client credentials")
		return
	}

	token, err := s.issuer.Issue(req.ClientID)
	if err != nil {
		s.logger.Error("failed to issue access token", "error", err)
		s.writeError(w, http.StatusInternalServerError, "InternalError", "failed to issue token")
		return
	}

	s.logger.Info("access token issued", "client_id", req.ClientID)
	s.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(auth.TokenTTL.Seconds()),
	})
}

// handlePostMessage handles POST /integration/box/1.0/posts/{postID}/messages.
// Delivery failures toward the chat platform are logged and swallowed; the
// response always carries a fresh idOnExternalPlatform so the engagement
// platform does not redeliver.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if postID == "" || utf8.RuneCountInString(postID) > message.MaxExternalIDLen {
		s.writeError(w, http.StatusUnprocessableEntity, "MessageProcessingError", "invalid post id")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "ValidationError", "failed to read request body")
		return
	}

	payload, err := message.Parse(body)
	if err != nil {
		s.logger.Warn("rejected outbound payload", "post_id", postID, "error", err)
		s.respondProcessingError(w, "invalid message payload", err)
		return
	}

	openID := payload.ExtractExternalID()
	if openID == "" {
		s.respondProcessingError(w, "unable to determine recipient", nil)
		return
	}

	text := payload.ExtractText()
	if text == "" {
		s.respondProcessingError(w, "unable to determine message text", nil)
		return
	}

	s.events.Publish("outbound.received", map[string]any{
		"post_id": postID,
	})

	msgID, err := s.sender.SendText(r.Context(), openID, text)
	if err != nil {
		// Acknowledge anyway. A non-200 here makes the engagement platform
		// retry the post, and the recipient sees the message twice.
		s.logger.Error("failed to deliver outbound message",
			"post_id", postID,
			"error", err,
		)
		s.events.Publish("outbound.failed", map[string]any{
			"post_id": postID,
		})
	} else {
		s.logger.Info("outbound message delivered",
			"post_id", postID,
			"msg_id", msgID,
		)
		s.events.Publish("outbound.delivered", map[string]any{
			"post_id": postID,
			"msg_id":  msgID,
		})
	}

	s.writeJSON(w, http.StatusOK, MessageAck{IDOnExternalPlatform: uuid.New().String()})
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	adapters := make(map[string]string, len(s.adapters))
	for name, a := range s.adapters {
		adapters[name] = string(a.BreakerState())
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		Version:       s.config.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Adapters:      adapters,
	})
}

func (s *Server) respondProcessingError(w http.ResponseWriter, msg string, cause error) {
	resp := ErrorResponse{Error: "MessageProcessingError", Message: msg}
	if cause != nil {
		resp.Details = cause.Error()
	}
	s.writeJSON(w, http.StatusUnprocessableEntity, resp)
}
