package webhook

import (
	"errors"
	"io"
	"net/http"

	"wxbridge/internal/cxone"
	"wxbridge/internal/transport"
	"wxbridge/internal/wechat"
)

// handleVerify handles GET /wechat/webhook, the endpoint-ownership check
// WeChat performs when the webhook URL is configured.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signature := q.Get("signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")
	echostr := q.Get("echostr")

	if signature == "" || timestamp == "" || nonce == "" || echostr == "" {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "missing verification parameters")
		return
	}

	if !wechat.CheckSignature(s.config.Token, signature, timestamp, nonce) {
		s.logger.Warn("invalid webhook signature on verification",
			"signature_prefix", prefix(signature, 10),
			"timestamp", timestamp,
		)
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid signature")
		return
	}

	s.logger.Info("webhook endpoint verified", "timestamp", timestamp)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(echostr))
}

// handleReceive handles POST /wechat/webhook. See the package doc for the
// state machine; the short version is: invalid signature is the only
// non-200 outcome.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signature := q.Get("signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")

	if !wechat.CheckSignature(s.config.Token, signature, timestamp, nonce) {
		s.logger.Warn("invalid webhook signature",
			"signature_prefix", prefix(signature, 10),
			"timestamp", timestamp,
		)
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid signature")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "request body too large")
		return
	}

	// All paths from here on acknowledge.
	s.process(r, body, q.Get("msg_signature"), timestamp, nonce)
	w.WriteHeader(http.StatusOK)
}

// process runs decrypt -> parse -> filter -> forward. It never fails the
// request; failures are logged, published, and swallowed.
func (s *Server) process(r *http.Request, body []byte, msgSignature, timestamp, nonce string) {
	if s.crypto != nil {
		decrypted, err := s.crypto.DecryptMessage(body, msgSignature, timestamp, nonce)
		if err != nil {
			// Fall back to plaintext parsing. Some tenants mix encrypted and
			// plaintext delivery during key rotation.
			s.logger.Error("webhook decryption failed, trying plaintext", "error", err)
		} else {
			body = decrypted
			s.logger.Debug("webhook message decrypted")
		}
	}

	msg, err := wechat.ParseMessage(body)
	if err != nil {
		s.logger.Warn("unparseable webhook message dropped", "error", err)
		s.events.Publish("message.dropped", map[string]any{"reason": "parse_error"})
		return
	}

	s.logger.Info("wechat message received",
		"msg_type", msg.Type,
		"source", msg.SourceID,
		"msg_id", msg.ID,
	)
	s.events.Publish("webhook.received", map[string]any{
		"msg_type": msg.Type,
		"msg_id":   msg.ID,
	})

	if msg.Type != wechat.MsgTypeText {
		s.logger.Info("unsupported message type dropped", "msg_type", msg.Type, "source", msg.SourceID)
		s.events.Publish("message.dropped", map[string]any{
			"reason":   "unsupported_type",
			"msg_type": msg.Type,
		})
		return
	}

	if msg.SourceID == "" || msg.Content == "" {
		s.logger.Warn("text message missing openid or content dropped",
			"has_openid", msg.SourceID != "",
			"has_content", msg.Content != "",
		)
		s.events.Publish("message.dropped", map[string]any{"reason": "missing_fields"})
		return
	}

	ack, err := s.poster.PostInbound(r.Context(), msg.SourceID, msg.Content)
	if err != nil {
		s.logger.Error("failed to forward message to engagement platform",
			"external_id", msg.SourceID,
			"error", err,
			"error_kind", errorKind(err),
		)
		s.events.Publish("forward.failed", map[string]any{
			"external_id": msg.SourceID,
			"error_kind":  errorKind(err),
		})
		return
	}

	s.logger.Info("message forwarded to engagement platform",
		"external_id", msg.SourceID,
		"response_id", ack.ID,
	)
	s.events.Publish("forward.delivered", map[string]any{
		"external_id": msg.SourceID,
		"response_id": ack.ID,
	})
}

// errorKind classifies a forwarding failure for logs and telemetry.
func errorKind(err error) string {
	var apiErr *cxone.APIError
	switch {
	case errors.Is(err, transport.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr):
		return "engagement_api"
	default:
		return "unexpected"
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
