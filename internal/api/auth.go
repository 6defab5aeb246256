package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"wxbridge/internal/auth"
)

// authMiddleware enforces a valid bearer JWT on protected endpoints.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		if _, err := s.issuer.Verify(token); err != nil {
			s.logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// credentialsMatch compares client credentials in constant time.
func (s *Server) credentialsMatch(clientID, clientSecret string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(clientID), []byte(s.config.ClientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(s.config.ClientSecret)) == 1
	return idOK && secretOK
}

func (s *Server) writeError(w http.ResponseWriter, status int, errName, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errName, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
