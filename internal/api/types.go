package api

// TokenRequest is the JSON body for POST /integration/box/1.0/token.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenResponse is returned on successful client-credentials exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// MessageAck is returned for every accepted outbound post. The engagement
// platform treats a missing idOnExternalPlatform as a delivery failure and
// redelivers, so the field is always populated.
type MessageAck struct {
	IDOnExternalPlatform string `json:"idOnExternalPlatform"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Adapters      map[string]string `json:"adapters"`
}
