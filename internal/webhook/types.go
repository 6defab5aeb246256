package webhook

import (
	"context"

	"wxbridge/internal/cxone"
)

//go:generate mockgen -source=types.go -destination=mocks/poster.go -package=mocks

// MessagePoster forwards a normalized inbound message to the engagement
// platform.
type MessagePoster interface {
	PostInbound(ctx context.Context, externalID, text string) (*cxone.PostAck, error)
}

// EventPublisher receives bridge telemetry; satisfied by *events.Hub.
type EventPublisher interface {
	Publish(eventType string, data any)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Token is the webhook signature token configured in the WeChat console.
	Token string

	// MaxBodySize bounds the request body before any parsing (bytes).
	MaxBodySize int64
}

// DefaultMaxBodySize bounds webhook bodies when no limit is configured.
const DefaultMaxBodySize = 100000

// ErrorResponse is the JSON body for rejected requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
