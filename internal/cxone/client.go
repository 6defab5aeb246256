// Package cxone implements the engagement-platform adapter: posting inbound
// messages onto a digital channel thread keyed by the WeChat openid.
package cxone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"unicode/utf8"

	"wxbridge/internal/message"
	"wxbridge/internal/transport"
)

// Local validation failures; no network call is made for these.
var (
	ErrExternalIDRequired = errors.New("externalId is required")
	ErrTextRequired       = errors.New("message text is required")
	ErrTextTooLong        = errors.New("message text exceeds 10000 characters")
)

// APIError wraps a failed post with its original cause.
type APIError struct {
	ExternalID string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engagement post for %s failed: %v", e.ExternalID, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// PostAck is the created-resource acknowledgment from the platform.
type PostAck struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// inboundEnvelope is the platform's thread/message shape for channel posts.
type inboundEnvelope struct {
	Thread struct {
		IDOnExternalPlatform string `json:"idOnExternalPlatform"`
	} `json:"thread"`
	Message struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"message"`
	Direction string `json:"direction"`
}

// Poster posts inbound messages to one engagement-platform channel through
// the resilient transport. Safe for concurrent use; the only shared state is
// the transport's breaker.
type Poster struct {
	channelID   string
	bearerToken string
	client      *transport.Client
	logger      *slog.Logger
}

// NewPoster creates a Poster for the given channel. client must be built
// against the engagement-platform base URL.
func NewPoster(channelID, bearerToken string, client *transport.Client, logger *slog.Logger) *Poster {
	return &Poster{
		channelID:   channelID,
		bearerToken: bearerToken,
		client:      client,
		logger:      logger,
	}
}

// BreakerState exposes the underlying transport breaker for health reporting.
func (p *Poster) BreakerState() transport.State {
	return p.client.BreakerState()
}

// PostInbound posts a user message onto the channel thread identified by
// externalID and returns the platform acknowledgment.
func (p *Poster) PostInbound(ctx context.Context, externalID, text string) (*PostAck, error) {
	if externalID == "" {
		return nil, ErrExternalIDRequired
	}
	if text == "" {
		return nil, ErrTextRequired
	}
	if utf8.RuneCountInString(text) > message.MaxTextLen {
		return nil, ErrTextTooLong
	}

	var env inboundEnvelope
	env.Thread.IDOnExternalPlatform = externalID
	env.Message.Text = text
	env.Message.Type = "text"
	env.Direction = "inbound"

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode inbound envelope: %w", err)
	}

	headers := http.Header{
		"Authorization": {"Bearer " + p.bearerToken},
		"Content-Type":  {"application/json"},
	}

	p.logger.Info("posting message to engagement platform",
		"external_id", externalID,
		"channel_id", p.channelID,
		"text_length", utf8.RuneCountInString(text),
	)

	path := "/channels/" + url.PathEscape(p.channelID) + "/messages"
	resp, err := p.client.Post(ctx, path, body, headers)
	if err != nil {
		return nil, &APIError{ExternalID: externalID, Err: err}
	}

	var ack PostAck
	if err := json.Unmarshal(resp.Body, &ack); err != nil {
		return nil, &APIError{ExternalID: externalID, Err: fmt.Errorf("decode response: %w", err)}
	}

	p.logger.Info("message posted to engagement platform",
		"external_id", externalID,
		"response_id", ack.ID,
	)
	return &ack, nil
}
