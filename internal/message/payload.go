// Package message normalizes the loosely-structured inbound JSON the
// engagement platform sends into a canonical (externalID, text) pair.
//
// The platform's payload shape is not rigid: producers spell the user id and
// the text in several documented and undocumented places. Extraction is an
// ordered set of rules over a permissive structure; the ordering is a
// contract, not an accident.
package message

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxExternalIDLen bounds every id-bearing field, in characters.
	MaxExternalIDLen = 128
	// MaxTextLen bounds every text-bearing field, in characters.
	MaxTextLen = 10000
)

// ValidationError reports a payload field that violates a size bound.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload field %s: %s", e.Field, e.Reason)
}

// Payload is the permissive engagement-platform message body. Unknown extra
// fields are tolerated and ignored.
type Payload struct {
	Thread    *ThreadInfo     `json:"thread,omitempty"`
	Recipient *RecipientInfo  `json:"recipient,omitempty"`
	Message   *MessageContent `json:"message,omitempty"`
	Text      string          `json:"text,omitempty"`
	Content   string          `json:"content,omitempty"`

	ExternalID string         `json:"externalId,omitempty"`
	OpenID     string         `json:"openid,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ThreadInfo carries the engagement-platform thread key.
type ThreadInfo struct {
	IDOnExternalPlatform string `json:"idOnExternalPlatform,omitempty"`
}

// RecipientInfo mirrors ThreadInfo for recipient-keyed payloads.
type RecipientInfo struct {
	IDOnExternalPlatform string `json:"idOnExternalPlatform,omitempty"`
}

// MessageContent is the nested message body.
type MessageContent struct {
	Text    string `json:"text,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

// Parse decodes and validates an engagement-platform payload.
func Parse(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate enforces field size bounds before any extraction is attempted.
// Bounds are in characters, not bytes; CJK text must not hit the limits
// early.
func (p *Payload) Validate() error {
	if p.Thread != nil && utf8.RuneCountInString(p.Thread.IDOnExternalPlatform) > MaxExternalIDLen {
		return &ValidationError{Field: "thread.idOnExternalPlatform", Reason: "exceeds 128 characters"}
	}
	if p.Recipient != nil && utf8.RuneCountInString(p.Recipient.IDOnExternalPlatform) > MaxExternalIDLen {
		return &ValidationError{Field: "recipient.idOnExternalPlatform", Reason: "exceeds 128 characters"}
	}
	if utf8.RuneCountInString(p.ExternalID) > MaxExternalIDLen {
		return &ValidationError{Field: "externalId", Reason: "exceeds 128 characters"}
	}
	if utf8.RuneCountInString(p.OpenID) > MaxExternalIDLen {
		return &ValidationError{Field: "openid", Reason: "exceeds 128 characters"}
	}
	if id := p.metadataOpenID(); utf8.RuneCountInString(id) > MaxExternalIDLen {
		return &ValidationError{Field: "metadata.openid", Reason: "exceeds 128 characters"}
	}

	if p.Message != nil {
		if utf8.RuneCountInString(p.Message.Text) > MaxTextLen {
			return &ValidationError{Field: "message.text", Reason: "exceeds 10000 characters"}
		}
		if utf8.RuneCountInString(p.Message.Content) > MaxTextLen {
			return &ValidationError{Field: "message.content", Reason: "exceeds 10000 characters"}
		}
	}
	if utf8.RuneCountInString(p.Text) > MaxTextLen {
		return &ValidationError{Field: "text", Reason: "exceeds 10000 characters"}
	}
	if utf8.RuneCountInString(p.Content) > MaxTextLen {
		return &ValidationError{Field: "content", Reason: "exceeds 10000 characters"}
	}
	return nil
}

// ExtractExternalID returns the external-platform user id, or "" when no
// id-bearing field is present. First match wins:
// thread.idOnExternalPlatform, recipient.idOnExternalPlatform, externalId,
// metadata.openid, openid.
func (p *Payload) ExtractExternalID() string {
	if p.Thread != nil && p.Thread.IDOnExternalPlatform != "" {
		return p.Thread.IDOnExternalPlatform
	}
	if p.Recipient != nil && p.Recipient.IDOnExternalPlatform != "" {
		return p.Recipient.IDOnExternalPlatform
	}
	if p.ExternalID != "" {
		return p.ExternalID
	}
	if id := p.metadataOpenID(); id != "" {
		return id
	}
	return p.OpenID
}

// ExtractText returns the message text, or "" when no text-bearing field is
// present. First match wins: message.text, message.content, text, content.
func (p *Payload) ExtractText() string {
	if p.Message != nil {
		if p.Message.Text != "" {
			return p.Message.Text
		}
		if p.Message.Content != "" {
			return p.Message.Content
		}
	}
	if p.Text != "" {
		return p.Text
	}
	return p.Content
}

// metadataOpenID coerces metadata.openid to a string; producers have sent
// both strings and numbers here.
func (p *Payload) metadataOpenID() string {
	if p.Metadata == nil {
		return ""
	}
	v, ok := p.Metadata["openid"]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; openids are opaque, render without
		// an exponent.
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
