package wechat

import (
	"encoding/xml"
	"fmt"
)

// MsgTypeText is the only inbound type the bridge forwards. Everything else
// is acknowledged and dropped.
const MsgTypeText = "text"

// InboundMessage is a parsed webhook message. SourceID is the sender's
// openid, the key the engagement platform threads conversations on.
type InboundMessage struct {
	Type     string
	SourceID string
	Content  string
	ID       int64
}

// inboundXML mirrors the plaintext webhook XML.
type inboundXML struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	MsgID        int64    `xml:"MsgId"`
}

// ParseMessage decodes a plaintext webhook XML body.
func ParseMessage(body []byte) (*InboundMessage, error) {
	var raw inboundXML
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse webhook message: %w", err)
	}
	return &InboundMessage{
		Type:     raw.MsgType,
		SourceID: raw.FromUserName,
		Content:  raw.Content,
		ID:       raw.MsgID,
	}, nil
}
