package wechat

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
)

// Errors surfaced by envelope decryption. Callers on the webhook path treat
// all of them as "fall back to plaintext", so precision here serves logs, not
// control flow.
var (
	ErrInvalidAESKey       = errors.New("encoding AES key must be 43 characters")
	ErrMsgSignatureInvalid = errors.New("msg_signature mismatch")
	ErrAppIDMismatch       = errors.New("decrypted appid does not match")
)

// Crypto decrypts WeChat encrypted webhook envelopes. The scheme is
// AES-256-CBC with the IV taken from the key prefix and a 16-byte random
// header plus a 4-byte big-endian length ahead of the message body.
type Crypto struct {
	token string
	appID string
	key   []byte
}

// NewCrypto builds a Crypto from the 43-character EncodingAESKey configured
// in the WeChat console.
func NewCrypto(token, encodingAESKey, appID string) (*Crypto, error) {
	if len(encodingAESKey) != 43 {
		return nil, ErrInvalidAESKey
	}
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("decode encoding AES key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidAESKey
	}
	return &Crypto{token: token, appID: appID, key: key}, nil
}

// encryptedEnvelope is the outer XML carrying the ciphertext.
type encryptedEnvelope struct {
	XMLName xml.Name `xml:"xml"`
	Encrypt string   `xml:"Encrypt"`
}

// DecryptMessage validates msgSignature against the envelope ciphertext and
// returns the decrypted inner XML.
func (c *Crypto) DecryptMessage(body []byte, msgSignature, timestamp, nonce string) ([]byte, error) {
	var env encryptedEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse encrypted envelope: %w", err)
	}
	if env.Encrypt == "" {
		return nil, errors.New("envelope has no Encrypt element")
	}

	if !checkMsgSignature(c.token, msgSignature, timestamp, nonce, env.Encrypt) {
		return nil, ErrMsgSignatureInvalid
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext)
	if err != nil {
		return nil, err
	}

	// Layout: 16 random bytes, 4-byte big-endian length, message, appid.
	if len(plaintext) < 20 {
		return nil, errors.New("decrypted payload too short")
	}
	msgLen := binary.BigEndian.Uint32(plaintext[16:20])
	if int(msgLen) > len(plaintext)-20 {
		return nil, errors.New("decrypted length prefix out of range")
	}

	msg := plaintext[20 : 20+msgLen]
	appID := plaintext[20+msgLen:]
	if !bytes.Equal(appID, []byte(c.appID)) {
		return nil, ErrAppIDMismatch
	}

	return msg, nil
}

// pkcs7Unpad removes PKCS#7 padding. WeChat pads to 32-byte blocks, so valid
// pad lengths run 1..32.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > 32 || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-pad], nil
}
