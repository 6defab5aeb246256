// Package wechat implements the WeChat Service Account integration: webhook
// signature verification, encrypted-envelope decryption, inbound XML message
// parsing, and the outbound text sender.
package wechat

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// CheckSignature verifies the webhook query signature: SHA1 over the
// lexicographically sorted concatenation of token, timestamp, and nonce.
// Comparison is constant-time.
func CheckSignature(token, signature, timestamp, nonce string) bool {
	if token == "" || signature == "" {
		return false
	}
	return signaturesEqual(signOf(token, timestamp, nonce), signature)
}

// checkMsgSignature verifies the inner signature of an encrypted envelope,
// which additionally covers the base64 ciphertext.
func checkMsgSignature(token, signature, timestamp, nonce, cipherB64 string) bool {
	if token == "" || signature == "" {
		return false
	}
	return signaturesEqual(signOf(token, timestamp, nonce, cipherB64), signature)
}

func signOf(parts ...string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)

	sum := sha1.Sum([]byte(strings.Join(sorted, "")))
	return hex.EncodeToString(sum[:])
}

func signaturesEqual(expected, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(presented))) == 1
}
