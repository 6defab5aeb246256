package wechat

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sha1Sorted(parts ...string) string {
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

func TestCheckSignature(t *testing.T) {
	token := "bridge-token"
	ts := "1700000000"
	nonce := "n0nce"

	valid := sha1Sorted(token, ts, nonce)

	assert.True(t, CheckSignature(token, valid, ts, nonce))
	assert.True(t, CheckSignature(token, strings.ToUpper(valid), ts, nonce),
		"hex case must not matter")

	assert.False(t, CheckSignature(token, "deadbeef", ts, nonce))
	assert.False(t, CheckSignature(token, valid, ts, "other-nonce"))
	assert.False(t, CheckSignature("other-token", valid, ts, nonce))
	assert.False(t, CheckSignature(token, "", ts, nonce))
	assert.False(t, CheckSignature("", valid, ts, nonce))
}

func TestCheckSignature_OrderIndependent(t *testing.T) {
	// The digest covers the sorted values, so parameter order is irrelevant.
	sig := sha1Sorted("zzz", "aaa", "mmm")
	assert.True(t, CheckSignature("zzz", sig, "aaa", "mmm"))
	assert.True(t, CheckSignature("aaa", sig, "zzz", "mmm"))
}

func TestCheckMsgSignature_CoversCiphertext(t *testing.T) {
	token := "tok"
	ts := "123"
	nonce := "abc"
	cipher := "AAAA=="

	sig := sha1Sorted(token, ts, nonce, cipher)
	assert.True(t, checkMsgSignature(token, sig, ts, nonce, cipher))
	assert.False(t, checkMsgSignature(token, sig, ts, nonce, "BBBB=="))
}
