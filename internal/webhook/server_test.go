package webhook

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxbridge/internal/cxone"
	"wxbridge/internal/wechat"
	"wxbridge/internal/webhook/mocks"
)

func newTestCrypto(t *testing.T) *wechat.Crypto {
	t.Helper()
	key := strings.Repeat("a", 43)
	c, err := wechat.NewCrypto(testToken, key, "wx0123456789abcdef")
	require.NoError(t, err)
	return c
}

const testToken = "unit-test-token"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signQuery computes the SHA1-over-sorted-params signature WeChat attaches
// to webhook calls.
func signQuery(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

func signedURL(token string) string {
	timestamp, nonce := "1700000000", "nonce123"
	v := url.Values{}
	v.Set("signature", signQuery(token, timestamp, nonce))
	v.Set("timestamp", timestamp)
	v.Set("nonce", nonce)
	return "/wechat/webhook?" + v.Encode()
}

func textMessageXML(openID, content string) string {
	return fmt.Sprintf(`<xml>
  <ToUserName><![CDATA[gh_account]]></ToUserName>
  <FromUserName><![CDATA[%s]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[text]]></MsgType>
  <Content><![CDATA[%s]]></Content>
  <MsgId>6054768590064713728</MsgId>
</xml>`, openID, content)
}

func newTestServer(t *testing.T, poster MessagePoster, events EventPublisher) *Server {
	t.Helper()
	return New(Config{Listen: "127.0.0.1:0", Token: testToken}, nil, poster, events, testLogger())
}

func TestHandleVerify_EchoesChallengeOnValidSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := newTestServer(t, mocks.NewMockMessagePoster(ctrl), mocks.NewMockEventPublisher(ctrl))

	req := httptest.NewRequest(http.MethodGet, signedURL(testToken)+"&echostr=challenge-42", nil)
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-42", rec.Body.String())
}

func TestHandleVerify_RejectsBadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := newTestServer(t, mocks.NewMockMessagePoster(ctrl), mocks.NewMockEventPublisher(ctrl))

	req := httptest.NewRequest(http.MethodGet, signedURL("wrong-token")+"&echostr=challenge-42", nil)
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ValidationError")
	assert.NotContains(t, rec.Body.String(), "challenge-42")
}

func TestHandleVerify_RejectsMissingParameters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := newTestServer(t, mocks.NewMockMessagePoster(ctrl), mocks.NewMockEventPublisher(ctrl))

	req := httptest.NewRequest(http.MethodGet, "/wechat/webhook?echostr=only", nil)
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReceive_ForwardsTextMessageExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	poster.EXPECT().
		PostInbound(gomock.Any(), "oABC123", "hello bridge").
		Return(&cxone.PostAck{ID: "msg-9", Status: "accepted"}, nil).
		Times(1)

	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("webhook.received", gomock.Any())
	events.EXPECT().Publish("forward.delivered", gomock.Any())

	srv := newTestServer(t, poster, events)

	body := textMessageXML("oABC123", "hello bridge")
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandleReceive_RejectsBadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)

	srv := newTestServer(t, poster, events)

	body := textMessageXML("oABC123", "hello")
	req := httptest.NewRequest(http.MethodPost, signedURL("wrong-token"), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid signature")
}

func TestHandleReceive_RejectsOversizeBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := New(
		Config{Listen: "127.0.0.1:0", Token: testToken, MaxBodySize: 64},
		nil,
		mocks.NewMockMessagePoster(ctrl),
		mocks.NewMockEventPublisher(ctrl),
		testLogger(),
	)

	body := strings.Repeat("x", 65)
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestHandleReceive_AcksUnparseableBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("message.dropped", map[string]any{"reason": "parse_error"})

	srv := newTestServer(t, poster, events)

	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader("this is not xml"))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReceive_AcksUnsupportedMessageType(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("webhook.received", gomock.Any())
	events.EXPECT().Publish("message.dropped", map[string]any{
		"reason":   "unsupported_type",
		"msg_type": "image",
	})

	srv := newTestServer(t, poster, events)

	body := `<xml>
  <ToUserName><![CDATA[gh_account]]></ToUserName>
  <FromUserName><![CDATA[oABC123]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[image]]></MsgType>
  <MsgId>1</MsgId>
</xml>`
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReceive_AcksWhenForwardingFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	poster.EXPECT().
		PostInbound(gomock.Any(), "oABC123", "hello").
		Return(nil, errors.New("connection refused"))

	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("webhook.received", gomock.Any())
	events.EXPECT().Publish("forward.failed", gomock.Any())

	srv := newTestServer(t, poster, events)

	body := textMessageXML("oABC123", "hello")
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	// The sender must never see a forwarding failure; it would redeliver.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReceive_AcksMissingFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("webhook.received", gomock.Any())
	events.EXPECT().Publish("message.dropped", map[string]any{"reason": "missing_fields"})

	srv := newTestServer(t, poster, events)

	body := textMessageXML("oABC123", "")
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReceive_PlaintextFallbackWhenDecryptionFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	poster := mocks.NewMockMessagePoster(ctrl)
	poster.EXPECT().
		PostInbound(gomock.Any(), "oABC123", "plain delivery").
		Return(&cxone.PostAck{ID: "msg-1"}, nil)

	events := mocks.NewMockEventPublisher(ctrl)
	events.EXPECT().Publish("webhook.received", gomock.Any())
	events.EXPECT().Publish("forward.delivered", gomock.Any())

	crypto := newTestCrypto(t)
	srv := New(Config{Listen: "127.0.0.1:0", Token: testToken}, crypto, poster, events, testLogger())

	// Plaintext body with an encrypted-mode server configured; the decrypt
	// step fails and the handler falls back to parsing the body as-is.
	body := textMessageXML("oABC123", "plain delivery")
	req := httptest.NewRequest(http.MethodPost, signedURL(testToken), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAckRecoverer_ConvertsPanicToEmptyOK(t *testing.T) {
	srv := New(Config{Listen: "127.0.0.1:0", Token: testToken}, nil, nil, nil, testLogger())

	h := srv.ackRecoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/wechat/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
