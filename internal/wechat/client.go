package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"wxbridge/internal/message"
	"wxbridge/internal/transport"
)

// DefaultAPIBaseURL is the production WeChat API host. Tests and mock
// deployments point the sender elsewhere.
const DefaultAPIBaseURL = "https://api.weixin.qq.com"

// tokenExpiryMargin refreshes the cached access token slightly before WeChat
// would reject it.
const tokenExpiryMargin = 60 * time.Second

// WeChat errcodes meaning the cached access token is no longer usable.
const (
	errCodeInvalidCredential = 40001
	errCodeTokenExpired      = 42001
)

// Local validation failures; no network call is made for these.
var (
	ErrOpenIDRequired  = errors.New("openid is required")
	ErrContentRequired = errors.New("message content is required")
	ErrContentTooLong  = errors.New("message content exceeds 10000 characters")
)

// APIError wraps a failed send with its original cause.
type APIError struct {
	OpenID  string
	ErrCode int
	Err     error
}

func (e *APIError) Error() string {
	if e.ErrCode != 0 {
		return fmt.Sprintf("wechat send to %s failed: errcode %d: %v", e.OpenID, e.ErrCode, e.Err)
	}
	return fmt.Sprintf("wechat send to %s failed: %v", e.OpenID, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Sender delivers text messages to WeChat users through the resilient
// transport. It owns the access-token cache; safe for concurrent use.
type Sender struct {
	appID     string
	appSecret string
	client    *transport.Client
	logger    *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

// NewSender creates a Sender. client must be built against the WeChat API
// base URL.
func NewSender(appID, appSecret string, client *transport.Client, logger *slog.Logger) *Sender {
	return &Sender{
		appID:     appID,
		appSecret: appSecret,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// BreakerState exposes the underlying transport breaker for health reporting.
func (s *Sender) BreakerState() transport.State {
	return s.client.BreakerState()
}

type sendTextRequest struct {
	ToUser  string `json:"touser"`
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type sendTextResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	MsgID   int64  `json:"msgid"`
}

// SendText sends a plain text message to the given openid and returns the
// WeChat message id. Validation failures return before any network call.
func (s *Sender) SendText(ctx context.Context, openID, content string) (int64, error) {
	if openID == "" {
		return 0, ErrOpenIDRequired
	}
	if content == "" {
		return 0, ErrContentRequired
	}
	if utf8.RuneCountInString(content) > message.MaxTextLen {
		return 0, ErrContentTooLong
	}

	s.logger.Info("sending wechat message", "openid", openID, "content_length", utf8.RuneCountInString(content))

	resp, err := s.send(ctx, openID, content, false)
	if err == nil && tokenRejected(resp) {
		// Cached token went stale between fetch and use; refresh and retry
		// the send once.
		s.logger.Warn("wechat access token rejected, refreshing", "errcode", resp.ErrCode)
		s.invalidateToken()
		resp, err = s.send(ctx, openID, content, true)
	}
	if err != nil {
		return 0, &APIError{OpenID: openID, Err: err}
	}
	if resp.ErrCode != 0 {
		return 0, &APIError{OpenID: openID, ErrCode: resp.ErrCode, Err: errors.New(resp.ErrMsg)}
	}

	s.logger.Info("wechat message sent", "openid", openID, "msgid", resp.MsgID)
	return resp.MsgID, nil
}

func (s *Sender) send(ctx context.Context, openID, content string, fresh bool) (*sendTextResponse, error) {
	token, err := s.token(ctx, fresh)
	if err != nil {
		return nil, err
	}

	req := sendTextRequest{ToUser: openID, MsgType: MsgTypeText}
	req.Text.Content = content
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}

	path := "/cgi-bin/message/custom/send?access_token=" + url.QueryEscape(token)
	httpResp, err := s.client.Post(ctx, path, body, jsonHeaders())
	if err != nil {
		return nil, err
	}

	var resp sendTextResponse
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return &resp, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// token returns a cached access token, fetching a new one when missing,
// near expiry, or when fresh forces a refetch.
func (s *Sender) token(ctx context.Context, fresh bool) (string, error) {
	s.mu.Lock()
	if !fresh && s.accessToken != "" && s.now().Before(s.tokenExpiry) {
		token := s.accessToken
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	path := fmt.Sprintf("/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		url.QueryEscape(s.appID), url.QueryEscape(s.appSecret))

	httpResp, err := s.client.Get(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.ErrCode != 0 {
		return "", fmt.Errorf("fetch access token: errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	if resp.AccessToken == "" {
		return "", errors.New("fetch access token: empty token in response")
	}

	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.tokenExpiry = s.now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenExpiryMargin)
	s.mu.Unlock()

	return resp.AccessToken, nil
}

func (s *Sender) invalidateToken() {
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
}

func tokenRejected(resp *sendTextResponse) bool {
	return resp.ErrCode == errCodeInvalidCredential || resp.ErrCode == errCodeTokenExpired
}

func jsonHeaders() map[string][]string {
	return map[string][]string{"Content-Type": {"application/json"}}
}
