package config

import "time"

// Config is the complete bridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Webhook WebhookConfig `yaml:"webhook"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	WeChat  WeChatConfig  `yaml:"wechat"`
	CXone   CXoneConfig   `yaml:"cxone"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines the BYOC API listener.
type APIConfig struct {
	Listen    string          `yaml:"listen"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines the per-client-IP token bucket on the BYOC API.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// WebhookConfig defines the WeChat webhook listener.
type WebhookConfig struct {
	Listen      string `yaml:"listen"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

// OAuthConfig defines the client-credentials contract for the BYOC API.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	JWTSecret    string `yaml:"jwt_secret"`
}

// WeChatConfig defines the Service Account credentials and webhook secrets.
type WeChatConfig struct {
	AppID      string `yaml:"app_id"`
	AppSecret  string `yaml:"app_secret"`
	Token      string `yaml:"token"`
	APIBaseURL string `yaml:"api_base_url"`
	// EncodingAESKey enables encrypted-envelope handling when set.
	EncodingAESKey string `yaml:"encoding_aes_key"`
}

// CXoneConfig defines the engagement-platform endpoint and channel.
type CXoneConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
	ChannelID   string `yaml:"channel_id"`
}

// HTTPConfig tunes the outbound transport shared by both adapters.
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCoolDown  time.Duration `yaml:"breaker_cooldown"`
}

// Defaults returns a Config with sensible defaults. Credentials have no
// defaults; validation rejects configs that leave them empty.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "wxbridge",
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		API: APIConfig{
			Listen: "127.0.0.1:3000",
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
		Webhook: WebhookConfig{
			Listen:      "127.0.0.1:3001",
			MaxBodySize: 100000,
		},
		WeChat: WeChatConfig{
			APIBaseURL: "https://api.weixin.qq.com",
		},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			MaxRetries:       3,
			BreakerThreshold: 5,
			BreakerCoolDown:  60 * time.Second,
		},
	}
}
