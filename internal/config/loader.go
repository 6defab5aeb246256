// Package config loads and validates the bridge configuration: a single YAML
// file with ${ENV_VAR} expansion for secrets, plus BLAKE3 integrity checksums
// authorized via `wxbridge config lock`.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, expands, and validates configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: check the path or run with --config", absPath)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnv substitutes ${VAR} references with environment values. Unset
// variables expand to empty strings and are caught by validation when the
// field is required.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func validate(cfg *Config) error {
	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if cfg.Webhook.Listen == "" {
		return fmt.Errorf("webhook.listen is required")
	}
	if cfg.Webhook.MaxBodySize <= 0 {
		return fmt.Errorf("webhook.max_body_size must be positive")
	}

	if cfg.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required (set BYOC_CLIENT_ID or the yaml field)")
	}
	if cfg.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_secret is required")
	}
	if cfg.OAuth.JWTSecret == "" {
		return fmt.Errorf("oauth.jwt_secret is required")
	}

	if cfg.WeChat.AppID == "" {
		return fmt.Errorf("wechat.app_id is required")
	}
	if cfg.WeChat.AppSecret == "" {
		return fmt.Errorf("wechat.app_secret is required")
	}
	if cfg.WeChat.Token == "" {
		return fmt.Errorf("wechat.token is required")
	}
	if cfg.WeChat.APIBaseURL == "" {
		return fmt.Errorf("wechat.api_base_url is required")
	}
	if k := cfg.WeChat.EncodingAESKey; k != "" && len(k) != 43 {
		return fmt.Errorf("wechat.encoding_aes_key must be 43 characters, got %d", len(k))
	}

	if cfg.CXone.BaseURL == "" {
		return fmt.Errorf("cxone.base_url is required")
	}
	if cfg.CXone.BearerToken == "" {
		return fmt.Errorf("cxone.bearer_token is required")
	}
	if cfg.CXone.ChannelID == "" {
		return fmt.Errorf("cxone.channel_id is required")
	}

	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if cfg.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be positive")
	}
	if cfg.HTTP.BreakerThreshold <= 0 {
		return fmt.Errorf("http.breaker_threshold must be positive")
	}
	if cfg.HTTP.BreakerCoolDown <= 0 {
		return fmt.Errorf("http.breaker_cooldown must be positive")
	}

	return nil
}
