package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
oauth:
  client_id: byoc-client
  client_secret: byoc-secret
  jwt_secret: signing-secret
wechat:
  app_id: wx123
  app_secret: wxsecret
  token: webhook-token
cxone:
  base_url: https://api.example.com
  bearer_token: cx-bearer
  channel_id: chan-1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "wxbridge", cfg.Service.Name)
	assert.Equal(t, "127.0.0.1:3000", cfg.API.Listen)
	assert.Equal(t, "127.0.0.1:3001", cfg.Webhook.Listen)
	assert.Equal(t, int64(100000), cfg.Webhook.MaxBodySize)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 5, cfg.HTTP.BreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.HTTP.BreakerCoolDown)
	assert.Equal(t, "https://api.weixin.qq.com", cfg.WeChat.APIBaseURL)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_WECHAT_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, `
oauth:
  client_id: c
  client_secret: s
  jwt_secret: j
wechat:
  app_id: a
  app_secret: b
  token: ${TEST_WECHAT_TOKEN}
cxone:
  base_url: https://api.example.com
  bearer_token: t
  channel_id: ch
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.WeChat.Token)
}

func TestLoad_UnsetEnvVarFailsValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `
oauth:
  client_id: c
  client_secret: s
  jwt_secret: j
wechat:
  app_id: a
  app_secret: b
  token: ${DEFINITELY_UNSET_VAR_12345}
cxone:
  base_url: https://api.example.com
  bearer_token: t
  channel_id: ch
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wechat.token is required")
}

func TestLoad_RejectsMissingCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
service:
  name: test
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth.client_id is required")
}

func TestLoad_RejectsBadAESKeyLength(t *testing.T) {
	_, err := Load(writeConfig(t, `
oauth:
  client_id: c
  client_secret: s
  jwt_secret: j
wechat:
  app_id: a
  app_secret: b
  token: tok
  encoding_aes_key: too-short
cxone:
  base_url: https://api.example.com
  bearer_token: t
  channel_id: ch
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding_aes_key")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestChecksum_LockAndVerify(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	// No manifest yet: verification is a no-op.
	require.NoError(t, VerifyChecksum(path))

	hash, err := WriteChecksum(path)
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	require.NoError(t, VerifyChecksum(path))

	// Tamper with the file; verification must fail until re-locked.
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"\n# edited\n"), 0600))
	err = VerifyChecksum(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity check failed")

	_, err = WriteChecksum(path)
	require.NoError(t, err)
	require.NoError(t, VerifyChecksum(path))
}
