package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	i := NewIssuer("signing-secret")

	token, err := i.Issue("byoc-client")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	clientID, err := i.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "byoc-client", clientID)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a").Issue("byoc-client")
	require.NoError(t, err)

	_, err = NewIssuer("secret-b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	i := NewIssuer("signing-secret")
	i.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }

	token, err := i.Issue("byoc-client")
	require.NoError(t, err)

	// Verify with real time: the token expired an hour ago.
	_, err = NewIssuer("signing-secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsGarbage(t *testing.T) {
	i := NewIssuer("signing-secret")

	_, err := i.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc123", "abc123", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"empty token", "Bearer ", "", true},
		{"whitespace token", "Bearer    ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, err := ExtractBearerToken(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
