package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractExternalID_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "thread id wins over everything",
			json: `{"thread":{"idOnExternalPlatform":"t1"},"recipient":{"idOnExternalPlatform":"r1"},"externalId":"e1","metadata":{"openid":"m1"},"openid":"o1"}`,
			want: "t1",
		},
		{
			name: "recipient id when thread absent",
			json: `{"recipient":{"idOnExternalPlatform":"r1"},"externalId":"e1","openid":"o1"}`,
			want: "r1",
		},
		{
			name: "externalId when thread and recipient absent",
			json: `{"externalId":"e1","metadata":{"openid":"m1"},"openid":"o1"}`,
			want: "e1",
		},
		{
			name: "metadata openid over top-level openid",
			json: `{"metadata":{"openid":"m1"},"openid":"o1"}`,
			want: "m1",
		},
		{
			name: "numeric metadata openid is coerced",
			json: `{"metadata":{"openid":12345}}`,
			want: "12345",
		},
		{
			name: "top-level openid as last resort",
			json: `{"openid":"o1"}`,
			want: "o1",
		},
		{
			name: "empty thread id falls through",
			json: `{"thread":{"idOnExternalPlatform":""},"externalId":"e1"}`,
			want: "e1",
		},
		{
			name: "nothing id-bearing",
			json: `{"message":{"text":"hi"}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ExtractExternalID())
		})
	}
}

func TestExtractText_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "message.text wins",
			json: `{"message":{"text":"a","content":"b"},"text":"c","content":"d"}`,
			want: "a",
		},
		{
			name: "message.content when message.text empty",
			json: `{"message":{"content":"b"},"text":"c"}`,
			want: "b",
		},
		{
			name: "top-level text",
			json: `{"text":"c","content":"d"}`,
			want: "c",
		},
		{
			name: "top-level content as last resort",
			json: `{"content":"d"}`,
			want: "d",
		},
		{
			name: "no text anywhere",
			json: `{"thread":{"idOnExternalPlatform":"t1"}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ExtractText())
		})
	}
}

func TestParse_AllowsUnknownFields(t *testing.T) {
	p, err := Parse([]byte(`{"thread":{"idOnExternalPlatform":"u1"},"message":{"text":"hi"},"channel":{"id":"c"},"undocumented":42}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ExtractExternalID())
	assert.Equal(t, "hi", p.ExtractText())
}

func TestValidate_RejectsOversizedFields(t *testing.T) {
	longID := strings.Repeat("a", MaxExternalIDLen+1)
	longText := strings.Repeat("b", MaxTextLen+1)

	tests := []struct {
		name      string
		json      string
		wantField string
	}{
		{"thread id too long", `{"thread":{"idOnExternalPlatform":"` + longID + `"}}`, "thread.idOnExternalPlatform"},
		{"openid too long", `{"openid":"` + longID + `"}`, "openid"},
		{"metadata openid too long", `{"metadata":{"openid":"` + longID + `"}}`, "metadata.openid"},
		{"message text too long", `{"message":{"text":"` + longText + `"}}`, "message.text"},
		{"top-level text too long", `{"text":"` + longText + `"}`, "text"},
		{"content too long", `{"content":"` + longText + `"}`, "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"thread":`))
	require.Error(t, err)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "malformed JSON is not a field validation error")
}

func TestValidate_AcceptsBoundaryLengths(t *testing.T) {
	id := strings.Repeat("a", MaxExternalIDLen)
	text := strings.Repeat("b", MaxTextLen)

	p, err := Parse([]byte(`{"thread":{"idOnExternalPlatform":"` + id + `"},"message":{"text":"` + text + `"}}`))
	require.NoError(t, err)
	assert.Equal(t, id, p.ExtractExternalID())
	assert.Equal(t, text, p.ExtractText())
}

func TestValidate_BoundsAreCharactersNotBytes(t *testing.T) {
	// A maximum-length CJK message is ~3x the limit in bytes and must still
	// pass.
	id := strings.Repeat("好", MaxExternalIDLen)
	text := strings.Repeat("好", MaxTextLen)

	p, err := Parse([]byte(`{"thread":{"idOnExternalPlatform":"` + id + `"},"message":{"text":"` + text + `"}}`))
	require.NoError(t, err)
	assert.Equal(t, id, p.ExtractExternalID())
	assert.Equal(t, text, p.ExtractText())

	_, err = Parse([]byte(`{"message":{"text":"` + strings.Repeat("好", MaxTextLen+1) + `"}}`))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "message.text", verr.Field)
}
