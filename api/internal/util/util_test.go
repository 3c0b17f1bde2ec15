package util_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/util"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Here you go:\n{\"a\":{\"b\":2}}\nThanks!", `{"a":{"b":2}}`, true},
		{"braces in strings", `note {"msg":"use } and { freely","n":1} end`, `{"msg":"use } and { freely","n":1}`, true},
		{"escaped quote", `{"msg":"say \"hi\" }","n":1}`, `{"msg":"say \"hi\" }","n":1}`, true},
		{"skips broken candidate", `{oops} then {"ok":true}`, `{"ok":true}`, true},
		{"two objects returns first", `{"first":1} {"second":2}`, `{"first":1}`, true},
		{"none", "I cannot help with that.", "", false},
		{"unterminated", `{"a":1`, "", false},
		{"unclosed brace before object", `{"x {"a":1}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := util.FirstJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstJSONObject_LongUnbalancedReply(t *testing.T) {
	in := strings.Repeat("{", 1<<20) + `{"a":1`
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := util.FirstJSONObject(in)
		assert.False(t, ok)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("FirstJSONObject did not finish")
	}

	many := strings.Repeat("{x} ", 500) + `{"a":1}`
	_, ok := util.FirstJSONObject(many)
	assert.False(t, ok)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, util.StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, util.StripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, util.StripCodeFences(`  {"a":1} `))
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString(pngHeader)

	b, mime, err := util.DecodeBase64MaybeDataURL("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, pngHeader, b)

	b, mime, err = util.DecodeBase64MaybeDataURL(enc)
	require.NoError(t, err)
	assert.Empty(t, mime)
	assert.Equal(t, pngHeader, b)

	b, _, err = util.DecodeBase64MaybeDataURL(base64.RawURLEncoding.EncodeToString([]byte{0xFB, 0xFF, 0xFE}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFB, 0xFF, 0xFE}, b)

	_, _, err = util.DecodeBase64MaybeDataURL("%%% not base64 %%%")
	assert.Error(t, err)
}

func TestPickMIME(t *testing.T) {
	assert.Equal(t, "image/webp", util.PickMIME("image/webp", "image/png", pngHeader))
	assert.Equal(t, "image/png", util.PickMIME("", "image/png", []byte("x")))
	assert.Equal(t, "image/png", util.PickMIME("", "", pngHeader))
	assert.Equal(t, "image/jpeg", util.PickMIME("", "", []byte{0xFF, 0xD8, 0xFF}))
	assert.Equal(t, "image/jpeg", util.PickMIME("", "", nil))
	assert.Equal(t, "text/plain; charset=utf-8", util.PickMIME("", "", []byte("hello world")))
}

func TestIsImageMIME(t *testing.T) {
	assert.True(t, util.IsImageMIME("image/png"))
	assert.True(t, util.IsImageMIME(" Image/JPEG "))
	assert.False(t, util.IsImageMIME("application/pdf"))
	assert.False(t, util.IsImageMIME(""))
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", util.SHA256Hex(nil))
}

func TestFormatUSD(t *testing.T) {
	cases := map[float64]string{
		0:         "$0",
		150:       "$150",
		999.6:     "$1,000",
		1250:      "$1,250",
		1234567.2: "$1,234,567",
		-4350:     "-$4,350",
	}
	for in, want := range cases {
		assert.Equal(t, want, util.FormatUSD(in), "%v", in)
	}
}
