package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripControl(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"keeps whitespace", "a\tb\nc\r\n", "a\tb\nc\r\n"},
		{"drops bell and escape", "a\x07b\x1bc", "abc"},
		{"drops delete", "a\x7fb", "ab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripControl(tc.in))
		})
	}
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;", EscapeHTML("<script>"))
	assert.Equal(t, "a &amp; b", EscapeHTML("a & b"))
	assert.Equal(t, "&quot;x&#x27;s&quot;", EscapeHTML(`"x's"`))
	assert.Equal(t, "path&#x2F;to", EscapeHTML("path/to"))
}

func TestEscapeSQL(t *testing.T) {
	assert.Equal(t, "O''Brien", EscapeSQL("O'Brien"))
	assert.Equal(t, "no quotes", EscapeSQL("no quotes"))
}
