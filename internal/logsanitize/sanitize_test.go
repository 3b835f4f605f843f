package logsanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "access_denied", want: "access_denied"},
		{name: "newline injection", in: "ok\nlevel=ERROR msg=forged", want: "ok_level=ERROR msg=forged"},
		{name: "tab kept", in: "a\tb", want: "a\tb"},
		{name: "DEL and C1", in: "a\x7fb\u0085c", want: "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	got := Sanitize(strings.Repeat("x", 1000))
	assert.Len(t, got, maxFieldLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("ABC"))
	assert.Equal(t, "0.AR********", Mask("0.ARoAv4j5cvGGr0GRqy180BHbR"))
	assert.NotContains(t, Mask("supersecretcodevalue"), "secret")
}
