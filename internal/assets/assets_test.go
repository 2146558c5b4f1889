// ABOUTME: Tests for the embedded widget stylesheet
// ABOUTME: Covers theme substitution and rejection of non-color input

package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStylesheet_AppliesTheme(t *testing.T) {
	css := Stylesheet("#ff5500")

	assert.Contains(t, css, "--glance-accent: #ff5500;")
	assert.NotContains(t, css, themePlaceholder)
	assert.Contains(t, css, ".glance-launcher")
}

func TestAccent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"#abc", "#abc"},
		{"#AABBCC", "#AABBCC"},
		{"#11223344", "#11223344"},
		{" #123456 ", "#123456"},
		{"", DefaultAccent},
		{"red", DefaultAccent},
		{"#12345", DefaultAccent},
		{"#000; } body { display:none", DefaultAccent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Accent(tt.in), "Accent(%q)", tt.in)
	}
}

func TestStylesheet_NoInjection(t *testing.T) {
	css := Stylesheet("</style><script>")
	assert.False(t, strings.Contains(css, "<script>"))
}
