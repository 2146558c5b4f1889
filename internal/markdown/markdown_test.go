// ABOUTME: Tests for the widget markdown renderer
// ABOUTME: Covers supported constructs, link hardening, tab links, and prefix safety

package markdown

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// assertBalanced fails if out has an end tag without a matching open tag or
// leaves elements open.
func assertBalanced(t *testing.T, out string) {
	t.Helper()
	z := html.NewTokenizer(strings.NewReader(out))
	var stack []string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			require.ErrorIs(t, z.Err(), io.EOF)
			require.Empty(t, stack, "unclosed elements in %q", out)
			return
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			require.NotEmpty(t, stack, "stray </%s> in %q", name, out)
			require.Equal(t, stack[len(stack)-1], string(name), "mismatched close in %q", out)
			stack = stack[:len(stack)-1]
		}
	}
}

func TestRender_Constructs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bold star", "**bold**", []string{"<strong>bold</strong>"}},
		{"bold underscore", "__bold__", []string{"<strong>bold</strong>"}},
		{"italic star", "*it*", []string{"<em>it</em>"}},
		{"italic underscore", "_it_", []string{"<em>it</em>"}},
		{"inline code", "use `go test`", []string{"<code>go test</code>"}},
		{"h1", "# Title", []string{"<h1>Title</h1>"}},
		{"h3", "### Sub", []string{"<h3>Sub</h3>"}},
		{"h5 clamped", "##### Deep", []string{"<h3>Deep</h3>"}},
		{"rule", "a\n\n---\n\nb", []string{"<hr>"}},
		{"paragraphs", "one\n\ntwo", []string{"<p>one</p>", "<p>two</p>"}},
		{"ordered", "1. a\n2. b", []string{"<ol>", "<li>a</li>", "<li>b</li>"}},
		{"fenced", "```\nx := 1\n```", []string{"<pre", "x := 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Render(tt.in)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			assertBalanced(t, out)
		})
	}
}

func TestRender_MergesAdjacentListRuns(t *testing.T) {
	out := Render("- a\n- b\n\n- c")
	assert.Equal(t, 1, strings.Count(out, "<ul>"))
	assert.Equal(t, 3, strings.Count(out, "<li>"))

	out = Render("1. a\n\n2. b")
	assert.Equal(t, 1, strings.Count(out, "<ol>"))
}

func TestRender_EscapesRawHTML(t *testing.T) {
	out := Render("hello <script>alert(1)</script>\n\n<div onclick=x>hi</div>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onclick")
}

func TestRender_ExternalLinksHardened(t *testing.T) {
	out := Render("[docs](https://example.com/a?b=1&c=2)")
	assert.Contains(t, out, `href="https://example.com/a?b=1&amp;c=2"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, `rel="noopener noreferrer"`)

	out = Render("see https://example.com now")
	assert.Contains(t, out, `target="_blank"`)
}

func TestRender_TabLinks(t *testing.T) {
	out := Render("See [pricing](#pricing) or [contact us](tab:Contact)")
	assert.Contains(t, out, `<a href="#pricing" data-tab-link="pricing">pricing</a>`)
	assert.Contains(t, out, `<a href="#Contact" data-tab-link="Contact">contact us</a>`)
	assert.NotContains(t, out, `target="_blank"`)
}

func TestRender_DangerousLinkDropsAnchor(t *testing.T) {
	out := Render("[click](javascript:alert(1))")
	assert.NotContains(t, out, "<a")
	assert.Contains(t, out, "click")
	assertBalanced(t, out)
}

func TestRender_EveryPrefixIsBalanced(t *testing.T) {
	doc := "# Hello\n\nSome **bold and _nested_ text** with `code` and a [link](#faq).\n\n" +
		"- one\n- two with *emph*\n\n1. first\n2. second\n\n```go\nfunc main() {}\n```\n\n---\n\n" +
		"Final [site](https://example.com) paragraph."

	for i := 0; i <= len(doc); i++ {
		out := Render(doc[:i])
		assertBalanced(t, out)
	}
}

func TestRender_StreamingConvergesToFullRender(t *testing.T) {
	deltas := []string{"Hel", "lo", " **wor", "ld**", "!\n\n- a", "\n- b"}
	var buf strings.Builder
	var last string
	for _, d := range deltas {
		buf.WriteString(d)
		last = Render(buf.String())
	}
	assert.Equal(t, Render(strings.Join(deltas, "")), last)
	assert.Contains(t, last, "<strong>world</strong>")
}

func TestInline(t *testing.T) {
	assert.Equal(t, "What is <strong>Glance</strong>?", Inline("What is **Glance**?"))
	assert.Contains(t, Inline("a\n\nb"), "<p>a</p>")
}

func TestTabTarget(t *testing.T) {
	target, ok := TabTarget("#faq")
	assert.True(t, ok)
	assert.Equal(t, "faq", target)

	target, ok = TabTarget("tab:Ask AI")
	assert.True(t, ok)
	assert.Equal(t, "Ask AI", target)

	_, ok = TabTarget("#")
	assert.False(t, ok)
	_, ok = TabTarget("https://x.example")
	assert.False(t, ok)
}
