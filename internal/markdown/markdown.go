// ABOUTME: Markdown to sanitized HTML for widget content and chat bubbles
// ABOUTME: goldmark with tab-link anchors, hardened external links, and h1-h3 only

package markdown

import (
	"bytes"
	"html"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// TabLinkAttr marks anchors that switch widget tabs instead of navigating.
const TabLinkAttr = "data-tab-link"

// tabScheme is the explicit link scheme for tab directives: [Pricing](tab:pricing)
const tabScheme = "tab:"

// maxHeadingLevel clamps deeper headings; the widget styles only h1-h3.
const maxHeadingLevel = 3

var (
	defaultOnce sync.Once
	defaultMD   goldmark.Markdown
)

// New builds the goldmark pipeline used by Render.
func New() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(headingClamp{}, 100),
			),
		),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(
				util.Prioritized(linkRenderer{}, 100),
			),
		),
	)
}

func md() goldmark.Markdown {
	defaultOnce.Do(func() { defaultMD = New() })
	return defaultMD
}

// Render converts markdown to an HTML fragment. Raw HTML in src is never
// passed through. Every prefix of a document renders to balanced markup,
// so it is safe to call on a growing stream buffer.
func Render(src string) string {
	var buf bytes.Buffer
	if err := md().Convert([]byte(src), &buf); err != nil {
		// Conversion only fails on writer errors; fall back to escaped text.
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}

// Inline renders src and strips a single wrapping paragraph, for short
// strings such as prompt pills and callouts.
func Inline(src string) string {
	out := strings.TrimSpace(Render(src))
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		return strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return out
}

// TabTarget reports whether a link destination is a tab directive and
// returns its target key.
func TabTarget(dest string) (string, bool) {
	switch {
	case strings.HasPrefix(dest, tabScheme):
		t := strings.TrimSpace(strings.TrimPrefix(dest, tabScheme))
		return t, t != ""
	case strings.HasPrefix(dest, "#"):
		t := strings.TrimSpace(strings.TrimPrefix(dest, "#"))
		return t, t != ""
	}
	return "", false
}

type headingClamp struct{}

func (headingClamp) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level > maxHeadingLevel {
			h.Level = maxHeadingLevel
		}
		return ast.WalkContinue, nil
	})
}

// linkRenderer replaces goldmark's link and autolink output.
type linkRenderer struct{}

func (r linkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
}

func (r linkRenderer) renderLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	dest := string(n.Destination)

	// Unsafe destinations keep their text but lose the anchor.
	if gmhtml.IsDangerousURL(n.Destination) {
		return ast.WalkContinue, nil
	}
	if !entering {
		_, _ = w.WriteString("</a>")
		return ast.WalkContinue, nil
	}

	if target, ok := TabTarget(dest); ok {
		writeTabAnchor(w, target)
	} else {
		writeExternalAnchor(w, dest)
	}
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.WriteString(html.EscapeString(string(n.Title)))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
	return ast.WalkContinue, nil
}

func (r linkRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.AutoLink)
	if !entering {
		return ast.WalkContinue, nil
	}

	url := string(n.URL(source))
	label := string(n.Label(source))
	if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(url), "mailto:") {
		url = "mailto:" + url
	}
	if gmhtml.IsDangerousURL([]byte(url)) {
		_, _ = w.WriteString(html.EscapeString(label))
		return ast.WalkContinue, nil
	}

	writeExternalAnchor(w, url)
	_ = w.WriteByte('>')
	_, _ = w.WriteString(html.EscapeString(label))
	_, _ = w.WriteString("</a>")
	return ast.WalkContinue, nil
}

func writeTabAnchor(w util.BufWriter, target string) {
	esc := html.EscapeString(target)
	_, _ = w.WriteString(`<a href="#`)
	_, _ = w.WriteString(esc)
	_, _ = w.WriteString(`" ` + TabLinkAttr + `="`)
	_, _ = w.WriteString(esc)
	_ = w.WriteByte('"')
}

func writeExternalAnchor(w util.BufWriter, dest string) {
	_, _ = w.WriteString(`<a href="`)
	_, _ = w.Write(util.EscapeHTML(util.URLEscape([]byte(dest), true)))
	_, _ = w.WriteString(`" target="_blank" rel="noopener noreferrer"`)
}
