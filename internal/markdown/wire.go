// ABOUTME: Attaches tab-switch handlers to rendered tab-link anchors
// ABOUTME: Runs after each final render; re-running replaces existing handlers

package markdown

import "github.com/2389/glance-widget/internal/dom"

// WireTabLinks makes every tab-link anchor under root call switchTab with
// its target. It returns the number of anchors wired.
func WireTabLinks(root *dom.Node, switchTab func(target string)) int {
	links := root.FindAll(dom.HasAttr(TabLinkAttr))
	for _, a := range links {
		target := a.AttrOr(TabLinkAttr, "")
		a.On("click", func(dom.Event) { switchTab(target) })
	}
	return len(links)
}
