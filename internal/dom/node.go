// ABOUTME: Node-descriptor tree with attributes, handlers, and detach/reattach
// ABOUTME: Renders to HTML and parses HTML fragments using golang.org/x/net/html

package dom

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind distinguishes element nodes from text nodes.
type Kind int

const (
	ElementNode Kind = iota
	TextNode
)

// Attr is one element attribute. Order is preserved for stable output.
type Attr struct {
	Key string
	Val string
}

// Event is delivered to a Handler.
type Event struct {
	Type   string
	Target *Node
	// Value carries input text for "input"/"change" events.
	Value string
	// Data carries event-specific payloads, e.g. a selected file.
	Data any
}

// Handler reacts to a dispatched event.
type Handler func(Event)

// Node is an element or text node.
type Node struct {
	kind     Kind
	tag      string
	text     string
	attrs    []Attr
	children []*Node
	parent   *Node
	handlers map[string]Handler
}

// El creates an element. attrs are key/value pairs; a trailing odd key is
// treated as a boolean attribute.
func El(tag string, attrs ...string) *Node {
	n := &Node{kind: ElementNode, tag: tag}
	for i := 0; i < len(attrs); i += 2 {
		if i+1 < len(attrs) {
			n.SetAttr(attrs[i], attrs[i+1])
		} else {
			n.SetAttr(attrs[i], "")
		}
	}
	return n
}

// Text creates a text node.
func Text(s string) *Node {
	return &Node{kind: TextNode, text: s}
}

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// Tag returns the element tag name, or "" for text nodes.
func (n *Node) Tag() string { return n.tag }

// Parent returns the parent node, or nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// Root returns the topmost ancestor.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Contains reports whether other is n or a descendant of n.
func (n *Node) Contains(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Append adds children in order, detaching each from its previous parent.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.Detach()
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// Prepend inserts c as the first child.
func (n *Node) Prepend(c *Node) *Node {
	c.Detach()
	c.parent = n
	n.children = append([]*Node{c}, n.children...)
	return n
}

// Detach removes n from its parent, keeping its subtree and handlers.
func (n *Node) Detach() *Node {
	if n.parent == nil {
		return n
	}
	p := n.parent
	if i := slices.Index(p.children, n); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	n.parent = nil
	return n
}

// DetachChildren removes and returns all children.
func (n *Node) DetachChildren() []*Node {
	out := n.children
	for _, c := range out {
		c.parent = nil
	}
	n.children = nil
	return out
}

// Clear removes all children.
func (n *Node) Clear() *Node {
	n.DetachChildren()
	return n
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(key, val string) *Node {
	for i := range n.attrs {
		if n.attrs[i].Key == key {
			n.attrs[i].Val = val
			return n
		}
	}
	n.attrs = append(n.attrs, Attr{Key: key, Val: val})
	return n
}

// Attr returns an attribute value and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when absent.
func (n *Node) AttrOr(key, def string) string {
	if v, ok := n.Attr(key); ok {
		return v
	}
	return def
}

// RemoveAttr deletes an attribute if present.
func (n *Node) RemoveAttr(key string) *Node {
	n.attrs = slices.DeleteFunc(n.attrs, func(a Attr) bool { return a.Key == key })
	return n
}

// ID returns the id attribute.
func (n *Node) ID() string { return n.AttrOr("id", "") }

// HasClass reports whether the class attribute contains name.
func (n *Node) HasClass(name string) bool {
	return slices.Contains(strings.Fields(n.AttrOr("class", "")), name)
}

// SetClass adds or removes a class name.
func (n *Node) SetClass(name string, on bool) *Node {
	classes := strings.Fields(n.AttrOr("class", ""))
	has := slices.Contains(classes, name)
	switch {
	case on && !has:
		classes = append(classes, name)
	case !on && has:
		classes = slices.DeleteFunc(classes, func(c string) bool { return c == name })
	default:
		return n
	}
	if len(classes) == 0 {
		return n.RemoveAttr("class")
	}
	return n.SetAttr("class", strings.Join(classes, " "))
}

// SetHidden toggles the hidden attribute.
func (n *Node) SetHidden(hidden bool) *Node {
	if hidden {
		return n.SetAttr("hidden", "")
	}
	return n.RemoveAttr("hidden")
}

// Hidden reports whether the hidden attribute is set.
func (n *Node) Hidden() bool {
	_, ok := n.Attr("hidden")
	return ok
}

// SetDisabled toggles the disabled attribute.
func (n *Node) SetDisabled(disabled bool) *Node {
	if disabled {
		return n.SetAttr("disabled", "")
	}
	return n.RemoveAttr("disabled")
}

// Disabled reports whether the disabled attribute is set.
func (n *Node) Disabled() bool {
	_, ok := n.Attr("disabled")
	return ok
}

// Value returns the value attribute (input contents).
func (n *Node) Value() string { return n.AttrOr("value", "") }

// SetValue sets the value attribute.
func (n *Node) SetValue(v string) *Node { return n.SetAttr("value", v) }

// SetText replaces the children with a single text node.
func (n *Node) SetText(s string) *Node {
	if n.kind == TextNode {
		n.text = s
		return n
	}
	n.Clear()
	if s != "" {
		n.Append(Text(s))
	}
	return n
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	if n.kind == TextNode {
		return n.text
	}
	var b strings.Builder
	n.walk(func(c *Node) bool {
		if c.kind == TextNode {
			b.WriteString(c.text)
		}
		return true
	})
	return b.String()
}

// walk visits n and its descendants depth-first until fn returns false.
func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// Find returns the first descendant (or n itself) matching pred.
func (n *Node) Find(pred func(*Node) bool) *Node {
	var found *Node
	n.walk(func(c *Node) bool {
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// FindAll returns every descendant (including n) matching pred.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.walk(func(c *Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// ByID finds the descendant with the given id.
func (n *Node) ByID(id string) *Node {
	return n.Find(func(c *Node) bool { return c.kind == ElementNode && c.ID() == id })
}

// HasAttr matches elements carrying key.
func HasAttr(key string) func(*Node) bool {
	return func(c *Node) bool {
		_, ok := c.Attr(key)
		return c.kind == ElementNode && ok
	}
}

// AttrEquals matches elements whose key attribute equals val.
func AttrEquals(key, val string) func(*Node) bool {
	return func(c *Node) bool {
		v, ok := c.Attr(key)
		return c.kind == ElementNode && ok && v == val
	}
}

// IsTag matches elements with the given tag.
func IsTag(tag string) func(*Node) bool {
	return func(c *Node) bool { return c.kind == ElementNode && c.tag == tag }
}

// On registers h for event, replacing any previous handler for it.
func (n *Node) On(event string, h Handler) *Node {
	if n.handlers == nil {
		n.handlers = make(map[string]Handler)
	}
	n.handlers[event] = h
	return n
}

// Off removes the handler for event.
func (n *Node) Off(event string) *Node {
	delete(n.handlers, event)
	return n
}

// HasHandler reports whether a handler is registered for event.
func (n *Node) HasHandler(event string) bool {
	_, ok := n.handlers[event]
	return ok
}

// Dispatch delivers ev to the handler on n. Disabled elements ignore clicks
// and submits. Returns true if a handler ran.
func (n *Node) Dispatch(ev Event) bool {
	if (ev.Type == "click" || ev.Type == "submit") && n.Disabled() {
		return false
	}
	h, ok := n.handlers[ev.Type]
	if !ok {
		return false
	}
	if ev.Target == nil {
		ev.Target = n
	}
	h(ev)
	return true
}

// Click dispatches a click event.
func (n *Node) Click() bool {
	return n.Dispatch(Event{Type: "click"})
}

// Submit dispatches a submit event.
func (n *Node) Submit() bool {
	return n.Dispatch(Event{Type: "submit"})
}

// Input sets the value and dispatches an input event.
func (n *Node) Input(v string) bool {
	n.SetValue(v)
	return n.Dispatch(Event{Type: "input", Value: v})
}

// SetHTML replaces the children with nodes parsed from an HTML fragment.
func (n *Node) SetHTML(fragment string) error {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return err
	}
	n.Clear()
	n.Append(nodes...)
	return nil
}

// ParseFragment parses an HTML fragment in a <div> context.
func ParseFragment(fragment string) ([]*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	parsed, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing html fragment: %w", err)
	}
	out := make([]*Node, 0, len(parsed))
	for _, p := range parsed {
		if c := fromHTML(p); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func fromHTML(h *html.Node) *Node {
	switch h.Type {
	case html.TextNode:
		return Text(h.Data)
	case html.ElementNode:
		n := &Node{kind: ElementNode, tag: h.Data}
		for _, a := range h.Attr {
			n.SetAttr(a.Key, a.Val)
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if cn := fromHTML(c); cn != nil {
				n.Append(cn)
			}
		}
		return n
	default:
		// Comments and doctypes carry nothing the widget displays.
		return nil
	}
}

func (n *Node) toHTML() *html.Node {
	if n.kind == TextNode {
		return &html.Node{Type: html.TextNode, Data: n.text}
	}
	h := &html.Node{Type: html.ElementNode, Data: n.tag, DataAtom: atom.Lookup([]byte(n.tag))}
	for _, a := range n.attrs {
		h.Attr = append(h.Attr, html.Attribute{Key: a.Key, Val: a.Val})
	}
	for _, c := range n.children {
		h.AppendChild(c.toHTML())
	}
	return h
}

// Render serializes n and its subtree as HTML.
func (n *Node) Render() string {
	var b strings.Builder
	// Only void elements with children fail to render; keep what was written.
	_ = html.Render(&b, n.toHTML())
	return b.String()
}

// InnerHTML serializes only the children of n.
func (n *Node) InnerHTML() string {
	var b strings.Builder
	for _, c := range n.children {
		b.WriteString(c.Render())
	}
	return b.String()
}
