// ABOUTME: Per-type tab renderers: markdown content, forms, AI chat, and proxied embeds
// ABOUTME: Each returns its node plus an optional cleanup the orchestrator stores

package widget

import (
	"errors"
	"fmt"

	"github.com/2389/glance-widget/internal/analytics"
	"github.com/2389/glance-widget/internal/chat"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/forms"
	"github.com/2389/glance-widget/internal/markdown"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// ErrNoEmbedURL is returned for embed tabs without a URL.
var ErrNoEmbedURL = errors.New("embed tab has no url")

// Rendered is what a renderer hands back to the orchestrator.
type Rendered struct {
	Node    *dom.Node
	Cleanup func()
	// Inject delivers a pending prompt. Only chat tabs set it.
	Inject func(prompt string) bool
}

// Renderer builds tab i. It runs on the loop, once per tab per page load.
type Renderer func(w *Widget, i int, tab widgetcfg.Tab) (Rendered, error)

func defaultRenderers() map[widgetcfg.TabType]Renderer {
	return map[widgetcfg.TabType]Renderer{
		widgetcfg.TypeTLDR:          renderTLDR,
		widgetcfg.TypeContent:       renderContent,
		widgetcfg.TypeStaticContent: renderContent,
		widgetcfg.TypeForm:          renderForm,
		widgetcfg.TypeAIChat:        renderChat,
		widgetcfg.TypeTally:         renderEmbed("tally"),
		widgetcfg.TypeSpotify:       renderEmbed("spotify"),
	}
}

// SetRenderer replaces the renderer for a tab type. Must be called before
// the tab is first activated.
func (w *Widget) SetRenderer(t widgetcfg.TabType, r Renderer) {
	w.renderers[t] = r
}

func (w *Widget) markdownNode(class, src string) (*dom.Node, error) {
	n := dom.El("div", "class", class)
	if err := n.SetHTML(markdown.Render(src)); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	markdown.WireTabLinks(n, func(target string) { w.SwitchTabTo(target) })
	return n, nil
}

func renderTLDR(w *Widget, _ int, tab widgetcfg.Tab) (Rendered, error) {
	title := tab.TLDRTitle
	if title == "" {
		title = tab.Name
	}
	root := dom.El("div", "class", "glance-tldr")
	root.Append(dom.El("h2", "class", "glance-tldr-title").SetText(title))
	if tab.TLDRSubtitle != "" {
		root.Append(dom.El("p", "class", "glance-tldr-subtitle").SetText(tab.TLDRSubtitle))
	}
	body, err := w.markdownNode("glance-tldr-content", tab.TLDRContent)
	if err != nil {
		return Rendered{}, err
	}
	root.Append(body)
	return Rendered{Node: root}, nil
}

func renderContent(w *Widget, _ int, tab widgetcfg.Tab) (Rendered, error) {
	n, err := w.markdownNode("glance-content", tab.Content)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Node: n}, nil
}

func renderForm(w *Widget, _ int, tab widgetcfg.Tab) (Rendered, error) {
	opts := forms.Options{
		WidgetID:       w.cfg.ID,
		Tab:            tab,
		Client:         w.rt.Client,
		Loop:           w.rt.Loop,
		Logger:         w.rt.Logger,
		MaxUploadBytes: w.rt.Settings.MaxUploadBytes,
		OnSubmitted: func() {
			w.rt.Analytics.Track(analytics.EventFormSubmitted, map[string]any{"tab_name": tab.Name})
		},
	}
	if w.verifier.Token() != "" {
		opts.Identity = w.verifier
	}
	ctrl := forms.New(opts)
	return Rendered{Node: ctrl.Render(), Cleanup: ctrl.Cleanup}, nil
}

func renderChat(w *Widget, _ int, tab widgetcfg.Tab) (Rendered, error) {
	engine := chat.New(chat.Options{
		WidgetID:  w.cfg.ID,
		Tab:       tab,
		Client:    w.rt.Client,
		Loop:      w.rt.Loop,
		Storage:   w.rt.Page.Storage(),
		Logger:    w.rt.Logger,
		Debounce:  w.rt.Settings.RenderDebounce,
		Token:     w.verifier.Token,
		SwitchTab: func(target string) { w.SwitchTabTo(target) },
		OnSend: func(string) {
			w.rt.Analytics.Track(analytics.EventChatMessageSent, map[string]any{"tab_name": tab.Name})
		},
	})
	return Rendered{Node: engine.Render(), Cleanup: engine.Cleanup, Inject: engine.Inject}, nil
}

func renderEmbed(kind string) Renderer {
	return func(w *Widget, _ int, tab widgetcfg.Tab) (Rendered, error) {
		if tab.EmbedURL == "" {
			return Rendered{}, fmt.Errorf("rendering %s tab %q: %w", kind, tab.Name, ErrNoEmbedURL)
		}
		frame := dom.El("iframe",
			"class", "glance-embed glance-embed-"+kind,
			"src", w.rt.Client.ProxyURL(kind, tab.EmbedURL),
			"title", tab.Name,
			"loading", "lazy",
			"allow", "autoplay; clipboard-write; encrypted-media",
		)
		return Rendered{Node: dom.El("div", "class", "glance-embed-wrap").Append(frame)}, nil
	}
}
