// ABOUTME: Launcher shell: floating button, prompt pills, callout link, and the tab panel
// ABOUTME: Opening and closing the panel are tracked as analytics events

package widget

import (
	"strconv"

	"github.com/2389/glance-widget/internal/analytics"
	"github.com/2389/glance-widget/internal/assets"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/markdown"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

func (w *Widget) buildShell() {
	cfg := w.cfg
	w.host = dom.El("div", "class", "glance-widget", "data-widget-id", cfg.ID,
		"style", "--glance-theme: "+assets.Accent(cfg.ThemeColor))
	w.host.Append(dom.El("style").SetText(assets.Stylesheet(cfg.ThemeColor)))

	w.panel = dom.El("div", "class", "glance-panel", "role", "dialog", "hidden", "")
	header := dom.El("div", "class", "glance-panel-header")
	closeBtn := dom.El("button", "type", "button", "class", "glance-close", "aria-label", "Close").SetText("×")
	header.Append(closeBtn)

	w.nav = dom.El("div", "class", "glance-tabs", "role", "tablist")
	for i, t := range cfg.Tabs {
		btn := dom.El("button", "type", "button", "class", "glance-tab", "role", "tab",
			"data-tab-index", strconv.Itoa(i), "aria-selected", "false")
		if t.Icon != "" {
			btn.Append(dom.El("span", "class", "glance-tab-icon", "aria-hidden", "true").SetText(t.Icon))
		}
		btn.Append(dom.El("span", "class", "glance-tab-label").SetText(t.Name))
		w.nav.Append(btn)
	}
	w.body = dom.El("div", "class", "glance-panel-body")
	w.panel.Append(header, w.nav, w.body)

	if len(cfg.Prompts) > 0 {
		w.pills = dom.El("div", "class", "glance-pills")
		for _, p := range cfg.Prompts {
			pill := dom.El("button", "type", "button", "class", "glance-pill", "data-prompt", p)
			if err := pill.SetHTML(markdown.Inline(p)); err != nil {
				pill.SetText(p)
			}
			w.pills.Append(pill)
		}
	}

	w.launcher = dom.El("button", "type", "button", "class", "glance-launcher",
		"aria-label", "Open widget", "style", "background: "+assets.Accent(cfg.ThemeColor))
	if cfg.LogoURL != "" {
		w.launcher.Append(dom.El("img", "src", cfg.LogoURL, "alt", ""))
	}

	w.host.Append(w.panel)
	if w.pills != nil {
		w.host.Append(w.pills)
	}
	if cfg.CalloutText != "" {
		callout := dom.El("a", "class", "glance-callout", "target", "_blank", "rel", "noopener noreferrer")
		if cfg.CalloutURL != "" {
			callout.SetAttr("href", cfg.CalloutURL)
		}
		w.host.Append(callout.SetText(cfg.CalloutText))
	}
	w.host.Append(w.launcher)

	w.wireShell(closeBtn)
}

func (w *Widget) wireShell(closeBtn *dom.Node) {
	w.launcher.On("click", func(dom.Event) { w.Toggle() })
	closeBtn.On("click", func(dom.Event) { w.Close() })

	for _, btn := range w.nav.FindAll(dom.HasAttr("data-tab-index")) {
		i, _ := strconv.Atoi(btn.AttrOr("data-tab-index", ""))
		btn.On("click", func(dom.Event) { w.SwitchTab(i) })
	}
	if w.pills != nil {
		for _, pill := range w.pills.FindAll(dom.HasAttr("data-prompt")) {
			prompt := pill.AttrOr("data-prompt", "")
			pill.On("click", func(dom.Event) { w.PromptClicked(prompt) })
		}
	}
}

// Open shows the panel, activating the first tab if none is active yet.
func (w *Widget) Open() {
	w.openPanel()
	if w.active < 0 && len(w.cfg.Tabs) > 0 {
		w.SwitchTab(0)
	}
}

func (w *Widget) openPanel() {
	if w.open || w.tornDown {
		return
	}
	w.open = true
	w.panel.SetHidden(false)
	w.launcher.SetAttr("aria-expanded", "true")
	if w.pills != nil {
		w.pills.SetHidden(true)
	}
	w.rt.Analytics.Track(analytics.EventWidgetOpened, nil)
}

// Close hides the panel. Tab state is untouched.
func (w *Widget) Close() {
	if !w.open {
		return
	}
	w.open = false
	w.panel.SetHidden(true)
	w.launcher.SetAttr("aria-expanded", "false")
	if w.pills != nil {
		w.pills.SetHidden(false)
	}
	w.rt.Analytics.Track(analytics.EventWidgetClosed, nil)
}

// Toggle opens or closes the panel.
func (w *Widget) Toggle() {
	if w.open {
		w.Close()
		return
	}
	w.Open()
}

// PromptClicked opens the panel on the first AI Chat tab and sends prompt
// there. The prompt waits if that tab is still gated.
func (w *Widget) PromptClicked(prompt string) {
	i := w.cfg.FirstOfType(widgetcfg.TypeAIChat)
	w.rt.Analytics.Track(analytics.EventPromptClicked, map[string]any{"prompt": prompt})
	if i < 0 {
		w.logger.Debug("prompt clicked without a chat tab")
		return
	}
	w.pending = prompt
	w.openPanel()
	if w.active == i {
		w.deliverPending()
		return
	}
	w.SwitchTab(i)
}

func (w *Widget) highlightNav() {
	for _, btn := range w.nav.FindAll(dom.HasAttr("data-tab-index")) {
		on := btn.AttrOr("data-tab-index", "") == strconv.Itoa(w.active)
		btn.SetClass("glance-tab-active", on)
		btn.SetAttr("aria-selected", strconv.FormatBool(on))
	}
}
