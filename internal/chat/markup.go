// ABOUTME: Chat view markup: message list, welcome bubble, prompt pills, composer
// ABOUTME: wire attaches handlers once per render and is safe to repeat

package chat

import (
	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/markdown"
)

func (e *Engine) buildMarkup() {
	tab := e.opts.Tab
	e.root = dom.El("div", "class", "glance-chat")
	e.list = dom.El("div", "class", "glance-chat-messages", "role", "log", "aria-live", "polite")
	e.root.Append(e.list)

	if tab.WelcomeMessage != "" {
		welcome := e.appendBubble(api.RoleAssistant).SetClass("glance-chat-welcome", true)
		_ = welcome.SetHTML(markdown.Render(tab.WelcomeMessage))
	}

	if len(tab.SuggestedPrompts) > 0 {
		e.prompts = dom.El("div", "class", "glance-chat-prompts")
		for _, p := range tab.SuggestedPrompts {
			pill := dom.El("button", "type", "button", "class", "glance-chat-prompt", "data-prompt", p)
			if err := pill.SetHTML(markdown.Inline(p)); err != nil {
				pill.SetText(p)
			}
			e.prompts.Append(pill)
		}
		e.root.Append(e.prompts)
	}

	e.input = dom.El("input", "type", "text", "name", "message", "placeholder", "Ask a question…", "autocomplete", "off")
	e.send = dom.El("button", "type", "submit", "class", "glance-chat-send").SetText("Send")
	e.form = dom.El("form", "class", "glance-chat-composer").Append(e.input, e.send)
	e.root.Append(e.form)
	e.refreshControls()
}

func (e *Engine) appendBubble(role api.Role) *dom.Node {
	b := dom.El("div", "class", "glance-chat-message glance-chat-"+string(role), "data-role", string(role))
	if e.list == nil {
		e.list = dom.El("div", "class", "glance-chat-messages")
	}
	e.list.Append(b)
	return b
}

func (e *Engine) wire() {
	submit := func(dom.Event) { e.Send(e.input.Value()) }
	e.form.On("submit", submit)
	e.send.On("click", submit)

	if e.prompts != nil {
		for _, pill := range e.prompts.FindAll(dom.HasAttr("data-prompt")) {
			prompt := pill.AttrOr("data-prompt", "")
			pill.On("click", func(dom.Event) { e.Inject(prompt) })
		}
	}
	if e.opts.SwitchTab != nil {
		markdown.WireTabLinks(e.list, e.opts.SwitchTab)
	}
}

// Bubbles returns the rendered message bubbles with role role.
func (e *Engine) Bubbles(role api.Role) []*dom.Node {
	if e.list == nil {
		return nil
	}
	return e.list.FindAll(dom.AttrEquals("data-role", string(role)))
}
