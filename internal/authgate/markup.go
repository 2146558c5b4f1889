// ABOUTME: Markup for the gate's three step forms and the single wiring pass
// ABOUTME: Markup is built once; wire may run again without double-binding

package authgate

import (
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

const (
	defaultTitle    = "Sign in to continue"
	defaultSubtitle = "This content is available to signed-in visitors."
)

func buildMarkup(cfg widgetcfg.AuthConfig) (*dom.Node, map[State]*dom.Node) {
	root := dom.El("div", "class", "glance-auth")
	if cfg.BannerURL != "" {
		root.Append(dom.El("img", "class", "glance-auth-banner", "src", cfg.BannerURL, "alt", ""))
	}
	title, subtitle := cfg.Title, cfg.Subtitle
	if title == "" {
		title = defaultTitle
	}
	if subtitle == "" {
		subtitle = defaultSubtitle
	}
	root.Append(
		dom.El("h3", "class", "glance-auth-title").SetText(title),
		dom.El("p", "class", "glance-auth-subtitle").SetText(subtitle),
	)

	steps := map[State]*dom.Node{
		StateDefault:     defaultStep(cfg),
		StateMagicCreate: codeStep(StateMagicCreate, true),
		StateMagicLogin:  codeStep(StateMagicLogin, false),
	}
	root.Append(steps[StateDefault], steps[StateMagicCreate], steps[StateMagicLogin])
	return root, steps
}

func messageLine() *dom.Node {
	return dom.El("p", "class", "glance-auth-message", "data-message", "", "hidden", "")
}

func defaultStep(cfg widgetcfg.AuthConfig) *dom.Node {
	form := dom.El("form", "class", "glance-auth-step", "data-step", StateDefault.String())

	// With no method enabled the email flow is still offered.
	if cfg.MagicLinkEnabled || !cfg.GoogleEnabled {
		form.Append(
			dom.El("label", "for", "glance-auth-email").SetText("Email"),
			dom.El("input", "id", "glance-auth-email", "type", "email", "name", "email",
				"placeholder", "you@example.com", "autocomplete", "email"),
			dom.El("button", "type", "submit", "data-action", "email").SetText("Continue with email"),
		)
	}
	if cfg.GoogleEnabled {
		form.Append(dom.El("button", "type", "button", "class", "glance-auth-google",
			"data-action", "provider").SetText("Continue with Google"))
	}
	form.Append(messageLine())
	return form
}

func codeStep(s State, withNames bool) *dom.Node {
	form := dom.El("form", "class", "glance-auth-step", "data-step", s.String(), "hidden", "")
	form.Append(dom.El("p", "class", "glance-auth-sent").Append(
		dom.Text("We sent a code to "),
		dom.El("strong", "data-email", ""),
	))
	if withNames {
		form.Append(
			dom.El("input", "type", "text", "name", "first_name", "placeholder", "First name", "autocomplete", "given-name"),
			dom.El("input", "type", "text", "name", "last_name", "placeholder", "Last name", "autocomplete", "family-name"),
		)
	}
	label := "Sign in"
	if withNames {
		label = "Create account"
	}
	form.Append(
		dom.El("input", "type", "text", "name", "code", "placeholder", "6-digit code",
			"inputmode", "numeric", "autocomplete", "one-time-code"),
		dom.El("button", "type", "submit", "data-action", "code").SetText(label),
		dom.El("button", "type", "button", "class", "glance-auth-resend", "data-action", "resend").SetText("Resend code"),
		messageLine(),
	)
	return form
}

func inputValue(form *dom.Node, name string) string {
	if in := form.Find(dom.AttrEquals("name", name)); in != nil {
		return in.Value()
	}
	return ""
}

// wire attaches every handler. On replaces, so running it twice is harmless.
func (g *Gate) wire() {
	def := g.steps[StateDefault]
	def.On("submit", func(dom.Event) {
		g.Dispatch(SubmitEmail{Email: inputValue(def, "email")})
	})
	if btn := def.Find(dom.AttrEquals("data-action", "email")); btn != nil {
		btn.On("click", func(dom.Event) { def.Submit() })
	}
	if btn := def.Find(dom.AttrEquals("data-action", "provider")); btn != nil {
		btn.On("click", func(dom.Event) { g.Dispatch(ProviderStart{}) })
	}

	for _, s := range []State{StateMagicCreate, StateMagicLogin} {
		form := g.steps[s]
		form.On("submit", func(dom.Event) {
			g.Dispatch(SubmitCode{
				Code:      inputValue(form, "code"),
				FirstName: inputValue(form, "first_name"),
				LastName:  inputValue(form, "last_name"),
			})
		})
		form.Find(dom.AttrEquals("data-action", "code")).On("click", func(dom.Event) { form.Submit() })
		form.Find(dom.AttrEquals("data-action", "resend")).On("click", func(dom.Event) { g.Dispatch(Resend{}) })
	}
}
