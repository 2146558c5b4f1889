// ABOUTME: Form field markup, identity field detection, and success-message templating
// ABOUTME: Pure helpers with no network or loop access

package forms

import (
	"strings"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

func buildMarkup(tab widgetcfg.Tab) (root, form, submit *dom.Node) {
	root = dom.El("div", "class", "glance-form")
	form = dom.El("form", "novalidate", "")
	for _, f := range tab.FormFields {
		form.Append(fieldMarkup(f))
	}
	submit = dom.El("button", "type", "submit").SetText(tab.SubmitLabel)
	form.Append(
		dom.El("p", "class", "glance-form-message glance-form-error", "data-message", "", "hidden", ""),
		submit,
	)
	root.Append(form)
	return root, form, submit
}

func fieldMarkup(f widgetcfg.FormField) *dom.Node {
	id := "glance-field-" + f.ID
	wrap := dom.El("div", "class", "glance-field", "data-field", f.ID)

	var in *dom.Node
	switch f.Type {
	case widgetcfg.FieldTextArea:
		in = dom.El("textarea", "id", id, "name", f.ID, "rows", "4")
	case widgetcfg.FieldPhone:
		in = dom.El("input", "id", id, "name", f.ID, "type", "tel")
	case widgetcfg.FieldCheckbox, widgetcfg.FieldFile, widgetcfg.FieldEmail, widgetcfg.FieldURL:
		in = dom.El("input", "id", id, "name", f.ID, "type", string(f.Type))
	default:
		in = dom.El("input", "id", id, "name", f.ID, "type", "text")
	}
	if f.Placeholder != "" && f.Type != widgetcfg.FieldCheckbox && f.Type != widgetcfg.FieldFile {
		in.SetAttr("placeholder", f.Placeholder)
	}
	if f.Required {
		in.SetAttr("required", "")
	}

	label := dom.El("label", "for", id).SetText(labelOf(f))
	if f.Type == widgetcfg.FieldCheckbox {
		wrap.Append(in, label)
	} else {
		wrap.Append(label, in)
	}
	if f.Type == widgetcfg.FieldFile {
		wrap.Append(dom.El("span", "class", "glance-field-status", "data-status", "", "hidden", ""))
	}
	return wrap
}

func labelOf(f widgetcfg.FormField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// identityKey returns "name", "first_name", "last_name" or "email" for
// fields that carry visitor identity, and "" otherwise.
func identityKey(f widgetcfg.FormField) string {
	if f.Type == widgetcfg.FieldEmail {
		return "email"
	}
	if f.Type != widgetcfg.FieldText && f.Type != "" {
		return ""
	}
	for _, s := range []string{widgetcfg.Slug(f.ID), widgetcfg.Slug(f.Label)} {
		switch s {
		case "name", "full-name", "your-name":
			return "name"
		case "first-name", "firstname":
			return "first_name"
		case "last-name", "lastname", "surname":
			return "last_name"
		case "email", "email-address", "e-mail":
			return "email"
		}
	}
	return ""
}

func identityValue(u *api.User, key string) string {
	switch key {
	case "name":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	case "first_name":
		return u.FirstName
	case "last_name":
		return u.LastName
	case "email":
		return u.Email
	}
	return ""
}

// Substitute fills {first_name}, {last_name} and {email} in msg. The
// double-brace form {{first_name}} is accepted too. Unknown values become "".
func Substitute(msg string, vars map[string]string) string {
	var pairs []string
	for _, k := range []string{"first_name", "last_name", "email"} {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	for _, k := range []string{"first_name", "last_name", "email"} {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
