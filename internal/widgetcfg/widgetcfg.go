// ABOUTME: Widget configuration types as served by GET /api/widget/{id}/config
// ABOUTME: Defines WidgetConfig, Tab, FormField plus slug and hash-trigger matching

package widgetcfg

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Limits on configured collections.
const (
	MaxTabs    = 5
	MaxPrompts = 3
)

// ErrMissingID is returned when a config has no widget id.
var ErrMissingID = errors.New("widget config missing id")

// TabType identifies the renderer for a tab.
type TabType string

const (
	TypeTLDR          TabType = "TLDR"
	TypeContent       TabType = "Content"
	TypeStaticContent TabType = "Static Content"
	TypeForm          TabType = "Form"
	TypeAIChat        TabType = "AI Chat"
	TypeTally         TabType = "Tally"
	TypeSpotify       TabType = "Spotify"
)

// FieldType identifies a form field input.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextArea FieldType = "textarea"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldURL      FieldType = "url"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// WidgetConfig is the root configuration fetched once per page load.
type WidgetConfig struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	ThemeColor  string     `json:"theme_color"`
	LogoURL     string     `json:"logo_url"`
	CalloutText string     `json:"callout_text"`
	CalloutURL  string     `json:"callout_url"`
	Prompts     []string   `json:"prompts"`
	Tabs        []Tab      `json:"tabs"`
	Auth        AuthConfig `json:"auth"`
}

// AuthConfig drives the premium-tab gate.
type AuthConfig struct {
	BannerURL        string `json:"banner_url"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	GoogleEnabled    bool   `json:"google_enabled"`
	MagicLinkEnabled bool   `json:"magic_link_enabled"`
}

// Tab is one configured content panel.
type Tab struct {
	Name        string  `json:"name"`
	Icon        string  `json:"icon"`
	Type        TabType `json:"type"`
	HashTrigger string  `json:"hash_trigger"`
	IsPremium   bool    `json:"is_premium"`

	// TLDR / content
	TLDRTitle    string `json:"tldr_title"`
	TLDRSubtitle string `json:"tldr_subtitle"`
	TLDRContent  string `json:"tldr_content"`
	Content      string `json:"content"`

	// Embeds
	EmbedURL string `json:"embed_url"`

	// Form
	FormFields     []FormField `json:"form_fields"`
	SubmitLabel    string      `json:"submit_label"`
	SuccessMessage string      `json:"success_message"`

	// AI chat
	WelcomeMessage   string   `json:"welcome_message"`
	Directive        string   `json:"directive"`
	SuggestedPrompts []string `json:"suggested_prompts"`
	FailureMessage   string   `json:"failure_message"`
	KnowledgeSources []string `json:"knowledge_sources"`
}

// FormField is one input in a Form tab.
type FormField struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder"`
}

// Normalize clamps prompts and tabs to their limits and fills defaults.
func (c *WidgetConfig) Normalize() {
	if len(c.Prompts) > MaxPrompts {
		c.Prompts = c.Prompts[:MaxPrompts]
	}
	if len(c.Tabs) > MaxTabs {
		c.Tabs = c.Tabs[:MaxTabs]
	}
	if c.ThemeColor == "" {
		c.ThemeColor = "#111827"
	}
	for i := range c.Tabs {
		t := &c.Tabs[i]
		if t.Type == TypeAIChat && t.FailureMessage == "" {
			t.FailureMessage = "Sorry, something went wrong. Please try again."
		}
		if t.Type == TypeForm && t.SubmitLabel == "" {
			t.SubmitLabel = "Submit"
		}
		for j := range t.FormFields {
			f := &t.FormFields[j]
			if f.Type == "" {
				f.Type = FieldText
			}
			if f.ID == "" {
				f.ID = Slug(f.Label)
			}
		}
	}
}

// Validate checks required fields.
func (c *WidgetConfig) Validate() error {
	if c.ID == "" {
		return ErrMissingID
	}
	for i, t := range c.Tabs {
		if t.Name == "" {
			return fmt.Errorf("tab %d: name is required", i)
		}
	}
	return nil
}

// FindTab returns the index of the first tab matching key, or -1.
func (c *WidgetConfig) FindTab(key string) int {
	for i := range c.Tabs {
		if c.Tabs[i].Matches(key) {
			return i
		}
	}
	return -1
}

// FirstOfType returns the index of the first tab of type t, or -1.
func (c *WidgetConfig) FirstOfType(t TabType) int {
	for i := range c.Tabs {
		if c.Tabs[i].Type == t {
			return i
		}
	}
	return -1
}

// Slug returns the tab's name slug.
func (t Tab) Slug() string {
	return Slug(t.Name)
}

// Matches reports whether key selects this tab. Comparison is
// case-insensitive against the hash trigger, the name slug, and the name.
func (t Tab) Matches(key string) bool {
	key = strings.TrimSpace(strings.TrimPrefix(key, "#"))
	if key == "" {
		return false
	}
	if t.HashTrigger != "" && strings.EqualFold(strings.TrimPrefix(t.HashTrigger, "#"), key) {
		return true
	}
	if strings.EqualFold(t.Slug(), key) || strings.EqualFold(t.Slug(), Slug(key)) {
		return true
	}
	return strings.EqualFold(t.Name, key)
}

// Slug lowercases s and collapses runs of non-alphanumerics into '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
