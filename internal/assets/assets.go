// ABOUTME: Embedded widget stylesheet, themed per widget at mount time
// ABOUTME: The theme color is validated before it reaches the CSS text

// Package assets holds the widget's embedded static files.
package assets

import (
	_ "embed"
	"regexp"
	"strings"
)

//go:embed widget.css
var widgetCSS string

// DefaultAccent is used when a theme color is missing or not a hex color.
const DefaultAccent = "#4f46e5"

const themePlaceholder = "__THEME__"

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Stylesheet returns the widget CSS with theme as the accent color.
func Stylesheet(theme string) string {
	return strings.ReplaceAll(widgetCSS, themePlaceholder, Accent(theme))
}

// Accent returns theme when it is a CSS hex color and DefaultAccent otherwise.
func Accent(theme string) string {
	theme = strings.TrimSpace(theme)
	if !hexColor.MatchString(theme) {
		return DefaultAccent
	}
	return theme
}
