// Package config handles configuration loading for the glance widget host.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The format is chosen by file extension (.toml, otherwise YAML).
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from GLANCE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/glance/widget.yaml
//  3. ~/.config/glance/widget.yaml
//
// # Environment Variable Expansion
//
//	api:
//	  base_url: "${GLANCE_API_URL}"
//
// # Configuration Sections
//
//	api:
//	  base_url: "https://app.example.com"
//	  request_timeout: "30s"
//
//	widget:
//	  id: "wgt_123"
//
//	storage:
//	  path: "~/.local/share/glance/page.db"   # empty keeps state in memory
//
//	analytics:
//	  flush_interval: "30s"
//	  session_window: "30m"
//
//	chat:
//	  render_debounce: "80ms"
//
//	forms:
//	  max_upload_bytes: 20971520
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The widget id may also be given on the command line, which takes priority.
package config
