// Package storage provides the page-persistent key/value store the widget
// runtime uses in place of browser localStorage.
//
// Two implementations satisfy Storage: Memory for tests and ephemeral hosts,
// and SQLiteStorage backed by modernc.org/sqlite for hosts that should keep
// session tokens and analytics session ids across restarts.
//
// Keys written by the runtime:
//
//   - glance_token_<workspace_id>: widget auth session token
//   - glance_session: analytics session id and last-seen timestamp (JSON)
//   - glance_chat_<widget_id>_<tab_index>: remote chat session id
package storage
