// ABOUTME: Package chat implements the AI Chat tab's streaming conversation
// ABOUTME: One engine per tab instance; a new send abandons any reply not yet streaming

// Package chat drives a single AI Chat tab.
//
// An Engine moves Idle → Sending → Streaming → Idle (or Error). Deltas from
// the server-sent event stream are applied in arrival order on the loop and
// the reply is re-rendered at most once per debounce interval, with a final
// render when the stream ends for any reason. Completed exchanges are saved
// to a remote history session whose id is kept in page storage.
//
// Detaching the tab leaves the stream running. Only Cleanup aborts it.
package chat
