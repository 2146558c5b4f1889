// Package dom is a minimal node-descriptor tree standing in for the browser
// DOM inside the widget runtime.
//
// Nodes can be detached from one parent and re-appended to another without
// losing their children or event handlers, which is what the tab cache relies
// on. Handlers are keyed by event type and replaced on re-registration, so a
// wiring pass that runs after every render never double-binds.
//
// Serialization and fragment parsing go through golang.org/x/net/html, which
// keeps escaping and void-element handling identical to a real HTML parser.
package dom
