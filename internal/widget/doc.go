// ABOUTME: Package widget is the embeddable widget's top-level component
// ABOUTME: It owns the launcher shell, the tab cache, and deep-link routing

// Package widget assembles the widget runtime.
//
// Bootstrap fetches the configuration and mounts a Widget. The Widget
// renders each tab with its type's Renderer on first activation and keeps
// the result in a CacheEntry. Switching away detaches the subtree without
// running its cleanup, so open chat streams keep going. Premium tabs show
// the sign-in gate until a session is verified; a gated entry keeps Nodes
// nil so the real content renders once the visitor signs in.
//
// Teardown is the only caller of the cached cleanups.
package widget
