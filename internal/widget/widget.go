// ABOUTME: Tab orchestrator: active tab, detach-not-destroy cache, premium gating, hash routing
// ABOUTME: Each tab's renderer runs at most once per page load unless it was gated

package widget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/glance-widget/internal/analytics"
	"github.com/2389/glance-widget/internal/authgate"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// MsgTabError replaces a tab whose renderer failed.
const MsgTabError = "Something went wrong loading this tab."

// CacheEntry holds one tab's rendered subtree for the life of the page.
// Nodes is nil while the tab is gated or waiting on session verification.
type CacheEntry struct {
	Nodes    *dom.Node
	Cleanup  func()
	Detached bool

	inject func(prompt string) bool
}

type sessionState int

const (
	sessionUnknown sessionState = iota
	sessionChecking
	sessionValid
	sessionInvalid
)

// Widget is the top-level component. All methods run on the loop.
type Widget struct {
	rt        *Runtime
	cfg       *widgetcfg.WidgetConfig
	logger    *slog.Logger
	verifier  *authgate.Verifier
	renderers map[widgetcfg.TabType]Renderer

	active  int
	open    bool
	pending string
	cache   map[int]*CacheEntry
	session sessionState
	gate    *authgate.Gate

	ctx        context.Context
	cancel     context.CancelFunc
	mounted    bool
	tornDown   bool
	removeHash func()

	host     *dom.Node
	launcher *dom.Node
	pills    *dom.Node
	panel    *dom.Node
	nav      *dom.Node
	body     *dom.Node
}

// New creates an unmounted widget for cfg.
func New(rt *Runtime, cfg *widgetcfg.WidgetConfig) *Widget {
	rt.init()
	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		ctx:      ctx,
		cancel:   cancel,
		rt:       rt,
		cfg:      cfg,
		logger:   rt.Logger.With("component", "widget", "widget", cfg.ID),
		verifier: authgate.NewVerifier(rt.Client, rt.Page.Storage(), cfg.WorkspaceID, rt.Logger),
		active:   -1,
		cache:    make(map[int]*CacheEntry),
	}
	w.renderers = defaultRenderers()
	return w
}

// Config returns the widget configuration.
func (w *Widget) Config() *widgetcfg.WidgetConfig { return w.cfg }

// Host returns the widget's root node.
func (w *Widget) Host() *dom.Node { return w.host }

// Panel returns the tab panel.
func (w *Widget) Panel() *dom.Node { return w.panel }

// Body returns the node holding the active tab's content.
func (w *Widget) Body() *dom.Node { return w.body }

// Launcher returns the floating launcher button.
func (w *Widget) Launcher() *dom.Node { return w.launcher }

// ActiveTab returns the active tab index, or -1 before the first activation.
func (w *Widget) ActiveTab() int { return w.active }

// IsOpen reports whether the panel is open.
func (w *Widget) IsOpen() bool { return w.open }

// Entry returns the cache entry for tab i, or nil.
func (w *Widget) Entry(i int) *CacheEntry { return w.cache[i] }

// Gate returns the live sign-in gate, or nil.
func (w *Widget) Gate() *authgate.Gate { return w.gate }

// Mount builds the shell, starts analytics, and applies the current hash.
func (w *Widget) Mount() {
	if w.mounted {
		return
	}
	w.mounted = true
	w.buildShell()

	w.rt.Analytics.Start(w.rt.Loop, w.rt.Settings.FlushInterval)
	w.removeHash = w.rt.Page.OnHashChange(func(hash string) {
		w.rt.Loop.Post(func() { w.routeHash(hash) })
	})
	if w.hasPremium() && w.verifier.Token() != "" {
		w.checkSession()
	}
	w.routeHash(w.rt.Page.Hash())
}

// SwitchTab activates tab i. Switching to the active tab does nothing.
func (w *Widget) SwitchTab(i int) {
	if w.tornDown || i == w.active || i < 0 || i >= len(w.cfg.Tabs) {
		return
	}
	w.active = i
	w.highlightNav()
	w.rt.Analytics.Track(analytics.EventTabViewed, map[string]any{
		"tab_index": i,
		"tab_name":  w.cfg.Tabs[i].Name,
	})
	w.renderActiveTab()
}

// SwitchTabTo activates the tab matching key by hash trigger, slug, or name.
func (w *Widget) SwitchTabTo(key string) bool {
	i := w.cfg.FindTab(key)
	if i < 0 {
		w.logger.Debug("tab link has no matching tab", "target", key)
		return false
	}
	w.SwitchTab(i)
	return true
}

// renderActiveTab swaps the body to the active tab, reusing cached nodes.
func (w *Widget) renderActiveTab() {
	w.detachBody()

	i := w.active
	tab := w.cfg.Tabs[i]

	if entry := w.cache[i]; entry != nil && entry.Nodes != nil {
		w.body.Append(entry.Nodes)
		entry.Detached = false
		w.deliverPending()
		return
	}

	if tab.IsPremium && w.session != sessionValid {
		w.cache[i] = &CacheEntry{}
		if w.session == sessionChecking {
			w.body.Append(dom.El("p", "class", "glance-loading").SetText("Checking your session…"))
			return
		}
		w.body.Append(w.gateNode())
		return
	}

	nodes, cleanup, inject := w.invoke(i, tab)
	w.cache[i] = &CacheEntry{Nodes: nodes, Cleanup: cleanup, inject: inject}
	w.body.Append(nodes)
	w.deliverPending()
}

// detachBody removes whatever the body shows. Cached nodes are kept intact.
func (w *Widget) detachBody() {
	for _, n := range w.body.DetachChildren() {
		for _, entry := range w.cache {
			if entry.Nodes == n {
				entry.Detached = true
			}
		}
	}
}

// invoke runs the tab's renderer, turning errors and panics into inline text.
func (w *Widget) invoke(i int, tab widgetcfg.Tab) (nodes *dom.Node, cleanup func(), inject func(string) bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tab renderer panicked", "tab", tab.Name, "panic", fmt.Sprint(r))
			nodes, cleanup, inject = errorNode(), nil, nil
		}
	}()

	render, ok := w.renderers[tab.Type]
	if !ok {
		w.logger.Warn("unknown tab type", "tab", tab.Name, "type", tab.Type)
		return errorNode(), nil, nil
	}
	out, err := render(w, i, tab)
	if err != nil {
		w.logger.Warn("tab renderer failed", "tab", tab.Name, "error", err)
		return errorNode(), nil, nil
	}
	return out.Node, out.Cleanup, out.Inject
}

func errorNode() *dom.Node {
	return dom.El("p", "class", "glance-error", "role", "alert").SetText(MsgTabError)
}

func (w *Widget) deliverPending() {
	if w.pending == "" {
		return
	}
	entry := w.cache[w.active]
	if entry == nil || entry.inject == nil {
		return
	}
	prompt := w.pending
	w.pending = ""
	entry.inject(prompt)
}

// gateNode returns the live gate's markup, creating the gate on first use.
func (w *Widget) gateNode() *dom.Node {
	if w.gate == nil || w.gate.Done() {
		w.gate = authgate.New(authgate.Options{
			WorkspaceID:     w.cfg.WorkspaceID,
			Auth:            w.cfg.Auth,
			Client:          w.rt.Client,
			Page:            w.rt.Page,
			Loop:            w.rt.Loop,
			Logger:          w.rt.Logger,
			OnAuthenticated: w.onAuthenticated,
		})
	}
	return w.gate.Render()
}

func (w *Widget) onAuthenticated(string) {
	if w.tornDown {
		return
	}
	w.session = sessionValid
	w.gate = nil
	w.rt.Analytics.Track(analytics.EventAuthCompleted, nil)
	if w.active >= 0 {
		w.renderActiveTab()
	}
}

func (w *Widget) hasPremium() bool {
	for _, t := range w.cfg.Tabs {
		if t.IsPremium {
			return true
		}
	}
	return false
}

// checkSession verifies the stored token once and re-renders a premium tab
// that was waiting on the answer.
func (w *Widget) checkSession() {
	w.session = sessionChecking
	ctx := w.ctx
	go func() {
		_, err := w.verifier.Check(ctx, w.verifier.Token())
		w.rt.Loop.Post(func() {
			if w.tornDown || w.session != sessionChecking {
				return
			}
			if err != nil {
				w.logger.Debug("stored session rejected", "error", err)
				w.session = sessionInvalid
			} else {
				w.session = sessionValid
			}
			if w.active >= 0 && w.cfg.Tabs[w.active].IsPremium {
				if e := w.cache[w.active]; e == nil || e.Nodes == nil {
					w.renderActiveTab()
				}
			}
		})
	}()
}

// routeHash opens the panel on the tab matching hash. Repeating the same
// hash leaves the widget as it is.
func (w *Widget) routeHash(hash string) {
	if w.tornDown || hash == "" {
		return
	}
	i := w.cfg.FindTab(hash)
	if i < 0 {
		return
	}
	w.openPanel()
	w.SwitchTab(i)
}

// SignOut forgets the session token and drops rendered premium tabs.
func (w *Widget) SignOut() error {
	if err := w.verifier.SignOut(); err != nil {
		return err
	}
	w.session = sessionInvalid
	for i, t := range w.cfg.Tabs {
		entry := w.cache[i]
		if !t.IsPremium || entry == nil {
			continue
		}
		if entry.Cleanup != nil {
			entry.Cleanup()
		}
		delete(w.cache, i)
	}
	if w.active >= 0 && w.cfg.Tabs[w.active].IsPremium {
		w.renderActiveTab()
	}
	return nil
}

// Teardown releases everything the widget holds: every tab's cleanup runs
// exactly once, the hash listener is removed, and analytics are flushed.
func (w *Widget) Teardown() {
	if w.tornDown {
		return
	}
	w.tornDown = true
	w.cancel()

	for _, entry := range w.cache {
		if entry.Cleanup != nil {
			entry.Cleanup()
			entry.Cleanup = nil
		}
	}
	if w.gate != nil {
		w.gate.Teardown()
	}
	if w.removeHash != nil {
		w.removeHash()
		w.removeHash = nil
	}
	w.rt.Analytics.Stop()
	w.rt.Analytics.PageHide()
	if w.host != nil {
		w.host.Detach()
	}
	w.logger.Info("widget torn down")
}
