// ABOUTME: Runtime context shared by every widget component, and the bootstrap entry
// ABOUTME: Bootstrap fetches configuration and mounts the widget on the loop

package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/glance-widget/internal/analytics"
	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/page"
)

// ErrNoWidgetID is returned by Bootstrap when the runtime has no widget id.
var ErrNoWidgetID = errors.New("missing widget id")

// Settings tunes timing and limits.
type Settings struct {
	RenderDebounce time.Duration
	FlushInterval  time.Duration
	SessionWindow  time.Duration
	MaxUploadBytes int64
	// Beacon is the preferred analytics transport. Nil means always POST.
	Beacon analytics.Beacon
}

// DefaultSettings returns the production timings.
func DefaultSettings() Settings {
	return Settings{
		RenderDebounce: 80 * time.Millisecond,
		FlushInterval:  30 * time.Second,
		SessionWindow:  30 * time.Minute,
		MaxUploadBytes: 20 << 20,
	}
}

func (s *Settings) fillDefaults() {
	def := DefaultSettings()
	if s.RenderDebounce <= 0 {
		s.RenderDebounce = def.RenderDebounce
	}
	if s.FlushInterval <= 0 {
		s.FlushInterval = def.FlushInterval
	}
	if s.SessionWindow <= 0 {
		s.SessionWindow = def.SessionWindow
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = def.MaxUploadBytes
	}
}

// Runtime is created once at bootstrap and handed to every component.
type Runtime struct {
	WidgetID  string
	Client    *api.Client
	Page      *page.Page
	Loop      *loop.Loop
	Analytics *analytics.Buffer
	Logger    *slog.Logger
	Settings  Settings
}

func (rt *Runtime) init() {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Page == nil {
		rt.Page = page.New(nil)
	}
	rt.Settings.fillDefaults()
	if rt.Analytics == nil {
		rt.Analytics = analytics.New(analytics.Options{
			WidgetID:      rt.WidgetID,
			Sender:        rt.Client,
			Storage:       rt.Page.Storage(),
			Beacon:        rt.Settings.Beacon,
			SessionWindow: rt.Settings.SessionWindow,
			Logger:        rt.Logger,
		})
	}
}

// Bootstrap fetches the widget configuration and mounts the widget.
// Configuration errors are fatal: they are logged and no widget is built.
func Bootstrap(ctx context.Context, rt *Runtime) (*Widget, error) {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	logger := rt.Logger.With("component", "bootstrap")

	if rt.WidgetID == "" {
		logger.Error("widget not started", "error", ErrNoWidgetID)
		return nil, ErrNoWidgetID
	}
	if rt.Client == nil || rt.Loop == nil {
		return nil, fmt.Errorf("bootstrapping widget %s: runtime needs a client and a loop", rt.WidgetID)
	}

	cfg, err := rt.Client.FetchConfig(ctx, rt.WidgetID)
	if err != nil {
		logger.Error("widget not started", "widget", rt.WidgetID, "error", err)
		return nil, fmt.Errorf("bootstrapping widget %s: %w", rt.WidgetID, err)
	}

	rt.init()
	w := New(rt, cfg)
	if err := rt.Loop.Do(w.Mount); err != nil {
		return nil, fmt.Errorf("mounting widget %s: %w", rt.WidgetID, err)
	}
	logger.Info("widget mounted", "widget", cfg.ID, "tabs", len(cfg.Tabs))
	return w, nil
}
