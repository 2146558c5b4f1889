// ABOUTME: Tests for the terminal host command dispatcher
// ABOUTME: Drives a bootstrapped widget through prompt commands against the fake backend

package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/backendtest"
	"github.com/2389/glance-widget/internal/config"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/page"
	"github.com/2389/glance-widget/internal/widget"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

func newHost(t *testing.T) (*host, *backendtest.Server) {
	t.Helper()
	srv := backendtest.New(widgetcfg.WidgetConfig{
		ID:          "w1",
		WorkspaceID: "ws1",
		Tabs: []widgetcfg.Tab{
			{Name: "Welcome", Type: widgetcfg.TypeTLDR, TLDRContent: "hi"},
			{Name: "Ask", Type: widgetcfg.TypeAIChat, HashTrigger: "ask"},
		},
	})
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	require.NoError(t, err)
	l := loop.New(nil)
	t.Cleanup(l.Close)
	pg := page.New(nil)

	w, err := widget.Bootstrap(context.Background(), &widget.Runtime{WidgetID: "w1", Client: client, Page: pg, Loop: l})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Do(w.Teardown) })
	return &host{w: w, l: l, page: pg}, srv
}

func active(t *testing.T, h *host) int {
	var i int
	require.NoError(t, h.l.Do(func() { i = h.w.ActiveTab() }))
	return i
}

func TestExec_Commands(t *testing.T) {
	h, srv := newHost(t)

	quit, err := h.exec("open")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, 0, active(t, h))

	_, err = h.exec("tab 1")
	require.NoError(t, err)
	assert.Equal(t, 1, active(t, h))

	_, err = h.exec("send hello there")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(srv.ChatRequests()) == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello there", srv.ChatRequests()[0].Messages[0].Content)

	_, err = h.exec("tab x")
	assert.Error(t, err)

	_, err = h.exec("frobnicate")
	assert.ErrorIs(t, err, errUsage)

	quit, err = h.exec("quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestExec_HashNavigates(t *testing.T) {
	h, _ := newHost(t)

	_, err := h.exec("#ask")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return active(t, h) == 1 }, 3*time.Second, 5*time.Millisecond)
}

func TestExec_GateCommandsWithoutGate(t *testing.T) {
	h, _ := newHost(t)

	_, err := h.exec("email kim@example.com")
	assert.NoError(t, err)
	_, err = h.exec("code")
	assert.Error(t, err)
}

func TestSetupLogger_Levels(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	json := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	assert.True(t, json.Enabled(context.Background(), slog.LevelDebug))
}

func TestColorHandler_DerivedHandlersShareLock(t *testing.T) {
	h := &colorHandler{mu: &sync.Mutex{}, level: slog.LevelInfo}
	child := h.WithAttrs([]slog.Attr{slog.String("component", "widget")}).(*colorHandler)
	grouped := child.WithGroup("req").(*colorHandler)

	assert.Same(t, h.mu, child.mu)
	assert.Same(t, h.mu, grouped.mu)
	assert.Len(t, h.attrs, 0)
	assert.Len(t, grouped.attrs, 1)
	assert.Equal(t, []string{"req"}, grouped.groups)
}

func TestWidgetFlag(t *testing.T) {
	id, err := widgetFlag(nil)
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = widgetFlag([]string{"--widget", "w9"})
	require.NoError(t, err)
	assert.Equal(t, "w9", id)

	id, err = widgetFlag([]string{"--widget=w8"})
	require.NoError(t, err)
	assert.Equal(t, "w8", id)

	_, err = widgetFlag([]string{"--widget"})
	assert.Error(t, err)
	_, err = widgetFlag([]string{"extra"})
	assert.Error(t, err)
}
