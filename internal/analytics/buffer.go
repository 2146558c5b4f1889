// ABOUTME: In-memory analytics event queue with interval and page-hide flushing
// ABOUTME: Beacon transport preferred, fire-and-forget POST fallback, failures swallowed

package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/storage"
)

// SessionKey is the fixed storage key for the analytics session.
const SessionKey = "glance_session"

// Event types emitted by the runtime.
const (
	EventTabViewed       = "tab_viewed"
	EventWidgetOpened    = "widget_opened"
	EventWidgetClosed    = "widget_closed"
	EventPromptClicked   = "prompt_clicked"
	EventChatMessageSent = "chat_message_sent"
	EventFormSubmitted   = "form_submitted"
	EventAuthCompleted   = "auth_completed"
)

const fallbackTimeout = 10 * time.Second

// Sender is the fallback transport.
type Sender interface {
	SendEvents(ctx context.Context, batch api.EventBatch) error
	EventsURL() string
}

// Beacon hands payload to a non-blocking transport. It returns false when
// the transport is unavailable or refuses the payload.
type Beacon func(url string, payload []byte) bool

// Options configures a Buffer.
type Options struct {
	WidgetID      string
	Sender        Sender
	Storage       storage.Storage
	Beacon        Beacon
	SessionWindow time.Duration
	Logger        *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Buffer queues events until the next flush.
type Buffer struct {
	widgetID string
	sender   Sender
	store    storage.Storage
	beacon   Beacon
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	queue    []api.Event
	interval *loop.Timer
	inflight sync.WaitGroup
}

type sessionRecord struct {
	ID       string `json:"id"`
	LastSeen int64  `json:"last_seen"`
}

// New creates a buffer.
func New(opts Options) *Buffer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionWindow <= 0 {
		opts.SessionWindow = 30 * time.Minute
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	return &Buffer{
		widgetID: opts.WidgetID,
		sender:   opts.Sender,
		store:    opts.Storage,
		beacon:   opts.Beacon,
		window:   opts.SessionWindow,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "analytics"),
	}
}

// Track appends an event. It also slides the session window; nothing else
// does, so a long idle period starts a new session on the next event.
func (b *Buffer) Track(eventType string, data map[string]any) {
	now := b.now()
	ev := api.Event{
		EventType: eventType,
		EventData: data,
		Timestamp: now.UTC(),
		SessionID: b.touchSession(now),
	}

	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
}

// Pending returns a copy of the queued events.
func (b *Buffer) Pending() []api.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Event(nil), b.queue...)
}

// SessionID returns the current session id without sliding the window.
func (b *Buffer) SessionID() string {
	rec, ok := b.loadSession()
	if !ok {
		return ""
	}
	return rec.ID
}

func (b *Buffer) loadSession() (sessionRecord, bool) {
	raw := storage.Lookup(b.store, SessionKey)
	if raw == "" {
		return sessionRecord{}, false
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ID == "" {
		return sessionRecord{}, false
	}
	return rec, true
}

func (b *Buffer) touchSession(now time.Time) string {
	rec, ok := b.loadSession()
	if !ok || now.Sub(time.UnixMilli(rec.LastSeen)) >= b.window {
		rec = sessionRecord{ID: uuid.New().String()}
	}
	rec.LastSeen = now.UnixMilli()

	data, _ := json.Marshal(rec)
	if err := b.store.Set(SessionKey, string(data)); err != nil {
		b.logger.Debug("persisting analytics session failed", "error", err)
	}
	return rec.ID
}

// Flush hands queued events to the transport. Empty queues and unknown
// widgets are no-ops. The queue is cleared once the payload is handed off;
// delivery failures after that point are logged and dropped.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if len(b.queue) == 0 || b.widgetID == "" {
		b.mu.Unlock()
		return
	}
	batch := api.EventBatch{WidgetID: b.widgetID, Events: b.queue}
	b.queue = nil
	b.mu.Unlock()

	if b.beacon != nil && b.sender != nil {
		payload, err := json.Marshal(batch)
		if err == nil && b.beacon(b.sender.EventsURL(), payload) {
			return
		}
	}
	if b.sender == nil {
		b.logger.Debug("no analytics transport, dropping events", "count", len(batch.Events))
		return
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), fallbackTimeout)
		defer cancel()
		if err := b.sender.SendEvents(ctx, batch); err != nil {
			b.logger.Debug("analytics flush failed", "error", err, "count", len(batch.Events))
		}
	}()
}

// Start flushes every interval on l until Stop.
func (b *Buffer) Start(l *loop.Loop, interval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interval != nil {
		return
	}
	b.interval = l.Every(interval, b.Flush)
}

// Stop cancels the interval flush.
func (b *Buffer) Stop() {
	b.mu.Lock()
	t := b.interval
	b.interval = nil
	b.mu.Unlock()
	t.Stop()
}

// PageHide flushes immediately, as on visibility change or unload.
func (b *Buffer) PageHide() {
	b.Flush()
}

// Wait blocks until fallback sends started by Flush have finished.
func (b *Buffer) Wait() {
	b.inflight.Wait()
}
