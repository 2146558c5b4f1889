// ABOUTME: Tests for the analytics buffer: session window, flush transports, no-op cases
// ABOUTME: Uses a recording sender and a controllable clock

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/storage"
)

type recordingSender struct {
	mu      sync.Mutex
	batches []api.EventBatch
	err     error
}

func (r *recordingSender) SendEvents(_ context.Context, b api.EventBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return r.err
}

func (r *recordingSender) EventsURL() string { return "https://example.test/api/widget-events" }

func (r *recordingSender) Batches() []api.EventBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.EventBatch(nil), r.batches...)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newBuffer(t *testing.T, opts Options) (*Buffer, *recordingSender, *clock) {
	t.Helper()
	sender := &recordingSender{}
	clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if opts.WidgetID == "" {
		opts.WidgetID = "w1"
	}
	if opts.Sender == nil {
		opts.Sender = sender
	}
	opts.Now = clk.Now
	return New(opts), sender, clk
}

func TestTrack_SessionSlidesWithinWindow(t *testing.T) {
	store := storage.NewMemory()
	b, _, clk := newBuffer(t, Options{Storage: store})

	b.Track(EventWidgetOpened, nil)
	first := b.SessionID()
	require.NotEmpty(t, first)

	clk.Advance(20 * time.Minute)
	b.Track(EventTabViewed, map[string]any{"tab_index": 0})
	clk.Advance(20 * time.Minute)
	b.Track(EventTabViewed, map[string]any{"tab_index": 1})

	assert.Equal(t, first, b.SessionID(), "tracked events should keep the session alive")
	for _, ev := range b.Pending() {
		assert.Equal(t, first, ev.SessionID)
	}
}

func TestTrack_SessionExpiresAfterIdle(t *testing.T) {
	b, _, clk := newBuffer(t, Options{})

	b.Track(EventWidgetOpened, nil)
	first := b.SessionID()

	// Reading the id does not extend the window.
	clk.Advance(29 * time.Minute)
	_ = b.SessionID()
	clk.Advance(2 * time.Minute)

	b.Track(EventWidgetClosed, nil)
	assert.NotEqual(t, first, b.SessionID())
}

func TestTrack_SessionSurvivesNewBuffer(t *testing.T) {
	store := storage.NewMemory()
	b1, _, _ := newBuffer(t, Options{Storage: store})
	b1.Track(EventWidgetOpened, nil)

	b2, _, _ := newBuffer(t, Options{Storage: store})
	b2.Track(EventWidgetOpened, nil)
	assert.Equal(t, b1.SessionID(), b2.SessionID())
}

func TestTrack_CorruptSessionReplaced(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.Set(SessionKey, "{not json"))
	b, _, _ := newBuffer(t, Options{Storage: store})

	b.Track(EventWidgetOpened, nil)
	assert.NotEmpty(t, b.SessionID())
}

func TestFlush_NoOps(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		b, sender, _ := newBuffer(t, Options{})
		b.Flush()
		b.Wait()
		assert.Empty(t, sender.Batches())
	})

	t.Run("unknown widget", func(t *testing.T) {
		sender := &recordingSender{}
		b := New(Options{Sender: sender})
		b.Track(EventWidgetOpened, nil)
		b.Flush()
		b.Wait()
		assert.Empty(t, sender.Batches())
		assert.Len(t, b.Pending(), 1, "events stay queued until a widget id is known")
	})
}

func TestFlush_PrefersBeacon(t *testing.T) {
	var gotURL string
	var gotPayload []byte
	beacon := func(url string, payload []byte) bool {
		gotURL, gotPayload = url, payload
		return true
	}
	b, sender, _ := newBuffer(t, Options{Beacon: beacon})

	b.Track(EventTabViewed, map[string]any{"tab_index": 0})
	b.Flush()
	b.Wait()

	assert.Empty(t, sender.Batches())
	assert.Equal(t, sender.EventsURL(), gotURL)

	var batch api.EventBatch
	require.NoError(t, json.Unmarshal(gotPayload, &batch))
	assert.Equal(t, "w1", batch.WidgetID)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, EventTabViewed, batch.Events[0].EventType)
	assert.Empty(t, b.Pending())
}

func TestFlush_FallsBackWhenBeaconRefuses(t *testing.T) {
	b, sender, _ := newBuffer(t, Options{Beacon: func(string, []byte) bool { return false }})

	b.Track(EventWidgetOpened, nil)
	b.Track(EventTabViewed, map[string]any{"tab_index": 0})
	b.Flush()
	b.Wait()

	batches := sender.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Events, 2)
	assert.Empty(t, b.Pending())
}

func TestFlush_FailureSwallowed(t *testing.T) {
	b, sender, _ := newBuffer(t, Options{})
	sender.err = errors.New("boom")

	b.Track(EventWidgetOpened, nil)
	assert.NotPanics(t, func() {
		b.Flush()
		b.Wait()
	})
	assert.Empty(t, b.Pending(), "handed-off events are not requeued")
}

func TestPageHide_Flushes(t *testing.T) {
	b, sender, _ := newBuffer(t, Options{})
	b.Track(EventWidgetClosed, nil)
	b.PageHide()
	b.Wait()
	assert.Len(t, sender.Batches(), 1)
}

func TestStart_IntervalFlush(t *testing.T) {
	l := loop.New(nil)
	defer l.Close()

	b, sender, _ := newBuffer(t, Options{})
	require.NoError(t, l.Do(func() { b.Track(EventWidgetOpened, nil) }))

	b.Start(l, 10*time.Millisecond)
	defer b.Stop()

	assert.Eventually(t, func() bool {
		return len(sender.Batches()) == 1
	}, time.Second, 5*time.Millisecond)

	b.Stop()
	require.NoError(t, l.Do(func() { b.Track(EventWidgetClosed, nil) }))
	time.Sleep(50 * time.Millisecond)
	b.Wait()
	assert.Len(t, sender.Batches(), 1, "stopped interval must not flush")
}
