// ABOUTME: Tests for the chat engine against the fake backend's SSE stream
// ABOUTME: Covers happy path, debounce bounds, single in-flight stream, failure, cleanup, persistence

package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/backendtest"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/markdown"
	"github.com/2389/glance-widget/internal/storage"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

func askTab() widgetcfg.Tab {
	cfg := widgetcfg.WidgetConfig{ID: "w1", Tabs: []widgetcfg.Tab{{
		Name:             "Ask",
		Type:             widgetcfg.TypeAIChat,
		Directive:        "be brief",
		KnowledgeSources: []string{"kb-1"},
		WelcomeMessage:   "Hi there, **ask** me anything.",
		SuggestedPrompts: []string{"What is Glance?"},
	}}}
	cfg.Normalize()
	return cfg.Tabs[0]
}

type fixture struct {
	t        *testing.T
	srv      *backendtest.Server
	client   *api.Client
	loop     *loop.Loop
	store    *storage.Memory
	engine   *Engine
	switched chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.New(widgetcfg.WidgetConfig{ID: "w1", WorkspaceID: "ws1"})
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL)
	require.NoError(t, err)
	l := loop.New(nil)
	t.Cleanup(l.Close)

	f := &fixture{
		t:        t,
		srv:      srv,
		client:   client,
		loop:     l,
		store:    storage.NewMemory(),
		switched: make(chan string, 4),
	}
	f.engine = New(Options{
		WidgetID:  "w1",
		Tab:       askTab(),
		Client:    client,
		Loop:      l,
		Storage:   f.store,
		SwitchTab: func(target string) { f.switched <- target },
	})
	f.do(func() { f.engine.Render() })
	t.Cleanup(func() { _ = l.Do(f.engine.Cleanup) })
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.loop.Do(fn))
}

func (f *fixture) waitFor(cond func() bool) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		var ok bool
		f.do(func() { ok = cond() })
		return ok
	}, 3*time.Second, 5*time.Millisecond)
}

func (f *fixture) waitIdle() {
	f.t.Helper()
	f.waitFor(func() bool {
		s := f.engine.State()
		return s == StateIdle || s == StateError
	})
}

// rendered normalizes markup the way a bubble stores it.
func rendered(src string) string {
	n := dom.El("div")
	_ = n.SetHTML(markdown.Render(src))
	return n.InnerHTML()
}

func text(n *dom.Node) string {
	return strings.TrimSpace(n.TextContent())
}

func (f *fixture) lastAssistant() *dom.Node {
	bubbles := f.engine.Bubbles(api.RoleAssistant)
	return bubbles[len(bubbles)-1]
}

func TestRender_WelcomeAndPrompts(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		bubbles := f.engine.Bubbles(api.RoleAssistant)
		require.Len(t, bubbles, 1)
		assert.Contains(t, bubbles[0].Render(), "<strong>ask</strong>")
		assert.NotNil(t, f.engine.Root().Find(dom.AttrEquals("data-prompt", "What is Glance?")))
		assert.Equal(t, StateIdle, f.engine.State())
	})
}

func TestSend_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.srv.SetDeltas(50*time.Millisecond, "Hel", "lo!")

	f.do(func() {
		f.engine.Input().Input("hi")
		f.engine.SendButton().Click()

		users := f.engine.Bubbles(api.RoleUser)
		require.Len(t, users, 1)
		assert.Equal(t, "hi", users[0].TextContent())
		assert.Empty(t, f.engine.Input().Value())
		assert.True(t, f.engine.SendButton().Disabled())
		assert.Equal(t, StateSending, f.engine.State())
	})
	f.waitIdle()

	f.do(func() {
		assert.Equal(t, StateIdle, f.engine.State())
		assert.Equal(t, "Hello!", text(f.lastAssistant()))
		assert.Equal(t, rendered("Hello!"), f.lastAssistant().InnerHTML())
		assert.LessOrEqual(t, f.engine.Renders(), 2)
		assert.False(t, f.engine.SendButton().Disabled())

		msgs := f.engine.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, api.Message{Role: api.RoleAssistant, Content: "Hello!"}, msgs[1])
	})

	reqs := f.srv.ChatRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].Directive)
	assert.Equal(t, []string{"kb-1"}, reqs[0].KnowledgeSources)
}

func TestSend_FinalRenderMatchesConcatenation(t *testing.T) {
	f := newFixture(t)
	deltas := []string{"# Ti", "tle\n\n- a", "\n- b\n\n```go\nfmt.Pri", "ntln(1)\n```\n\nsee [pri", "cing](#pricing)"}
	f.srv.SetDeltas(15*time.Millisecond, deltas...)

	f.do(func() { f.engine.Send("markdown please") })
	f.waitIdle()

	full := strings.Join(deltas, "")
	f.do(func() {
		assert.Equal(t, rendered(full), f.lastAssistant().InnerHTML())
	})
}

func TestSend_Guards(t *testing.T) {
	f := newFixture(t)
	f.srv.SetDeltas(300*time.Millisecond, "slow", " reply")

	f.do(func() {
		assert.False(t, f.engine.Send("   "))
		assert.True(t, f.engine.Send("first"))
	})
	f.waitFor(func() bool { return f.engine.State() == StateStreaming })

	f.do(func() {
		assert.False(t, f.engine.Send("second"), "sends are rejected while streaming")
		assert.False(t, f.engine.SendButton().Click())
	})
	f.waitIdle()
	assert.Len(t, f.srv.ChatRequests(), 1)
}

func TestInject_AbortsPreviousStream(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	aborted := 0
	f.srv.SetChatHandler(func(w http.ResponseWriter, r *http.Request, req api.ChatRequest) {
		last := req.Messages[len(req.Messages)-1].Content
		if last == "first" {
			<-r.Context().Done()
			mu.Lock()
			aborted++
			mu.Unlock()
			return
		}
		backendtest.StreamDeltas(w, r, []string{"second answer"}, 0)
	})

	f.do(func() { f.engine.Inject("first") })
	f.waitFor(func() bool { return len(f.srv.ChatRequests()) == 1 })
	f.do(func() {
		assert.Equal(t, StateSending, f.engine.State())
		f.engine.Inject("second")
	})
	f.waitIdle()

	f.do(func() {
		msgs := f.engine.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, api.Message{Role: api.RoleUser, Content: "second"}, msgs[0])
		assert.Equal(t, "second answer", msgs[1].Content)
		assert.Len(t, f.engine.Bubbles(api.RoleAssistant), 2, "welcome plus one reply")
	})
	reqs := f.srv.ChatRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []api.Message{{Role: api.RoleUser, Content: "second"}}, reqs[1].Messages,
		"the unanswered turn is not resent")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return aborted == 1
	}, 3*time.Second, 5*time.Millisecond)
}

func TestInject_KeepsPartialReplyInHistory(t *testing.T) {
	f := newFixture(t)
	f.srv.SetChatHandler(func(w http.ResponseWriter, r *http.Request, req api.ChatRequest) {
		if req.Messages[len(req.Messages)-1].Content != "first" {
			backendtest.StreamDeltas(w, r, []string{"ok"}, 0)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"half\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	f.do(func() { f.engine.Send("first") })
	f.waitFor(func() bool { return f.engine.State() == StateStreaming })
	f.do(func() { f.engine.Inject("second") })
	f.waitIdle()

	reqs := f.srv.ChatRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []api.Message{
		{Role: api.RoleUser, Content: "first"},
		{Role: api.RoleAssistant, Content: "half"},
		{Role: api.RoleUser, Content: "second"},
	}, reqs[1].Messages)
}

func TestSend_SingleNewlineFrames(t *testing.T) {
	f := newFixture(t)
	f.srv.SetChatHandler(func(w http.ResponseWriter, r *http.Request, req api.ChatRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"Hel\"}\ndata: {\"content\":\"lo!\"}\ndata: [DONE]\n")
	})

	f.do(func() { f.engine.Send("hi") })
	f.waitIdle()

	f.do(func() {
		assert.Equal(t, StateIdle, f.engine.State())
		assert.Equal(t, "Hello!", text(f.lastAssistant()))
		msgs := f.engine.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, api.Message{Role: api.RoleAssistant, Content: "Hello!"}, msgs[1])
	})
}

func TestSend_FailureShowsMessage(t *testing.T) {
	f := newFixture(t)
	f.srv.SetFail(api.PathChat, http.StatusInternalServerError)

	f.do(func() { f.engine.Send("hi") })
	f.waitIdle()

	f.do(func() {
		assert.Equal(t, StateError, f.engine.State())
		assert.Equal(t, askTab().FailureMessage, text(f.lastAssistant()))
		assert.False(t, f.engine.SendButton().Disabled())
		assert.Len(t, f.engine.Messages(), 1)
	})

	f.srv.SetFail(api.PathChat, 0)
	f.do(func() { assert.True(t, f.engine.Send("again")) })
	f.waitIdle()
	f.do(func() { assert.Equal(t, StateIdle, f.engine.State()) })
}

func TestCleanup_AbortsWithoutFailureBubble(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	f.srv.SetChatHandler(func(w http.ResponseWriter, r *http.Request, req api.ChatRequest) {
		<-r.Context().Done()
		close(done)
	})

	f.do(func() { f.engine.Send("hi") })
	f.waitFor(func() bool { return len(f.srv.ChatRequests()) == 1 })
	f.do(func() { f.engine.Cleanup() })

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream was not aborted")
	}
	f.do(func() {
		assert.NotContains(t, f.engine.Root().TextContent(), askTab().FailureMessage)
		assert.False(t, f.engine.Send("after"))
	})
}

func TestTabLinksWiredAfterFinalRender(t *testing.T) {
	f := newFixture(t)
	f.srv.SetDeltas(0, "See [pricing](#pricing) or [docs](https://example.com).")

	f.do(func() { f.engine.Send("where?") })
	f.waitIdle()

	f.do(func() {
		link := f.lastAssistant().Find(dom.HasAttr(markdown.TabLinkAttr))
		require.NotNil(t, link)
		assert.True(t, link.Click())
	})
	select {
	case target := <-f.switched:
		assert.Equal(t, "pricing", target)
	case <-time.After(time.Second):
		t.Fatal("tab link did not switch tabs")
	}
}

func TestPersistence_OneSessionPerTab(t *testing.T) {
	f := newFixture(t)

	f.do(func() { f.engine.Send("one") })
	f.waitIdle()
	key := SessionKey("w1", askTab())
	require.Eventually(t, func() bool { return storage.Lookup(f.store, key) != "" }, 3*time.Second, 5*time.Millisecond)

	f.do(func() { f.engine.Send("two") })
	f.waitIdle()

	id := storage.Lookup(f.store, key)
	require.Eventually(t, func() bool { return len(f.srv.Sessions()[id]) == 4 }, 3*time.Second, 5*time.Millisecond)
	assert.Len(t, f.srv.Sessions(), 1)

	reqs := f.srv.ChatRequests()
	assert.Equal(t, id, reqs[1].SessionID)
}

func TestPersistence_ConcurrentSavesCreateOneSession(t *testing.T) {
	f := newFixture(t)
	msgs := []api.Message{{Role: api.RoleUser, Content: "q"}, {Role: api.RoleAssistant, Content: "a"}}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.save(context.Background(), "", msgs))
		}()
	}
	wg.Wait()

	sessions := f.srv.Sessions()
	require.Len(t, sessions, 1)
	for _, stored := range sessions {
		assert.Len(t, stored, 10)
	}
}

func TestPersistence_FailureSwallowed(t *testing.T) {
	f := newFixture(t)
	f.srv.SetFail(api.PathChatSessions, http.StatusInternalServerError)

	f.do(func() { f.engine.Send("hi") })
	f.waitIdle()

	f.do(func() {
		assert.Equal(t, StateIdle, f.engine.State())
		assert.Equal(t, "Hello!", text(f.lastAssistant()))
	})
}
