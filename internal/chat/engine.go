// ABOUTME: Chat streaming engine for one AI Chat tab instance
// ABOUTME: Owns history, the single in-flight stream, debounced rendering, and persistence

package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/markdown"
	"github.com/2389/glance-widget/internal/sse"
	"github.com/2389/glance-widget/internal/storage"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// DefaultDebounce bounds how often a streaming reply is re-rendered.
const DefaultDebounce = 80 * time.Millisecond

// State of the engine.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client is the subset of the backend the engine talks to.
type Client interface {
	StreamChat(ctx context.Context, in api.ChatRequest, token string) (*api.Stream, error)
	CreateChatSession(ctx context.Context, widgetID, tabName, token string) (string, error)
	AddChatMessages(ctx context.Context, sessionID, token string, msgs []api.Message) error
}

// Options configures an Engine.
type Options struct {
	WidgetID string
	Tab      widgetcfg.Tab
	Client   Client
	Loop     *loop.Loop
	Storage  storage.Storage
	Logger   *slog.Logger
	Debounce time.Duration
	// Token returns the visitor's session token, or "".
	Token func() string
	// SwitchTab is called when a tab link in a reply is clicked.
	SwitchTab func(target string)
	// OnSend runs after a message is accepted.
	OnSend func(text string)
}

// SessionKey is the storage key holding the remote history session id.
func SessionKey(widgetID string, tab widgetcfg.Tab) string {
	return "glance_chat_" + widgetID + "_" + tab.Slug()
}

// Engine drives one chat tab. Everything except persistence runs on the loop.
type Engine struct {
	opts   Options
	logger *slog.Logger

	ctx      context.Context
	shutdown context.CancelFunc
	closed   bool

	state    State
	messages []api.Message

	// Current stream. gen increments whenever a stream is started or
	// abandoned so results from older streams are ignored.
	gen      int
	cancel   context.CancelFunc
	reply    strings.Builder
	bubble   *dom.Node
	debounce *loop.Timer
	renders  int

	sessions singleflight.Group

	root    *dom.Node
	list    *dom.Node
	form    *dom.Node
	input   *dom.Node
	send    *dom.Node
	prompts *dom.Node
}

// New creates an engine for opts.Tab.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:     opts,
		logger:   opts.Logger.With("component", "chat", "tab", opts.Tab.Name),
		ctx:      ctx,
		shutdown: cancel,
	}
}

// State returns the engine state.
func (e *Engine) State() State { return e.state }

// Messages returns a copy of the conversation so far.
func (e *Engine) Messages() []api.Message {
	return append([]api.Message(nil), e.messages...)
}

// Renders returns how many debounced renders the current or last reply got,
// not counting its final render.
func (e *Engine) Renders() int { return e.renders }

// Root returns the rendered tab.
func (e *Engine) Root() *dom.Node { return e.root }

// Input returns the message input.
func (e *Engine) Input() *dom.Node { return e.input }

// SendButton returns the send control.
func (e *Engine) SendButton() *dom.Node { return e.send }

// Render builds the chat view.
func (e *Engine) Render() *dom.Node {
	e.buildMarkup()
	e.wire()
	return e.root
}

// Send submits text as the visitor. Empty text is rejected, as is a send
// while a reply is streaming. A request that has not started streaming yet
// is abandoned in favour of the new one.
func (e *Engine) Send(text string) bool {
	text = strings.TrimSpace(text)
	if e.closed || text == "" || e.state == StateStreaming {
		return false
	}
	e.abandon()
	e.start(text)
	return true
}

// Inject puts prompt into the input and sends it, cancelling any reply in
// flight.
func (e *Engine) Inject(prompt string) bool {
	prompt = strings.TrimSpace(prompt)
	if e.closed || prompt == "" {
		return false
	}
	if e.input != nil {
		e.input.SetValue(prompt)
	}
	e.abandon()
	e.start(prompt)
	return true
}

// Cleanup aborts the in-flight request and pending persistence. It is only
// called when the widget is torn down, never when the tab is detached.
func (e *Engine) Cleanup() {
	if e.closed {
		return
	}
	e.closed = true
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.debounce.Stop()
	e.debounce = nil
	e.shutdown()
}

func (e *Engine) start(text string) {
	e.messages = append(e.messages, api.Message{Role: api.RoleUser, Content: text})
	e.appendBubble(api.RoleUser).SetText(text)
	if e.input != nil {
		e.input.SetValue("")
	}
	if e.prompts != nil {
		e.prompts.SetHidden(true)
	}

	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(e.ctx)
	e.cancel = cancel
	e.state = StateSending
	e.reply.Reset()
	e.renders = 0
	e.bubble = e.appendBubble(api.RoleAssistant).SetClass("glance-typing", true)
	e.refreshControls()

	req := api.ChatRequest{
		WidgetID:         e.opts.WidgetID,
		TabName:          e.opts.Tab.Name,
		Messages:         e.Messages(),
		Directive:        e.opts.Tab.Directive,
		KnowledgeSources: e.opts.Tab.KnowledgeSources,
		SessionID:        storage.Lookup(e.opts.Storage, SessionKey(e.opts.WidgetID, e.opts.Tab)),
	}
	go e.consume(ctx, gen, req, e.opts.Token())

	if e.opts.OnSend != nil {
		e.opts.OnSend(text)
	}
}

// abandon cancels the current stream and finalizes what it showed. A partial
// reply stays in history unsaved; a request with no reply yet is forgotten.
func (e *Engine) abandon() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	e.gen++
	e.finalRender()
	if e.reply.Len() == 0 {
		if e.bubble != nil {
			e.bubble.Detach()
		}
		// Drop the unanswered turn so history keeps alternating roles.
		if n := len(e.messages); n > 0 && e.messages[n-1].Role == api.RoleUser {
			e.messages = e.messages[:n-1]
		}
	} else {
		e.messages = append(e.messages, api.Message{Role: api.RoleAssistant, Content: e.reply.String()})
	}
	e.bubble = nil
	e.state = StateIdle
}

// consume reads the stream off the loop and posts each step back onto it.
func (e *Engine) consume(ctx context.Context, gen int, req api.ChatRequest, token string) {
	post := func(fn func()) { e.opts.Loop.Post(fn) }

	stream, err := e.opts.Client.StreamChat(ctx, req, token)
	if err != nil {
		post(func() { e.onEnd(gen, err) })
		return
	}
	defer stream.Close()

	for {
		f, err := stream.Next()
		if errors.Is(err, io.EOF) {
			post(func() { e.onEnd(gen, nil) })
			return
		}
		if err != nil {
			post(func() { e.onEnd(gen, err) })
			return
		}
		deltas, done, err := sse.Deltas(f)
		if err != nil {
			e.logger.Debug("skipping chat frame", "error", err)
		}
		for _, delta := range deltas {
			post(func() { e.onDelta(gen, delta) })
		}
		if done {
			post(func() { e.onEnd(gen, nil) })
			return
		}
	}
}

func (e *Engine) onDelta(gen int, delta string) {
	if gen != e.gen || e.closed {
		return
	}
	if e.state == StateSending {
		e.state = StateStreaming
		e.bubble.SetClass("glance-typing", false)
		e.refreshControls()
	}
	e.reply.WriteString(delta)
	if e.debounce == nil {
		e.debounce = e.opts.Loop.AfterFunc(e.opts.Debounce, func() {
			e.debounce = nil
			if gen != e.gen || e.closed {
				return
			}
			e.renders++
			e.renderReply()
		})
	}
}

func (e *Engine) onEnd(gen int, err error) {
	if gen != e.gen || e.closed {
		return
	}
	e.cancel = nil
	e.finalRender()

	switch {
	case err == nil:
		e.state = StateIdle
		if e.reply.Len() > 0 {
			reply := api.Message{Role: api.RoleAssistant, Content: e.reply.String()}
			e.messages = append(e.messages, reply)
			e.persist(e.messages[len(e.messages)-2:])
		}
	case api.IsAbort(err):
		e.state = StateIdle
	default:
		e.logger.Warn("chat stream failed", "error", err)
		e.state = StateError
		e.bubble.SetClass("glance-chat-failed", true)
		e.bubble.SetHTML(markdown.Render(e.opts.Tab.FailureMessage))
	}
	e.bubble.SetClass("glance-typing", false)
	e.bubble = nil
	e.refreshControls()
}

// finalRender stops the debounce and shows the whole reply.
func (e *Engine) finalRender() {
	e.debounce.Stop()
	e.debounce = nil
	e.renderReply()
	if e.bubble != nil && e.opts.SwitchTab != nil {
		markdown.WireTabLinks(e.bubble, e.opts.SwitchTab)
	}
}

func (e *Engine) renderReply() {
	if e.bubble == nil {
		return
	}
	if err := e.bubble.SetHTML(markdown.Render(e.reply.String())); err != nil {
		e.bubble.SetText(e.reply.String())
	}
}

func (e *Engine) refreshControls() {
	if e.send == nil {
		return
	}
	busy := e.state == StateSending || e.state == StateStreaming
	e.send.SetDisabled(busy)
}

// persist saves one exchange to the remote history session. Best effort:
// failures are logged and dropped.
func (e *Engine) persist(exchange []api.Message) {
	msgs := append([]api.Message(nil), exchange...)
	token := e.opts.Token()
	ctx := e.ctx
	go func() {
		if err := e.save(ctx, token, msgs); err != nil && !api.IsAbort(err) {
			e.logger.Debug("saving chat history failed", "error", err)
		}
	}()
}

func (e *Engine) save(ctx context.Context, token string, msgs []api.Message) error {
	key := SessionKey(e.opts.WidgetID, e.opts.Tab)
	id, err := e.sessionID(ctx, key, token)
	if err != nil {
		return err
	}
	err = e.opts.Client.AddChatMessages(ctx, id, token, msgs)
	if errors.Is(err, api.ErrNotFound) {
		// The server forgot the session; start a new one next time.
		_ = e.opts.Storage.Delete(key)
	}
	return err
}

// sessionID returns the stored history session, creating it at most once
// even when exchanges complete concurrently.
func (e *Engine) sessionID(ctx context.Context, key, token string) (string, error) {
	v, err, _ := e.sessions.Do(key, func() (any, error) {
		if id := storage.Lookup(e.opts.Storage, key); id != "" {
			return id, nil
		}
		id, err := e.opts.Client.CreateChatSession(ctx, e.opts.WidgetID, e.opts.Tab.Name, token)
		if err != nil {
			return "", err
		}
		if err := e.opts.Storage.Set(key, id); err != nil {
			e.logger.Debug("storing chat session id failed", "error", err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
