// ABOUTME: Three-step sign-in gate shown in place of premium tab content
// ABOUTME: One dispatcher drives email, code, resend, and provider popup transitions

package authgate

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/page"
	"github.com/2389/glance-widget/internal/storage"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// State is the visible step of the gate.
type State int

const (
	StateDefault State = iota
	StateMagicCreate
	StateMagicLogin
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateMagicCreate:
		return "magic-create"
	case StateMagicLogin:
		return "magic-login"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	MsgEmailRequired = "Please enter your email address."
	MsgCodeRequired  = "Please enter the code we sent you."
	MsgSendFailed    = "We couldn't send a code. Please try again."
	MsgVerifyFailed  = "That code didn't work. Please try again."
	MsgPopupBlocked  = "Please allow popups to continue with Google."
	MsgCodeResent    = "A new code is on its way."
)

// Client is the subset of the backend the gate talks to.
type Client interface {
	SendCode(ctx context.Context, workspaceID, email string) (*api.SendCodeResponse, error)
	VerifyCode(ctx context.Context, in api.VerifyCodeRequest) (*api.VerifyCodeResponse, error)
	GoogleAuthURL(workspaceID string) string
}

// Action is an input to Dispatch.
type Action interface{ action() }

// SubmitEmail requests a one-time code for Email.
type SubmitEmail struct{ Email string }

// SubmitCode verifies a code. Names are sent only from the create step.
type SubmitCode struct {
	Code      string
	FirstName string
	LastName  string
}

// Resend requests a fresh code without leaving the current step.
type Resend struct{}

// ProviderStart opens the provider sign-in popup.
type ProviderStart struct{}

// ProviderToken delivers a token received from the provider popup.
type ProviderToken struct{ Token string }

type codeSent struct {
	email  string
	exists bool
	resend bool
	err    error
}

type codeVerified struct {
	token string
	err   error
}

func (SubmitEmail) action()   {}
func (SubmitCode) action()    {}
func (Resend) action()        {}
func (ProviderStart) action() {}
func (ProviderToken) action() {}
func (codeSent) action()      {}
func (codeVerified) action()  {}

// Options configures a Gate.
type Options struct {
	WorkspaceID string
	Auth        widgetcfg.AuthConfig
	Client      Client
	Page        *page.Page
	Loop        *loop.Loop
	Logger      *slog.Logger
	// OnAuthenticated runs on the loop after the token is stored.
	OnAuthenticated func(token string)
}

// Gate is one sign-in flow. All methods must be called on the loop.
type Gate struct {
	opts   Options
	logger *slog.Logger

	state State
	email string
	busy  bool
	done  bool

	ctx    context.Context
	cancel context.CancelFunc

	removeListener func()

	root  *dom.Node
	steps map[State]*dom.Node
}

// New creates a gate in the default step.
func New(opts Options) *Gate {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		opts:   opts,
		logger: opts.Logger.With("component", "authgate"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current step.
func (g *Gate) State() State { return g.state }

// Email returns the address captured in the default step.
func (g *Gate) Email() string { return g.email }

// Done reports whether the gate has finished or been torn down.
func (g *Gate) Done() bool { return g.done }

// Root returns the rendered gate, or nil before Render.
func (g *Gate) Root() *dom.Node { return g.root }

// Step returns the form node for s.
func (g *Gate) Step(s State) *dom.Node { return g.steps[s] }

// Render builds the gate markup and wires its handlers.
func (g *Gate) Render() *dom.Node {
	if g.root == nil {
		g.root, g.steps = buildMarkup(g.opts.Auth)
	}
	g.wire()
	g.show(g.state)
	return g.root
}

// Dispatch is the single transition function of the gate.
func (g *Gate) Dispatch(a Action) {
	if g.done {
		return
	}
	switch a := a.(type) {
	case SubmitEmail:
		g.submitEmail(a)
	case codeSent:
		g.onCodeSent(a)
	case SubmitCode:
		g.submitCode(a)
	case codeVerified:
		g.onCodeVerified(a)
	case Resend:
		g.resend()
	case ProviderStart:
		g.providerStart()
	case ProviderToken:
		g.succeed(a.Token)
	}
}

// Teardown cancels outstanding requests and removes the message listener.
// The gate ignores every later action.
func (g *Gate) Teardown() {
	g.done = true
	g.cancel()
	if g.removeListener != nil {
		g.removeListener()
		g.removeListener = nil
	}
}

func (g *Gate) submitEmail(a SubmitEmail) {
	if g.state != StateDefault || g.busy {
		return
	}
	email := strings.TrimSpace(a.Email)
	if email == "" || !strings.Contains(email, "@") {
		g.setError(StateDefault, MsgEmailRequired)
		return
	}
	g.setBusy(StateDefault, true)
	g.run(func(ctx context.Context) Action {
		resp, err := g.opts.Client.SendCode(ctx, g.opts.WorkspaceID, email)
		if err != nil {
			return codeSent{email: email, err: err}
		}
		return codeSent{email: email, exists: resp.Exists}
	})
}

func (g *Gate) onCodeSent(a codeSent) {
	g.setBusy(g.state, false)
	if a.err != nil {
		if api.IsAbort(a.err) {
			return
		}
		g.logger.Warn("sending code failed", "error", a.err)
		g.setError(g.state, MsgSendFailed)
		return
	}
	if a.resend {
		g.setNotice(g.state, MsgCodeResent)
		return
	}

	g.email = a.email
	next := StateMagicCreate
	if a.exists {
		next = StateMagicLogin
	}
	g.state = next
	g.show(next)
}

func (g *Gate) submitCode(a SubmitCode) {
	if g.state == StateDefault || g.busy {
		return
	}
	code := strings.TrimSpace(a.Code)
	if code == "" {
		g.setError(g.state, MsgCodeRequired)
		return
	}
	req := api.VerifyCodeRequest{
		WorkspaceID: g.opts.WorkspaceID,
		Email:       g.email,
		Code:        code,
	}
	if g.state == StateMagicCreate {
		req.FirstName = strings.TrimSpace(a.FirstName)
		req.LastName = strings.TrimSpace(a.LastName)
	}

	g.setBusy(g.state, true)
	g.run(func(ctx context.Context) Action {
		resp, err := g.opts.Client.VerifyCode(ctx, req)
		if err != nil {
			return codeVerified{err: err}
		}
		return codeVerified{token: resp.Token}
	})
}

func (g *Gate) onCodeVerified(a codeVerified) {
	g.setBusy(g.state, false)
	if a.err != nil {
		if api.IsAbort(a.err) {
			return
		}
		g.logger.Warn("verifying code failed", "error", a.err)
		g.setError(g.state, MsgVerifyFailed)
		return
	}
	g.succeed(a.token)
}

func (g *Gate) resend() {
	if g.state == StateDefault || g.busy || g.email == "" {
		return
	}
	email := g.email
	g.setBusy(g.state, true)
	g.run(func(ctx context.Context) Action {
		_, err := g.opts.Client.SendCode(ctx, g.opts.WorkspaceID, email)
		return codeSent{email: email, resend: true, err: err}
	})
}

func (g *Gate) providerStart() {
	if g.removeListener == nil {
		var fired atomic.Bool
		g.removeListener = g.opts.Page.OnMessage(func(m page.Message) {
			token := m.String("token")
			if token == "" || !fired.CompareAndSwap(false, true) {
				return
			}
			g.opts.Loop.Post(func() { g.Dispatch(ProviderToken{Token: token}) })
		})
	}

	if err := g.opts.Page.OpenPopup(g.opts.Client.GoogleAuthURL(g.opts.WorkspaceID)); err != nil {
		g.logger.Warn("opening sign-in popup failed", "error", err)
		g.removeListener()
		g.removeListener = nil
		g.setError(StateDefault, MsgPopupBlocked)
	}
}

// succeed stores the token, tears the gate down, and hands control back.
func (g *Gate) succeed(token string) {
	if token == "" {
		return
	}
	store := g.opts.Page.Storage()
	if err := store.Set(storage.TokenKey(g.opts.WorkspaceID), token); err != nil {
		g.logger.Error("storing session token failed", "error", err)
	}
	g.Teardown()
	if g.root != nil {
		g.root.Detach()
	}
	g.logger.Info("signed in", "workspace", g.opts.WorkspaceID)
	if g.opts.OnAuthenticated != nil {
		g.opts.OnAuthenticated(token)
	}
}

// run performs fn off the loop and dispatches its result back onto it.
func (g *Gate) run(fn func(ctx context.Context) Action) {
	ctx := g.ctx
	go func() {
		a := fn(ctx)
		g.opts.Loop.Post(func() { g.Dispatch(a) })
	}()
}

func (g *Gate) show(s State) {
	for state, form := range g.steps {
		form.SetHidden(state != s)
	}
	if s != StateDefault && g.root != nil {
		for _, n := range g.root.FindAll(dom.HasAttr("data-email")) {
			n.SetText(g.email)
		}
	}
}

func (g *Gate) setBusy(s State, busy bool) {
	g.busy = busy
	form := g.steps[s]
	if form == nil {
		return
	}
	for _, b := range form.FindAll(dom.IsTag("button")) {
		b.SetDisabled(busy)
	}
	if busy {
		g.clearMessage(s)
	}
}

func (g *Gate) setError(s State, msg string) {
	g.message(s, msg, true)
}

func (g *Gate) setNotice(s State, msg string) {
	g.message(s, msg, false)
}

func (g *Gate) clearMessage(s State) {
	if el := g.messageNode(s); el != nil {
		el.SetText("").SetHidden(true)
	}
}

func (g *Gate) message(s State, msg string, isErr bool) {
	el := g.messageNode(s)
	if el == nil {
		return
	}
	el.SetText(msg).SetHidden(false).SetClass("glance-auth-error", isErr)
}

func (g *Gate) messageNode(s State) *dom.Node {
	form := g.steps[s]
	if form == nil {
		return nil
	}
	return form.Find(dom.HasAttr("data-message"))
}

// VisibleStep returns the single visible step, or -1 if the count is not one.
func (g *Gate) VisibleStep() State {
	visible := State(-1)
	count := 0
	for s, form := range g.steps {
		if !form.Hidden() {
			visible = s
			count++
		}
	}
	if count != 1 {
		return -1
	}
	return visible
}
