// ABOUTME: Form tab controller: renders configured fields, uploads files, submits
// ABOUTME: Submit waits on in-flight uploads; oversized files never reach the network

package forms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// DefaultMaxUploadBytes is the per-file ceiling.
const DefaultMaxUploadBytes int64 = 20 << 20

// User-facing messages.
const (
	MsgFileTooLarge    = "File too large. Maximum size is 20MB."
	MsgUploading       = "Uploading…"
	MsgUploadFailed    = "Upload failed. Please try again."
	MsgWaitForUploads  = "Please wait for your files to finish uploading."
	MsgSubmitFailed    = "Something went wrong. Please try again."
	MsgDefaultSuccess  = "Thanks! We'll be in touch."
	msgRequiredPattern = "Please fill in %s."
)

// Client is the subset of the backend a form talks to.
type Client interface {
	UploadURL(ctx context.Context, in api.UploadURLRequest) (*api.UploadTarget, error)
	PutFile(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
	SubmitForm(ctx context.Context, in api.FormSubmission) error
}

// Identity resolves the signed-in visitor, if any.
type Identity interface {
	Current(ctx context.Context) (*api.User, string, error)
}

// File is the payload of a "change" event on a file input.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Options configures a Controller.
type Options struct {
	WidgetID       string
	Tab            widgetcfg.Tab
	Client         Client
	Identity       Identity
	Loop           *loop.Loop
	Logger         *slog.Logger
	MaxUploadBytes int64
	// OnSubmitted runs on the loop after a successful submission.
	OnSubmitted func()
}

// Controller owns one rendered form tab. All methods run on the loop.
type Controller struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	root   *dom.Node
	form   *dom.Node
	submit *dom.Node

	uploading  int
	uploads    map[string]string
	// selections counts file selections per field; only the latest
	// selection's upload result is kept.
	selections map[string]int
	tooLarge   map[string]bool
	hidden     map[string]bool
	user       *api.User
	token      string
	submitting bool
	submitted  bool
}

// New creates a controller for opts.Tab.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:     opts,
		logger:   opts.Logger.With("component", "forms", "tab", opts.Tab.Name),
		ctx:      ctx,
		cancel:   cancel,
		uploads:  make(map[string]string),
		tooLarge: make(map[string]bool),
		hidden:   make(map[string]bool),

		selections: make(map[string]int),
	}
}

// Render builds the form and starts identity resolution.
func (c *Controller) Render() *dom.Node {
	c.root, c.form, c.submit = buildMarkup(c.opts.Tab)
	c.wire()
	c.resolveIdentity()
	return c.root
}

// Cleanup cancels uploads and submissions still in flight.
func (c *Controller) Cleanup() {
	c.cancel()
}

// Uploading returns the number of uploads in flight.
func (c *Controller) Uploading() int { return c.uploading }

// Submitted reports whether the form was accepted.
func (c *Controller) Submitted() bool { return c.submitted }

// IdentityHidden reports whether field id was filled from the session and hidden.
func (c *Controller) IdentityHidden(id string) bool { return c.hidden[id] }

// Root returns the rendered node.
func (c *Controller) Root() *dom.Node { return c.root }

// Field returns the input for field id.
func (c *Controller) Field(id string) *dom.Node {
	if c.form == nil {
		return nil
	}
	return c.form.Find(dom.AttrEquals("name", id))
}

func (c *Controller) wire() {
	c.form.On("submit", func(dom.Event) { c.Submit() })
	c.submit.On("click", func(dom.Event) { c.Submit() })

	for _, f := range c.opts.Tab.FormFields {
		in := c.Field(f.ID)
		switch f.Type {
		case widgetcfg.FieldFile:
			id := f.ID
			in.On("change", func(ev dom.Event) {
				if file, ok := ev.Data.(File); ok {
					c.SelectFile(id, file)
				}
			})
		case widgetcfg.FieldCheckbox:
			in.On("change", func(ev dom.Event) {
				if checked, _ := ev.Data.(bool); checked {
					ev.Target.SetAttr("checked", "")
				} else {
					ev.Target.RemoveAttr("checked")
				}
			})
		}
	}
}

func (c *Controller) resolveIdentity() {
	if c.opts.Identity == nil {
		return
	}
	ctx := c.ctx
	go func() {
		user, token, err := c.opts.Identity.Current(ctx)
		c.opts.Loop.Post(func() {
			if err != nil {
				c.logger.Debug("no signed-in visitor", "error", err)
				return
			}
			c.applyIdentity(user, token)
		})
	}()
}

// applyIdentity pre-fills identity fields from user and hides them.
func (c *Controller) applyIdentity(user *api.User, token string) {
	if c.submitted || user == nil {
		return
	}
	c.user, c.token = user, token
	for _, f := range c.opts.Tab.FormFields {
		key := identityKey(f)
		if key == "" {
			continue
		}
		v := identityValue(user, key)
		if v == "" {
			continue
		}
		c.Field(f.ID).SetValue(v)
		c.hidden[f.ID] = true
		if wrap := c.fieldWrapper(f.ID); wrap != nil {
			wrap.SetHidden(true)
		}
	}
}

// SelectFile handles a file chosen for field id.
func (c *Controller) SelectFile(id string, f File) {
	if c.submitted {
		return
	}
	c.selections[id]++
	sel := c.selections[id]
	delete(c.uploads, id)
	if f.Size > c.opts.MaxUploadBytes {
		c.tooLarge[id] = true
		c.setStatus(id, MsgFileTooLarge, true)
		return
	}
	delete(c.tooLarge, id)

	c.uploading++
	c.refreshSubmit()
	c.setStatus(id, MsgUploading, false)

	ctx := c.ctx
	req := api.UploadURLRequest{
		WidgetID:    c.opts.WidgetID,
		FileName:    f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
	}
	go func() {
		target, err := c.opts.Client.UploadURL(ctx, req)
		if err == nil {
			err = c.opts.Client.PutFile(ctx, target.UploadURL, f.ContentType, f.Body, f.Size)
		}
		c.opts.Loop.Post(func() { c.uploadDone(id, sel, f.Name, target, err) })
	}()
}

func (c *Controller) uploadDone(id string, sel int, name string, target *api.UploadTarget, err error) {
	c.uploading--
	c.refreshSubmit()
	if sel != c.selections[id] {
		return
	}
	if err != nil {
		if !api.IsAbort(err) {
			c.logger.Warn("file upload failed", "field", id, "error", err)
			c.setStatus(id, MsgUploadFailed, true)
		}
		return
	}
	c.uploads[id] = target.FileURL
	c.setStatus(id, "Uploaded "+name, false)
}

// Submit validates and sends the form.
func (c *Controller) Submit() {
	if c.submitting || c.submitted {
		return
	}
	if c.uploading > 0 {
		c.setMessage(MsgWaitForUploads)
		return
	}
	if len(c.tooLarge) > 0 {
		c.setMessage(MsgFileTooLarge)
		return
	}

	fields := make(map[string]string)
	files := make(map[string]string)
	for _, f := range c.opts.Tab.FormFields {
		var v string
		switch f.Type {
		case widgetcfg.FieldFile:
			v = c.uploads[f.ID]
			if v != "" {
				files[f.ID] = v
			}
		case widgetcfg.FieldCheckbox:
			if _, ok := c.Field(f.ID).Attr("checked"); ok {
				v = "true"
			}
			fields[f.ID] = v
		default:
			v = strings.TrimSpace(c.Field(f.ID).Value())
			fields[f.ID] = v
		}
		if f.Required && v == "" {
			c.setMessage(fmt.Sprintf(msgRequiredPattern, labelOf(f)))
			return
		}
	}

	c.submitting = true
	c.refreshSubmit()
	c.setMessage("")

	sub := api.FormSubmission{
		WidgetID: c.opts.WidgetID,
		TabName:  c.opts.Tab.Name,
		Fields:   fields,
		Files:    files,
		Token:    c.token,
	}
	ctx := c.ctx
	go func() {
		err := c.opts.Client.SubmitForm(ctx, sub)
		c.opts.Loop.Post(func() { c.submitDone(fields, err) })
	}()
}

func (c *Controller) submitDone(fields map[string]string, err error) {
	c.submitting = false
	c.refreshSubmit()
	if err != nil {
		if !api.IsAbort(err) {
			c.logger.Warn("form submission failed", "error", err)
			c.setMessage(MsgSubmitFailed)
		}
		return
	}

	c.submitted = true
	msg := c.opts.Tab.SuccessMessage
	if msg == "" {
		msg = MsgDefaultSuccess
	}
	vars := c.successVars(fields)
	c.root.Clear()
	c.root.Append(dom.El("div", "class", "glance-form-success").SetText(Substitute(msg, vars)))
	c.logger.Info("form submitted")
	if c.opts.OnSubmitted != nil {
		c.opts.OnSubmitted()
	}
}

// successVars prefers the signed-in identity and falls back to what the
// visitor typed into identity fields.
func (c *Controller) successVars(fields map[string]string) map[string]string {
	vars := map[string]string{}
	for _, f := range c.opts.Tab.FormFields {
		key := identityKey(f)
		v := fields[f.ID]
		if key == "" || v == "" {
			continue
		}
		if key == "name" {
			first, last, _ := strings.Cut(v, " ")
			setIfEmpty(vars, "first_name", first)
			setIfEmpty(vars, "last_name", strings.TrimSpace(last))
			continue
		}
		setIfEmpty(vars, key, v)
	}
	if c.user != nil {
		vars["first_name"] = firstNonEmpty(c.user.FirstName, vars["first_name"])
		vars["last_name"] = firstNonEmpty(c.user.LastName, vars["last_name"])
		vars["email"] = firstNonEmpty(c.user.Email, vars["email"])
	}
	return vars
}

func (c *Controller) refreshSubmit() {
	c.submit.SetDisabled(c.uploading > 0 || c.submitting)
}

func (c *Controller) setMessage(msg string) {
	el := c.form.Find(dom.HasAttr("data-message"))
	el.SetText(msg).SetHidden(msg == "")
}

func (c *Controller) setStatus(id, msg string, isErr bool) {
	wrap := c.fieldWrapper(id)
	if wrap == nil {
		return
	}
	st := wrap.Find(dom.HasAttr("data-status"))
	st.SetText(msg).SetHidden(msg == "").SetClass("glance-form-error", isErr)
}

func (c *Controller) fieldWrapper(id string) *dom.Node {
	return c.form.Find(dom.AttrEquals("data-field", id))
}

func setIfEmpty(m map[string]string, k, v string) {
	if m[k] == "" && v != "" {
		m[k] = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
