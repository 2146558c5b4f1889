// ABOUTME: Entry point for the glance terminal host
// ABOUTME: Bootstraps a widget against a real backend and drives it from a prompt

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/authgate"
	"github.com/2389/glance-widget/internal/config"
	"github.com/2389/glance-widget/internal/dom"
	"github.com/2389/glance-widget/internal/forms"
	"github.com/2389/glance-widget/internal/loop"
	"github.com/2389/glance-widget/internal/page"
	"github.com/2389/glance-widget/internal/storage"
	"github.com/2389/glance-widget/internal/widget"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _
   __ _| | __ _ _ __   ___ ___
  / _' | |/ _' | '_ \ / __/ _ \
 | (_| | | (_| | | | | (_|  __/
  \__, |_|\__,_|_| |_|\___\___|
  |___/
`

const sampleConfig = `# glance terminal host
api:
  base_url: https://app.glance.example
  request_timeout: 30s

widget:
  id: ${GLANCE_WIDGET_ID}

storage:
  # empty keeps tokens and sessions in memory
  path: ""

analytics:
  flush_interval: 30s
  session_window: 30m

chat:
  render_debounce: 80ms

forms:
  max_upload_bytes: 20971520

logging:
  level: info
  format: text
`

func main() {
	cmd, args := "run", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "run":
		err = runHost(ctx, args)
	case "init":
		err = runInit()
	case "check":
		err = runCheck(ctx)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: glance <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run [--widget ID]  Bootstrap the widget and open an interactive prompt (default)")
	fmt.Println("  init               Write a sample config file")
	fmt.Println("  check              Fetch the widget configuration and list its tabs")
}

func runInit() error {
	path := config.Path()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	color.Green("Wrote %s", path)
	return nil
}

func runCheck(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	client, err := api.New(cfg.API.BaseURL, api.WithTimeout(cfg.API.RequestTimeout))
	if err != nil {
		return err
	}
	wc, err := client.FetchConfig(ctx, cfg.Widget.ID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Printf("%s", wc.ID)
	gray.Printf(" (workspace %s)\n", wc.WorkspaceID)
	for i, t := range wc.Tabs {
		fmt.Printf("  %d  %-20s %s", i, t.Name, t.Type)
		if t.IsPremium {
			color.New(color.FgYellow).Print(" [premium]")
		}
		fmt.Println()
	}
	return nil
}

// widgetFlag reads --widget ID (or --widget=ID) from args.
func widgetFlag(args []string) (string, error) {
	var id string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--widget" || arg == "-w":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--widget requires a value")
			}
			id = args[i+1]
			i++
		case strings.HasPrefix(arg, "--widget="):
			id = strings.TrimPrefix(arg, "--widget=")
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	return strings.TrimSpace(id), nil
}

func runHost(ctx context.Context, args []string) error {
	widgetID, err := widgetFlag(args)
	if err != nil {
		return err
	}

	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if widgetID != "" {
		cfg.Widget.ID = widgetID
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s\n", cfg.API.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Widget:  %s\n\n", cfg.Widget.ID)

	var store storage.Storage = storage.NewMemory()
	if cfg.Storage.Path != "" {
		sqlite, err := storage.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer sqlite.Close()
		store = sqlite
	}

	client, err := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.RequestTimeout),
		api.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}

	pg := page.New(store)
	pg.SetOpener(func(url string) error {
		color.Yellow("Open this URL to sign in, then paste the token with: token <value>")
		fmt.Println(url)
		return nil
	})

	l := loop.New(logger)
	defer l.Close()

	rt := &widget.Runtime{
		WidgetID: cfg.Widget.ID,
		Client:   client,
		Page:     pg,
		Loop:     l,
		Logger:   logger,
		Settings: widget.Settings{
			RenderDebounce: cfg.Chat.RenderDebounce,
			FlushInterval:  cfg.Analytics.FlushInterval,
			SessionWindow:  cfg.Analytics.SessionWindow,
			MaxUploadBytes: cfg.Forms.MaxUploadBytes,
		},
	}
	w, err := widget.Bootstrap(ctx, rt)
	if err != nil {
		return err
	}
	defer func() {
		_ = l.Do(w.Teardown)
		rt.Analytics.Wait()
	}()

	h := &host{w: w, l: l, page: pg}
	return h.repl(ctx)
}

type host struct {
	w    *widget.Widget
	l    *loop.Loop
	page *page.Page
}

func (h *host) repl(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	prompt := color.New(color.FgCyan, color.Bold)
	for {
		prompt.Print("glance> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := h.exec(strings.TrimSpace(line))
			if err != nil {
				color.Red("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

var errUsage = errors.New("unknown command, try: help")

func (h *host) exec(line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "#") {
		h.page.Navigate(line)
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println("open | close | tab N | #hash | send TEXT | prompt TEXT | email ADDR | code CODE [FIRST LAST]")
		fmt.Println("fill FIELD VALUE | attach FIELD PATH | submit")
		fmt.Println("resend | google | token VALUE | view | html | signout | quit")
	case "open":
		err = h.l.Do(h.w.Open)
	case "close":
		err = h.l.Do(h.w.Close)
	case "tab":
		i, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return false, fmt.Errorf("tab wants an index: %w", convErr)
		}
		err = h.l.Do(func() { h.w.SwitchTab(i) })
	case "prompt":
		err = h.l.Do(func() { h.w.PromptClicked(arg) })
	case "send":
		err = h.l.Do(func() {
			input := h.w.Body().Find(dom.AttrEquals("name", "message"))
			if input == nil {
				color.Yellow("the active tab has no chat input")
				return
			}
			input.Input(arg)
			if form := h.w.Body().Find(dom.IsTag("form")); form != nil {
				form.Submit()
			}
		})
	case "fill":
		name, value, _ := strings.Cut(arg, " ")
		err = h.fill(name, strings.TrimSpace(value))
	case "attach":
		name, path, _ := strings.Cut(arg, " ")
		err = h.attach(name, strings.TrimSpace(path))
	case "submit":
		err = h.l.Do(func() {
			if form := h.w.Body().Find(dom.IsTag("form")); form != nil {
				form.Submit()
			}
		})
	case "email":
		err = h.gate(authgate.SubmitEmail{Email: arg})
	case "code":
		fields := strings.Fields(arg)
		if len(fields) == 0 {
			return false, errors.New("code wants a value")
		}
		in := authgate.SubmitCode{Code: fields[0]}
		if len(fields) > 1 {
			in.FirstName = fields[1]
		}
		if len(fields) > 2 {
			in.LastName = strings.Join(fields[2:], " ")
		}
		err = h.gate(in)
	case "resend":
		err = h.gate(authgate.Resend{})
	case "google":
		err = h.gate(authgate.ProviderStart{})
	case "token":
		h.page.PostMessage(page.Message{Data: map[string]any{"token": arg}})
	case "view":
		err = h.l.Do(func() { fmt.Println(strings.TrimSpace(h.w.Body().TextContent())) })
	case "html":
		err = h.l.Do(func() { fmt.Println(h.w.Host().Render()) })
	case "signout":
		err = h.l.Do(func() {
			if soErr := h.w.SignOut(); soErr != nil {
				color.Red("%v", soErr)
			}
		})
	default:
		return false, errUsage
	}
	return false, err
}

// fill types value into the active tab's field named name. Checkboxes
// take yes/no.
func (h *host) fill(name, value string) error {
	var found bool
	err := h.l.Do(func() {
		in := h.w.Body().Find(dom.AttrEquals("name", name))
		if in == nil {
			return
		}
		found = true
		if in.AttrOr("type", "") == "checkbox" {
			in.Dispatch(dom.Event{Type: "change", Data: isYes(value)})
			return
		}
		in.Input(value)
	})
	if err == nil && !found {
		return fmt.Errorf("no field named %q", name)
	}
	return err
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "true", "on", "1":
		return true
	}
	return false
}

// attach selects the file at path for the file field named name.
func (h *host) attach(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	file := forms.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        bytes.NewReader(data),
	}

	var found bool
	err = h.l.Do(func() {
		in := h.w.Body().Find(dom.AttrEquals("name", name))
		if in == nil || in.AttrOr("type", "") != "file" {
			return
		}
		found = true
		in.Dispatch(dom.Event{Type: "change", Data: file})
	})
	if err == nil && !found {
		return fmt.Errorf("no file field named %q", name)
	}
	return err
}

func (h *host) gate(action authgate.Action) error {
	return h.l.Do(func() {
		g := h.w.Gate()
		if g == nil {
			color.Yellow("no sign-in gate is showing")
			return
		}
		g.Dispatch(action)
	})
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{mu: &sync.Mutex{}, level: level})
}
