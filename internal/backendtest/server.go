// ABOUTME: In-process fake of the widget backend for tests
// ABOUTME: Serves config, SSE chat, chat sessions, uploads, forms, auth, and analytics

package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/widgetcfg"
)

// ValidCode is the one-time code the fake accepts.
const ValidCode = "123456"

var signingKey = []byte("backendtest-signing-key")

// Server is a fake widget backend. Exported fields may be set before the
// first request; use the accessor methods to read recorded state.
type Server struct {
	*httptest.Server

	// Config is served for any widget id matching Config.ID.
	Config widgetcfg.WidgetConfig
	// Deltas are streamed for every chat request.
	Deltas []string
	// DeltaDelay separates deltas.
	DeltaDelay time.Duration
	// ChatHandler replaces the default chat stream when set.
	ChatHandler func(w http.ResponseWriter, r *http.Request, req api.ChatRequest)
	// UploadGate, when non-nil, holds every PUT upload until it is closed.
	UploadGate chan struct{}
	// Fail maps a path to a status code returned instead of the normal response.
	Fail map[string]int

	mu           sync.Mutex
	counts       map[string]int
	chatRequests []api.ChatRequest
	sessions     map[string][]api.Message
	users        map[string]api.User
	tokens       map[string]api.User
	uploads      map[string]int
	uploadNames  map[string]string
	uploadHolds  map[string]chan struct{}
	uploadFails  map[string]bool
	verifyAbort  chan struct{}
	submissions  []map[string]string
	events       []api.Event
	codesSent    []string
}

// New starts a fake backend serving cfg.
func New(cfg widgetcfg.WidgetConfig) *Server {
	s := &Server{
		Config:   cfg,
		Deltas:   []string{"Hel", "lo!"},
		Fail:     make(map[string]int),
		counts:   make(map[string]int),
		sessions: make(map[string][]api.Message),
		users:    make(map[string]api.User),
		tokens:   make(map[string]api.User),
		uploads:  make(map[string]int),

		uploadNames: make(map[string]string),
		uploadHolds: make(map[string]chan struct{}),
		uploadFails: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/widget/{id}/config", s.handleConfig)
	mux.HandleFunc("POST "+api.PathChat, s.handleChat)
	mux.HandleFunc("POST "+api.PathChatSessions, s.handleChatSessions)
	mux.HandleFunc("POST "+api.PathUploadURL, s.handleUploadURL)
	mux.HandleFunc("PUT /upload/{key}", s.handleUpload)
	mux.HandleFunc("POST "+api.PathSubmitForm, s.handleSubmit)
	mux.HandleFunc("POST "+api.PathSendCode, s.handleSendCode)
	mux.HandleFunc("POST "+api.PathVerifyCode, s.handleVerifyCode)
	mux.HandleFunc("GET "+api.PathVerifySess, s.handleVerifySession)
	mux.HandleFunc("POST "+api.PathEvents, s.handleEvents)

	s.Server = httptest.NewServer(s.counting(mux))
	return s
}

func (s *Server) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts[r.URL.Path]++
		code := s.Fail[r.URL.Path]
		s.mu.Unlock()

		if code != 0 {
			http.Error(w, "forced failure", code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetFail forces path to answer with code; 0 clears it.
func (s *Server) SetFail(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.Fail, path)
		return
	}
	s.Fail[path] = code
}

// SetDeltas replaces the streamed chat deltas.
func (s *Server) SetDeltas(delay time.Duration, deltas ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deltas = deltas
	s.DeltaDelay = delay
}

// SetChatHandler replaces the default chat stream.
func (s *Server) SetChatHandler(h func(w http.ResponseWriter, r *http.Request, req api.ChatRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChatHandler = h
}

// HoldUploads makes every PUT upload wait until the returned release func
// is called.
func (s *Server) HoldUploads() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.UploadGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldUpload makes the PUT upload of files named name wait until the
// returned release func is called.
func (s *Server) HoldUpload(name string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.uploadHolds[name] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailUpload makes the PUT upload of files named name fail.
func (s *Server) FailUpload(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFails[name] = true
}

// BlockVerifySession makes session checks hang until the client gives up.
// The returned channel is closed when a blocked check is abandoned.
func (s *Server) BlockVerifySession() <-chan struct{} {
	abandoned := make(chan struct{})
	s.mu.Lock()
	s.verifyAbort = abandoned
	s.mu.Unlock()
	return abandoned
}

// AddUser registers a known account.
func (s *Server) AddUser(u api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	s.users[strings.ToLower(u.Email)] = u
}

// IssueToken creates a valid session token for u.
func (s *Server) IssueToken(u api.User) string {
	return s.issue(u, time.Hour)
}

// ExpiredToken creates a token whose exp claim is already in the past.
func (s *Server) ExpiredToken(u api.User) string {
	return s.issue(u, -time.Hour)
}

func (s *Server) issue(u api.User, ttl time.Duration) string {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	signed, err := tok.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("signing token: %v", err))
	}
	s.mu.Lock()
	s.tokens[signed] = u
	s.mu.Unlock()
	return signed
}

// Count returns how many requests hit path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[path]
}

// ConfigPath returns the config endpoint path for the served widget.
func (s *Server) ConfigPath() string {
	return fmt.Sprintf(api.PathConfig, s.Config.ID)
}

// ChatRequests returns the chat requests received so far.
func (s *Server) ChatRequests() []api.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ChatRequest(nil), s.chatRequests...)
}

// Sessions returns stored chat history by session id.
func (s *Server) Sessions() map[string][]api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]api.Message, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = append([]api.Message(nil), v...)
	}
	return out
}

// Uploads returns the byte count of each uploaded object.
func (s *Server) Uploads() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.uploads))
	for k, v := range s.uploads {
		out[k] = v
	}
	return out
}

// Submissions returns received form submissions as flat field maps.
func (s *Server) Submissions() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.submissions...)
}

// Events returns received analytics events.
func (s *Server) Events() []api.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Event(nil), s.events...)
}

// CodesSent returns the emails a code was sent to.
func (s *Server) CodesSent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codesSent...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != s.Config.ID {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.Config)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.chatRequests = append(s.chatRequests, req)
	handler := s.ChatHandler
	deltas, delay := s.Deltas, s.DeltaDelay
	s.mu.Unlock()

	if handler != nil {
		handler(w, r, req)
		return
	}
	StreamDeltas(w, r, deltas, delay)
}

// StreamDeltas writes deltas as SSE frames followed by [DONE]. It stops
// early when the client goes away.
func StreamDeltas(w http.ResponseWriter, r *http.Request, deltas []string, delay time.Duration) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for i, d := range deltas {
		if i > 0 && delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		payload, _ := json.Marshal(map[string]string{"content": d})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Action    string        `json:"action"`
		SessionID string        `json:"chat_session_id"`
		Messages  []api.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch in.Action {
	case "create_session":
		id := uuid.New().String()
		s.sessions[id] = nil
		writeJSON(w, map[string]string{"chat_session_id": id})
	case "add_messages":
		if _, ok := s.sessions[in.SessionID]; !ok {
			http.NotFound(w, r)
			return
		}
		s.sessions[in.SessionID] = append(s.sessions[in.SessionID], in.Messages...)
		writeJSON(w, map[string]bool{"ok": true})
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var in api.UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	key := uuid.New().String()
	s.mu.Lock()
	s.uploadNames[key] = in.FileName
	s.mu.Unlock()
	writeJSON(w, api.UploadTarget{
		UploadURL: s.URL + "/upload/" + key,
		FileURL:   s.URL + "/files/" + key + "/" + in.FileName,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	name := s.uploadNames[r.PathValue("key")]
	gates := []chan struct{}{s.UploadGate, s.uploadHolds[name]}
	s.mu.Unlock()
	for _, gate := range gates {
		if gate == nil {
			continue
		}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	fail := s.uploadFails[name]
	s.mu.Unlock()
	if fail {
		http.Error(w, "upload rejected", http.StatusInternalServerError)
		return
	}

	n, _ := io.Copy(io.Discard, r.Body)
	s.mu.Lock()
	s.uploads[r.PathValue("key")] = int(n)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	flat := make(map[string]string)
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	s.mu.Lock()
	s.submissions = append(s.submissions, flat)
	s.mu.Unlock()
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.codesSent = append(s.codesSent, in.Email)
	_, exists := s.users[strings.ToLower(in.Email)]
	s.mu.Unlock()
	writeJSON(w, api.SendCodeResponse{Exists: exists})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var in api.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if in.Code != ValidCode {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(in.Email)]
	if !ok {
		u = api.User{ID: uuid.New().String(), Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
		s.users[strings.ToLower(in.Email)] = u
	}
	s.mu.Unlock()

	writeJSON(w, api.VerifyCodeResponse{Token: s.IssueToken(u), User: u})
}

func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	abandoned := s.verifyAbort
	s.verifyAbort = nil
	s.mu.Unlock()
	if abandoned != nil {
		<-r.Context().Done()
		close(abandoned)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	s.mu.Lock()
	u, known := s.tokens[token]
	s.mu.Unlock()

	if err != nil || !known {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"valid": true, "user": u})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var batch api.EventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.events = append(s.events, batch.Events...)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
