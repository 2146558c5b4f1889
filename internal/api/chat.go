// ABOUTME: Chat endpoints: streamed completion and best-effort history persistence
// ABOUTME: StreamChat returns an SSE reader over the text/event-stream response body

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/2389/glance-widget/internal/sse"
)

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the full history plus the tab's configuration.
type ChatRequest struct {
	WidgetID         string    `json:"widget_id"`
	TabName          string    `json:"tab_name"`
	Messages         []Message `json:"messages"`
	Directive        string    `json:"directive,omitempty"`
	KnowledgeSources []string  `json:"knowledge_sources,omitempty"`
	SessionID        string    `json:"chat_session_id,omitempty"`
}

// Stream is an open chat response.
type Stream struct {
	*sse.Reader
	body io.ReadCloser
}

// Close releases the response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// StreamChat opens a streamed completion. The stream lives until ctx is
// cancelled or the body is fully read; the client timeout does not apply.
func (c *Client) StreamChat(ctx context.Context, in ChatRequest, token string) (*Stream, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(PathChat), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &Stream{Reader: sse.NewReader(resp.Body), body: resp.Body}, nil
}

type chatSessionAction struct {
	Action    string    `json:"action"`
	WidgetID  string    `json:"widget_id,omitempty"`
	TabName   string    `json:"tab_name,omitempty"`
	SessionID string    `json:"chat_session_id,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"chat_session_id"`
}

// CreateChatSession creates a remote history session and returns its id.
func (c *Client) CreateChatSession(ctx context.Context, widgetID, tabName, token string) (string, error) {
	var out createSessionResponse
	in := chatSessionAction{Action: "create_session", WidgetID: widgetID, TabName: tabName}
	if err := c.doJSON(ctx, http.MethodPost, PathChatSessions, bearer(token), in, &out); err != nil {
		return "", fmt.Errorf("creating chat session: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("creating chat session: empty session id")
	}
	return out.SessionID, nil
}

// AddChatMessages appends messages to an existing history session.
func (c *Client) AddChatMessages(ctx context.Context, sessionID, token string, msgs []Message) error {
	in := chatSessionAction{Action: "add_messages", SessionID: sessionID, Messages: msgs}
	if err := c.doJSON(ctx, http.MethodPost, PathChatSessions, bearer(token), in, nil); err != nil {
		return fmt.Errorf("adding chat messages: %w", err)
	}
	return nil
}
