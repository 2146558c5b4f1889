// ABOUTME: Analytics event batch endpoint
// ABOUTME: Used as the fallback transport when no beacon is available

package api

import (
	"context"
	"net/http"
	"time"
)

// Event is one analytics record.
type Event struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
}

// EventBatch is the flush payload.
type EventBatch struct {
	WidgetID string  `json:"widget_id"`
	Events   []Event `json:"events"`
}

// SendEvents posts a batch of analytics events.
func (c *Client) SendEvents(ctx context.Context, batch EventBatch) error {
	return c.doJSON(ctx, http.MethodPost, PathEvents, nil, batch, nil)
}
