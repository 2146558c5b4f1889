// ABOUTME: Widget auth endpoints: one-time code send/verify and session verification
// ABOUTME: Auth policy lives server-side; the client only relays codes and tokens

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// User is the identity behind a widget session token.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SendCodeResponse tells the gate which step comes next.
type SendCodeResponse struct {
	Exists bool `json:"exists"`
}

// SendCode requests a one-time code for email.
func (c *Client) SendCode(ctx context.Context, workspaceID, email string) (*SendCodeResponse, error) {
	in := map[string]string{"workspace_id": workspaceID, "email": email}
	var out SendCodeResponse
	if err := c.doJSON(ctx, http.MethodPost, PathSendCode, nil, in, &out); err != nil {
		return nil, fmt.Errorf("sending code: %w", err)
	}
	return &out, nil
}

// VerifyCodeRequest verifies a code, creating the account when names are set.
type VerifyCodeRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Email       string `json:"email"`
	Code        string `json:"code"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

// VerifyCodeResponse carries the new session.
type VerifyCodeResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// VerifyCode exchanges a one-time code for a session token.
func (c *Client) VerifyCode(ctx context.Context, in VerifyCodeRequest) (*VerifyCodeResponse, error) {
	var out VerifyCodeResponse
	if err := c.doJSON(ctx, http.MethodPost, PathVerifyCode, nil, in, &out); err != nil {
		return nil, fmt.Errorf("verifying code: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("verifying code: %w", ErrUnauthorized)
	}
	return &out, nil
}

type verifySessionResponse struct {
	Valid bool `json:"valid"`
	User  User `json:"user"`
}

// VerifySession checks a stored token. Invalid tokens yield ErrUnauthorized.
func (c *Client) VerifySession(ctx context.Context, workspaceID, token string) (*User, error) {
	var out verifySessionResponse
	path := PathVerifySess + "?" + url.Values{"workspace_id": {workspaceID}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, bearer(token), nil, &out); err != nil {
		return nil, fmt.Errorf("verifying session: %w", err)
	}
	if !out.Valid {
		return nil, fmt.Errorf("verifying session: %w", ErrUnauthorized)
	}
	return &out.User, nil
}
