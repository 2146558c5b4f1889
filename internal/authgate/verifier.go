// ABOUTME: Session token lookup and verification for premium tabs and forms
// ABOUTME: Expired JWTs are rejected locally; everything else asks the backend

package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/glance-widget/internal/api"
	"github.com/2389/glance-widget/internal/storage"
)

// Errors
var (
	ErrNoSession = errors.New("no session token")
	ErrExpired   = errors.New("session token expired")
)

// SessionChecker verifies a token with the backend.
type SessionChecker interface {
	VerifySession(ctx context.Context, workspaceID, token string) (*api.User, error)
}

// Verifier resolves the stored session token into a user.
type Verifier struct {
	client      SessionChecker
	store       storage.Storage
	workspaceID string
	now         func() time.Time
	logger      *slog.Logger
}

// NewVerifier creates a verifier for workspaceID's token in store.
func NewVerifier(client SessionChecker, store storage.Storage, workspaceID string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		client:      client,
		store:       store,
		workspaceID: workspaceID,
		now:         time.Now,
		logger:      logger.With("component", "authgate"),
	}
}

// Token returns the stored session token, or "".
func (v *Verifier) Token() string {
	return storage.Lookup(v.store, storage.TokenKey(v.workspaceID))
}

// SignOut forgets the stored token.
func (v *Verifier) SignOut() error {
	if err := v.store.Delete(storage.TokenKey(v.workspaceID)); err != nil {
		return fmt.Errorf("removing session token: %w", err)
	}
	return nil
}

// Current verifies the stored token.
func (v *Verifier) Current(ctx context.Context) (*api.User, string, error) {
	token := v.Token()
	user, err := v.Check(ctx, token)
	return user, token, err
}

// Check verifies token. It never calls the backend for an empty token or a
// JWT whose exp claim has passed.
func (v *Verifier) Check(ctx context.Context, token string) (*api.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	if expired(token, v.now()) {
		v.logger.Debug("stored session token expired")
		return nil, ErrExpired
	}
	user, err := v.client.VerifySession(ctx, v.workspaceID, token)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// expired reports whether token is a JWT past its exp claim. Opaque tokens
// and tokens without exp are left to the server.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
