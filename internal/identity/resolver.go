package identity

import (
	"context"
	"fmt"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"

	"github.com/google/uuid"
)

// Keys under which the browser context persists its lightweight state. Only
// the session key participates in the conversation correctness model.
const (
	SessionKey      = "anonymous_session_id"
	AuthModeKey     = "auth_modal_mode"
	DefaultAuthMode = "signin"
)

// Session is the identity provider's view of an authenticated user.
type Session struct {
	UserID string
	Email  string
}

// AuthProvider exposes the current authenticated session, if any.
type AuthProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
}

// SessionStore persists per-browser-context keys across visits. Get returns
// ("", nil) when the key is absent.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Resolver produces the active identity for a browser context: the
// authenticated user when a session exists, otherwise a generated anonymous
// session id that stays stable across visits until authentication occurs.
type Resolver struct {
	auth  AuthProvider
	store SessionStore
}

func NewResolver(auth AuthProvider, store SessionStore) *Resolver {
	return &Resolver{auth: auth, store: store}
}

func (r *Resolver) Resolve(ctx context.Context) (domain.Identity, error) {
	session, err := r.auth.CurrentSession(ctx)
	if err != nil {
		return domain.Identity{}, &chat_errors.AuthError{Op: "resolve", Cause: err}
	}
	if session != nil {
		return domain.AuthenticatedIdentity(session.UserID), nil
	}

	sessionID, err := r.store.Get(ctx, SessionKey)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read anonymous session: %w", err)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		if err := r.store.Set(ctx, SessionKey, sessionID); err != nil {
			return domain.Identity{}, fmt.Errorf("persist anonymous session: %w", err)
		}
	}
	return domain.AnonymousIdentity(sessionID), nil
}

// LastAuthMode returns the persisted auth-modal preference. It is UX state
// only and defaults rather than errors.
func (r *Resolver) LastAuthMode(ctx context.Context) string {
	mode, err := r.store.Get(ctx, AuthModeKey)
	if err != nil || mode == "" {
		return DefaultAuthMode
	}
	return mode
}

func (r *Resolver) SetLastAuthMode(ctx context.Context, mode string) {
	_ = r.store.Set(ctx, AuthModeKey, mode)
}
