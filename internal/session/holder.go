package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/bus"
	"go.uber.org/zap"
)

// AuthAPI is the slice of the backend the holder depends on.
type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (*backend.Session, error)
	SignUp(ctx context.Context, email, password, username string) (*backend.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*backend.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetProfile(ctx context.Context, accessToken, userID string) (*backend.Profile, error)
}

// Holder tracks the authenticated identity and its profile. It is the
// single source of "who am I" for the rest of the app and publishes
// session.signed_in / session.signed_out so dependent state (selected peer,
// thread) can be torn down.
type Holder struct {
	mu        sync.RWMutex
	api       AuthAPI
	bus       *bus.Bus
	logger    *zap.Logger
	tokenPath string

	session *backend.Session
	profile *backend.Profile
}

// NewHolder creates a session holder.
func NewHolder(api AuthAPI, b *bus.Bus, logger *zap.Logger, tokenPath string) *Holder {
	return &Holder{
		api:       api,
		bus:       b,
		logger:    logger,
		tokenPath: tokenPath,
	}
}

// Recover attempts to restore a previous session from the stored refresh
// token. Any failure, including profile resolution, fails open to the
// unauthenticated state. Returns whether a session was established.
func (h *Holder) Recover(ctx context.Context) bool {
	token, err := LoadToken(h.tokenPath)
	if err != nil {
		h.logger.Warn("could not read stored token", zap.Error(err))
		return false
	}
	if token == "" {
		return false
	}

	sess, err := h.api.RefreshSession(ctx, token)
	if err != nil {
		h.logger.Warn("session recovery failed", zap.Error(err))
		return false
	}
	if err := h.establish(ctx, sess); err != nil {
		h.logger.Warn("profile resolution failed, staying signed out", zap.Error(err))
		return false
	}
	return true
}

// SignIn authenticates with email and password. Auth errors are returned
// verbatim for display; profile resolution failure fails open and leaves the
// holder unauthenticated without an error.
func (h *Holder) SignIn(ctx context.Context, email, password string) error {
	sess, err := h.api.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	if err := h.establish(ctx, sess); err != nil {
		h.logger.Warn("profile resolution failed after sign-in", zap.Error(err))
	}
	return nil
}

// SignUp registers a new account. Username is required.
func (h *Holder) SignUp(ctx context.Context, email, password, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	sess, err := h.api.SignUp(ctx, email, password, username)
	if err != nil {
		return err
	}
	if err := h.establish(ctx, sess); err != nil {
		h.logger.Warn("profile resolution failed after sign-up", zap.Error(err))
	}
	return nil
}

// establish resolves the session to a profile and, on success, makes it
// current, persists the refresh token, and announces the sign-in.
func (h *Holder) establish(ctx context.Context, sess *backend.Session) error {
	profile, err := h.api.GetProfile(ctx, sess.AccessToken, sess.UserID)
	if err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("no profile for user %s", sess.UserID)
	}
	if profile.Email == "" {
		profile.Email = sess.Email
	}

	h.mu.Lock()
	h.session = sess
	h.profile = profile
	h.mu.Unlock()

	if err := SaveToken(h.tokenPath, sess.RefreshToken); err != nil {
		h.logger.Warn("could not persist session token", zap.Error(err))
	}

	h.logger.Info("signed in", zap.String("user_id", profile.ID), zap.String("username", profile.Username))
	h.bus.Publish(bus.Event{
		Kind:      bus.KindSessionSignedIn,
		Timestamp: time.Now(),
		Payload:   *profile,
	})
	return nil
}

// SignOut revokes the session (best effort), clears the stored token, and
// announces the sign-out so dependent state is discarded.
func (h *Holder) SignOut(ctx context.Context) {
	h.mu.Lock()
	sess := h.session
	h.session = nil
	h.profile = nil
	h.mu.Unlock()

	if sess != nil {
		if err := h.api.SignOut(ctx, sess.AccessToken); err != nil {
			h.logger.Warn("server-side sign-out failed", zap.Error(err))
		}
	}
	if err := ClearToken(h.tokenPath); err != nil {
		h.logger.Warn("could not clear stored token", zap.Error(err))
	}

	h.logger.Info("signed out")
	h.bus.Publish(bus.Event{Kind: bus.KindSessionSignedOut, Timestamp: time.Now()})
}

// Current returns the authenticated profile, if any.
func (h *Holder) Current() (backend.Profile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.profile == nil {
		return backend.Profile{}, false
	}
	return *h.profile, true
}

// AccessToken returns the current access token, or empty when signed out.
func (h *Holder) AccessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return ""
	}
	return h.session.AccessToken
}

// Authenticated reports whether a session and profile are established.
func (h *Holder) Authenticated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session != nil && h.profile != nil
}
