package backend

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// ErrNoSession is returned when a session cannot be recovered.
var ErrNoSession = errors.New("no session")

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r *tokenResponse) toSession() (*Session, error) {
	if r.AccessToken == "" || r.User.ID == "" {
		return nil, ErrNoSession
	}
	return &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(r.ExpiresIn) * time.Second),
		UserID:       r.User.ID,
		Email:        r.User.Email,
	}, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	query := url.Values{}
	query.Set("grant_type", "password")
	var resp tokenResponse
	err := c.doJSON(ctx, "POST", "/auth/v1/token", query, "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	return resp.toSession()
}

// SignUp registers a new account with a display username.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*Session, error) {
	var resp tokenResponse
	err := c.doJSON(ctx, "POST", "/auth/v1/signup", nil, "", map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"username": username},
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	return resp.toSession()
}

// RefreshSession redeems a refresh token for a fresh session. This is the
// session-recovery path on startup.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	query := url.Values{}
	query.Set("grant_type", "refresh_token")
	var resp tokenResponse
	err := c.doJSON(ctx, "POST", "/auth/v1/token", query, "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	return resp.toSession()
}

// SignOut revokes the session server-side. Best effort; callers clear local
// state regardless of the result.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.doJSON(ctx, "POST", "/auth/v1/logout", nil, accessToken, nil, nil, nil)
}
