package backend

import (
	"context"
	"net/url"
)

// GetProfile fetches a single profile row by user id. Returns nil when the
// row does not exist.
func (c *Client) GetProfile(ctx context.Context, accessToken, userID string) (*Profile, error) {
	query := url.Values{}
	query.Set("select", "id,username,email")
	query.Set("id", "eq."+userID)
	query.Set("limit", "1")

	var rows []Profile
	if err := c.doJSON(ctx, "GET", "/rest/v1/profiles", query, accessToken, nil, &rows, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p := rows[0]
	return &p, nil
}

// ListProfiles returns all profiles ordered by username ascending.
func (c *Client) ListProfiles(ctx context.Context, accessToken string) ([]Profile, error) {
	query := url.Values{}
	query.Set("select", "id,username,email")
	query.Set("order", "username.asc")

	var rows []Profile
	if err := c.doJSON(ctx, "GET", "/rest/v1/profiles", query, accessToken, nil, &rows, nil); err != nil {
		return nil, err
	}
	return rows, nil
}
