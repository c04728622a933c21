package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// QueryMessages returns every message exchanged between a and b, in either
// direction, ordered by created_at ascending.
func (c *Client) QueryMessages(ctx context.Context, accessToken, a, b string) ([]Message, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("or", fmt.Sprintf(
		"(and(sender_id.eq.%s,receiver_id.eq.%s),and(sender_id.eq.%s,receiver_id.eq.%s))",
		a, b, b, a))
	query.Set("order", "created_at.asc")

	var rows []Message
	if err := c.doJSON(ctx, "GET", "/rest/v1/messages", query, accessToken, nil, &rows, nil); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertMessage persists a draft and returns the stored row with the
// store-assigned id and timestamp.
func (c *Client) InsertMessage(ctx context.Context, accessToken string, draft MessageDraft) (*Message, error) {
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")

	var rows []Message
	if err := c.doJSON(ctx, "POST", "/rest/v1/messages", nil, accessToken, draft, &rows, headers); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert message: store returned no row")
	}
	m := rows[0]
	return &m, nil
}
