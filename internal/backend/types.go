package backend

import "time"

// Session holds the tokens and identity returned by the auth service.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// Profile is a row of the profiles table.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Message send/delivery status, tracked client-side only.
const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message is a row of the messages table. Status is never sent to the
// store; it tracks the optimistic-send lifecycle locally.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	GifURL     string    `json:"gif_url"`
	GifTitle   string    `json:"gif_title"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"-"`
}

// Between reports whether the message belongs to the conversation
// between a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// MessageDraft is the payload for inserting a message. The store assigns
// the authoritative id and created_at.
type MessageDraft struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	GifURL     string `json:"gif_url"`
	GifTitle   string `json:"gif_title"`
}
