package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	messagesTopic     = "realtime:public:messages"
	heartbeatTopic    = "phoenix"
	heartbeatInterval = 30 * time.Second
)

// phxFrame is a Phoenix channel frame as used by the realtime endpoint.
type phxFrame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type insertPayload struct {
	Type   string      `json:"type"`
	Record wireMessage `json:"record"`
}

type wireMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	GifURL     string `json:"gif_url"`
	GifTitle   string `json:"gif_title"`
	CreatedAt  string `json:"created_at"`
}

// timestampLayouts covers the store's created_at encodings; rows written
// without an explicit zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (w wireMessage) toMessage() (Message, error) {
	ts, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         w.ID,
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		GifURL:     w.GifURL,
		GifTitle:   w.GifTitle,
		CreatedAt:  ts,
		Status:     StatusSent,
	}, nil
}

// Feed is the realtime change-feed client. Each SubscribeInserts call opens
// its own websocket so cancellation tears down exactly one subscription.
type Feed struct {
	baseURL string
	anonKey string
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewFeed creates a realtime feed client sharing the backend's endpoint.
func NewFeed(c *Client, logger *zap.Logger) *Feed {
	return &Feed{
		baseURL: c.BaseURL(),
		anonKey: c.AnonKey(),
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

func (f *Feed) websocketURL() (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = u.Path + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", f.anonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// feedConn serializes writes; gorilla connections allow one concurrent writer.
type feedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (fc *feedConn) writeJSON(v any) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.conn.WriteJSON(v)
}

// SubscribeInserts connects to the realtime endpoint, joins the messages
// insert channel, and streams newly inserted rows. The feed is table-wide;
// relevance filtering belongs to the consumer. The returned cancel func sends
// a leave frame and closes the socket; the message channel is closed once the
// read loop exits, so ranging over it terminates after cancellation.
func (f *Feed) SubscribeInserts(ctx context.Context, accessToken string) (<-chan Message, func(), error) {
	wsURL, err := f.websocketURL()
	if err != nil {
		return nil, nil, err
	}

	conn, _, err := f.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial realtime: %w", err)
	}
	fc := &feedConn{conn: conn}

	join := phxFrame{
		Topic:   messagesTopic,
		Event:   "phx_join",
		Payload: json.RawMessage(fmt.Sprintf(`{"user_token":%q}`, accessToken)),
		Ref:     "1",
	}
	if err := fc.writeJSON(join); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("join channel: %w", err)
	}

	out := make(chan Message, 64)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = fc.writeJSON(phxFrame{
				Topic:   messagesTopic,
				Event:   "phx_leave",
				Payload: json.RawMessage(`{}`),
				Ref:     "2",
			})
			_ = conn.Close()
		})
	}

	go f.heartbeatLoop(fc, done)
	go f.readLoop(fc, out, done)

	return out, cancel, nil
}

func (f *Feed) heartbeatLoop(fc *feedConn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ref := 10
	for {
		select {
		case <-ticker.C:
			frame := phxFrame{
				Topic:   heartbeatTopic,
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     fmt.Sprintf("%d", ref),
			}
			ref++
			if err := fc.writeJSON(frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (f *Feed) readLoop(fc *feedConn, out chan<- Message, done <-chan struct{}) {
	defer close(out)

	for {
		var frame phxFrame
		if err := fc.conn.ReadJSON(&frame); err != nil {
			select {
			case <-done:
			default:
				f.logger.Warn("realtime feed dropped", zap.Error(err))
			}
			return
		}

		if frame.Topic != messagesTopic || frame.Event != "INSERT" {
			continue
		}

		var payload insertPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			f.logger.Warn("malformed insert payload", zap.Error(err))
			continue
		}
		msg, err := payload.Record.toMessage()
		if err != nil {
			f.logger.Warn("unparseable insert record", zap.Error(err))
			continue
		}

		select {
		case out <- msg:
		case <-done:
			return
		}
	}
}
