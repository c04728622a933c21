package bus

import "time"

// Event kinds published across the app. Subscribers filter by namespace
// prefix, e.g. "thread." receives every thread event.
const (
	KindSessionSignedIn  = "session.signed_in"
	KindSessionSignedOut = "session.signed_out"
	KindThreadUpdated    = "thread.updated"
	KindThreadState      = "thread.state_changed"
	KindFeedConnected    = "feed.connected"
	KindFeedDropped      = "feed.dropped"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
