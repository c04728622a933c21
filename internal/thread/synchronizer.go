package thread

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/bus"
	"go.uber.org/zap"
)

// MessageStore is the message persistence boundary.
type MessageStore interface {
	QueryMessages(ctx context.Context, accessToken, a, b string) ([]backend.Message, error)
	InsertMessage(ctx context.Context, accessToken string, draft backend.MessageDraft) (*backend.Message, error)
}

// FeedSource is the live change-feed boundary. The feed is table-wide;
// relevance filtering happens here.
type FeedSource interface {
	SubscribeInserts(ctx context.Context, accessToken string) (<-chan backend.Message, func(), error)
}

// Image is a picked catalog image handed to SendImage.
type Image struct {
	URL   string
	Title string
}

// reconcileWindow bounds the timestamp distance within which a confirmed
// row may replace a provisional optimistic send with matching content.
const reconcileWindow = 2 * time.Minute

// Synchronizer maintains the in-memory thread for the active (self, peer)
// pair: initial fetch, live feed merge, optimistic send. The thread is
// mutated only by fetch completion, feed events, and sends, all serialized
// under one mutex; a generation counter invalidates callbacks from a
// superseded selection.
type Synchronizer struct {
	store   MessageStore
	feed    FeedSource
	bus     *bus.Bus
	logger  *zap.Logger
	machine *Machine

	mu      sync.Mutex
	self    backend.Profile
	token   string
	peer    *backend.Profile
	msgs    []backend.Message
	pending map[string]struct{} // provisional ids eligible for reconciliation
	gen     uint64
	unsub   func()
}

// NewSynchronizer creates an idle synchronizer.
func NewSynchronizer(store MessageStore, feed FeedSource, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		store:   store,
		feed:    feed,
		bus:     b,
		logger:  logger,
		machine: NewMachine(b),
		pending: make(map[string]struct{}),
	}
}

// Bind sets the authenticated identity the synchronizer acts as. Must be
// called after sign-in and before SelectPeer.
func (s *Synchronizer) Bind(self backend.Profile, accessToken string) {
	s.mu.Lock()
	s.self = self
	s.token = accessToken
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	return s.machine.Current()
}

// ActivePeer returns the selected peer, if any.
func (s *Synchronizer) ActivePeer() (backend.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return backend.Profile{}, false
	}
	return *s.peer, true
}

// Messages returns a snapshot of the thread, ordered by creation time.
func (s *Synchronizer) Messages() []backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// SelectPeer switches the active conversation. Selecting the already-active
// peer is a no-op: no fetch, no feed churn, no thread mutation. Otherwise
// the previous feed is detached first, the thread is cleared, and the
// initial fetch is issued; the feed for the new pair attaches no earlier
// than the fetch is issued, so no insert can fall in a gap.
func (s *Synchronizer) SelectPeer(ctx context.Context, peer backend.Profile) {
	s.mu.Lock()
	if s.peer != nil && s.peer.ID == peer.ID && s.machine.Current() != Idle {
		s.mu.Unlock()
		return
	}
	unsub := s.unsub
	s.unsub = nil
	s.gen++ // stale callbacks from the previous pair are dropped from here on
	gen := s.gen
	p := peer
	s.peer = &p
	s.msgs = nil
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	_ = s.machine.Transition(Loading)
	s.publishUpdated()

	go s.load(ctx, gen, peer)
}

// Reset tears down the active conversation (peer switch handled by
// SelectPeer; this covers sign-out and shutdown). The generation bump makes
// detachment effective immediately even though the unsubscribe itself is
// asynchronous.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.gen++
	s.peer = nil
	s.msgs = nil
	s.pending = make(map[string]struct{})
	s.self = backend.Profile{}
	s.token = ""
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	_ = s.machine.Transition(Idle)
	s.publishUpdated()
}

func (s *Synchronizer) load(ctx context.Context, gen uint64, peer backend.Profile) {
	s.mu.Lock()
	selfID := s.self.ID
	token := s.token
	s.mu.Unlock()

	type fetchResult struct {
		msgs []backend.Message
		err  error
	}
	fetchCh := make(chan fetchResult, 1)
	go func() {
		msgs, err := s.store.QueryMessages(ctx, token, selfID, peer.ID)
		fetchCh <- fetchResult{msgs, err}
	}()

	// Attach the feed while the fetch is in flight. Overlap is fine: any
	// insert landing in both is deduplicated by id on merge.
	events, unsub, err := s.feed.SubscribeInserts(ctx, token)
	if err != nil {
		s.logger.Warn("feed attach failed", zap.Error(err))
		s.bus.Publish(bus.Event{Kind: bus.KindFeedDropped, Timestamp: time.Now()})
	} else {
		s.bus.Publish(bus.Event{Kind: bus.KindFeedConnected, Timestamp: time.Now()})
	}

	res := <-fetchCh
	if res.err != nil {
		// Fetch errors render an empty thread; no automatic retry.
		s.logger.Warn("initial fetch failed", zap.Error(res.err))
		res.msgs = nil
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return // superseded while loading; result must not leak into the new pair
	}
	sortByCreatedAt(res.msgs)
	// Optimistic sends issued while loading survive the replace.
	provisional := s.provisionalLocked()
	s.msgs = res.msgs
	for _, pm := range provisional {
		if !s.containsIDLocked(pm.ID) {
			s.insertOrderedLocked(pm)
		}
	}
	s.unsub = unsub
	s.mu.Unlock()

	_ = s.machine.Transition(Live)
	s.publishUpdated()

	if events != nil {
		go s.consume(gen, events)
	}
}

func (s *Synchronizer) consume(gen uint64, events <-chan backend.Message) {
	for m := range events {
		s.applyFeed(gen, m)
	}
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.bus.Publish(bus.Event{Kind: bus.KindFeedDropped, Timestamp: time.Now()})
	}
}

// applyFeed merges one feed event: generation guard, relevance, novelty,
// reconciliation against a pending optimistic send, chronological insert.
func (s *Synchronizer) applyFeed(gen uint64, m backend.Message) {
	s.mu.Lock()
	if gen != s.gen || s.peer == nil {
		s.mu.Unlock()
		return
	}
	if !m.Between(s.self.ID, s.peer.ID) {
		s.mu.Unlock()
		return
	}
	if s.containsIDLocked(m.ID) {
		s.mu.Unlock()
		return
	}
	m.Status = backend.StatusSent
	if !s.reconcileLocked(m) {
		s.insertOrderedLocked(m)
	}
	s.mu.Unlock()
	s.publishUpdated()
}

// SendImage appends a provisional message immediately (optimistic insert)
// and persists it in the background. The store assigns the authoritative id,
// so the confirmation is matched back by content, not id.
func (s *Synchronizer) SendImage(ctx context.Context, img Image) error {
	s.mu.Lock()
	if s.peer == nil {
		s.mu.Unlock()
		return fmt.Errorf("no active conversation")
	}
	gen := s.gen
	provisional := backend.Message{
		ID:         uuid.New().String(),
		SenderID:   s.self.ID,
		ReceiverID: s.peer.ID,
		GifURL:     img.URL,
		GifTitle:   img.Title,
		CreatedAt:  time.Now().UTC(),
		Status:     backend.StatusSending,
	}
	s.insertOrderedLocked(provisional)
	s.pending[provisional.ID] = struct{}{}
	token := s.token
	s.mu.Unlock()

	s.publishUpdated() // visible before the persist resolves

	go s.persist(ctx, gen, token, provisional)
	return nil
}

func (s *Synchronizer) persist(ctx context.Context, gen uint64, token string, provisional backend.Message) {
	confirmed, err := s.store.InsertMessage(ctx, token, backend.MessageDraft{
		SenderID:   provisional.SenderID,
		ReceiverID: provisional.ReceiverID,
		GifURL:     provisional.GifURL,
		GifTitle:   provisional.GifTitle,
	})

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return // conversation discarded while the persist was in flight
	}
	if err != nil {
		// Provisional message stays visible, marked failed. No retry.
		s.markStatusLocked(provisional.ID, backend.StatusFailed)
		s.mu.Unlock()
		s.logger.Warn("message persist failed",
			zap.String("client_msg_id", provisional.ID), zap.Error(err))
		s.publishUpdated()
		return
	}

	if s.containsIDLocked(confirmed.ID) {
		// The feed echo arrived first and was already merged; the
		// provisional entry, if still present, is now redundant.
		s.removeLocked(provisional.ID)
		delete(s.pending, provisional.ID)
	} else if _, ok := s.pending[provisional.ID]; ok {
		s.removeLocked(provisional.ID)
		delete(s.pending, provisional.ID)
		c := *confirmed
		c.Status = backend.StatusSent
		s.insertOrderedLocked(c)
	}
	s.mu.Unlock()

	s.logger.Info("message sent",
		zap.String("client_msg_id", provisional.ID),
		zap.String("server_msg_id", confirmed.ID))
	s.publishUpdated()
}

// reconcileLocked tries to match a confirmed row against a pending
// optimistic entry by content: same sender, receiver, and gif URL, with
// timestamps within the reconcile window. On match the provisional entry is
// replaced by the authoritative row.
func (s *Synchronizer) reconcileLocked(confirmed backend.Message) bool {
	for _, m := range s.msgs {
		if _, ok := s.pending[m.ID]; !ok {
			continue
		}
		if m.SenderID != confirmed.SenderID || m.ReceiverID != confirmed.ReceiverID {
			continue
		}
		if m.GifURL != confirmed.GifURL {
			continue
		}
		delta := confirmed.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > reconcileWindow {
			continue
		}
		s.removeLocked(m.ID)
		delete(s.pending, m.ID)
		s.insertOrderedLocked(confirmed)
		return true
	}
	return false
}

func (s *Synchronizer) provisionalLocked() []backend.Message {
	var out []backend.Message
	for _, m := range s.msgs {
		if _, ok := s.pending[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Synchronizer) containsIDLocked(id string) bool {
	for _, m := range s.msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// insertOrderedLocked inserts keeping the thread non-decreasing by
// created_at. The common case is an append.
func (s *Synchronizer) insertOrderedLocked(m backend.Message) {
	i := len(s.msgs)
	for i > 0 && s.msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	s.msgs = append(s.msgs, backend.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = m
}

func (s *Synchronizer) removeLocked(id string) {
	for i, m := range s.msgs {
		if m.ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return
		}
	}
}

func (s *Synchronizer) markStatusLocked(id, status string) {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Status = status
			return
		}
	}
}

func (s *Synchronizer) publishUpdated() {
	s.bus.Publish(bus.Event{Kind: bus.KindThreadUpdated, Timestamp: time.Now()})
}

func sortByCreatedAt(msgs []backend.Message) {
	// The store already orders by created_at; keep the invariant locally.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
