package thread

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/bus"
	"go.uber.org/zap"
)

// fakeStore serves a fixed history and records calls.
type fakeStore struct {
	mu          sync.Mutex
	history     []backend.Message
	queryErr    error
	queryDelay  time.Duration
	delayPeer   string // only delay queries involving this peer
	insertErr   error
	insertDelay time.Duration
	insertID    string // server id assigned to the next insert
	queryCalls  int
	insertCalls int
}

func (f *fakeStore) QueryMessages(_ context.Context, _ string, a, b string) ([]backend.Message, error) {
	f.mu.Lock()
	f.queryCalls++
	delay := f.queryDelay
	if f.delayPeer != "" && a != f.delayPeer && b != f.delayPeer {
		delay = 0
	}
	err := f.queryErr
	var out []backend.Message
	for _, m := range f.history {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, _ string, draft backend.MessageDraft) (*backend.Message, error) {
	f.mu.Lock()
	f.insertCalls++
	delay := f.insertDelay
	err := f.insertErr
	id := f.insertID
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = fmt.Sprintf("srv-%d", f.insertCalls)
	}
	m := backend.Message{
		ID:         id,
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		GifURL:     draft.GifURL,
		GifTitle:   draft.GifTitle,
		CreatedAt:  time.Now().UTC(),
	}
	f.mu.Lock()
	f.history = append(f.history, m)
	f.mu.Unlock()
	return &m, nil
}

// fakeFeed hands out an in-memory channel per subscription.
type fakeFeed struct {
	mu     sync.Mutex
	ch     chan backend.Message
	err    error
	subs   int
	unsubs int
}

func (f *fakeFeed) SubscribeInserts(_ context.Context, _ string) (<-chan backend.Message, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	ch := make(chan backend.Message, 16)
	f.ch = ch
	f.subs++
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			f.unsubs++
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (f *fakeFeed) emit(m backend.Message) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- m
}

var (
	alice = backend.Profile{ID: "u-alice", Username: "alice"}
	bob   = backend.Profile{ID: "u-bob", Username: "bob"}
	carol = backend.Profile{ID: "u-carol", Username: "carol"}
)

func msg(id, from, to, url string, at time.Time) backend.Message {
	return backend.Message{ID: id, SenderID: from, ReceiverID: to, GifURL: url, CreatedAt: at}
}

func newTestSynchronizer(store *fakeStore, feed *fakeFeed) (*Synchronizer, *bus.Bus) {
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	s := NewSynchronizer(store, feed, b, logger)
	s.Bind(alice, "token")
	return s, b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitLive(t *testing.T, s *Synchronizer) {
	t.Helper()
	waitFor(t, "live state", func() bool { return s.State() == Live })
}

func TestSelectPeerLoadsPairHistory(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	store := &fakeStore{history: []backend.Message{
		msg("m2", bob.ID, alice.ID, "https://g/2.gif", base.Add(2*time.Minute)),
		msg("m1", alice.ID, bob.ID, "https://g/1.gif", base.Add(time.Minute)),
		msg("m3", alice.ID, carol.ID, "https://g/3.gif", base.Add(3*time.Minute)),
	}}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (carol's excluded)", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = [%s %s], want [m1 m2]", msgs[0].ID, msgs[1].ID)
	}
}

func TestFeedInsertMergesAndDeduplicates(t *testing.T) {
	store := &fakeStore{}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	incoming := msg("m-new", bob.ID, alice.ID, "https://g/new.gif", time.Now().UTC())
	feed.emit(incoming)
	feed.emit(incoming) // duplicate delivery
	feed.emit(msg("m-other", carol.ID, alice.ID, "https://g/x.gif", time.Now().UTC()))

	waitFor(t, "feed merge", func() bool { return len(s.Messages()) >= 1 })
	time.Sleep(100 * time.Millisecond)

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (dedup by id, carol's filtered)", len(msgs))
	}
	if msgs[0].Status != backend.StatusSent {
		t.Errorf("status = %q, want %q", msgs[0].Status, backend.StatusSent)
	}
}

func TestFeedInsertKeepsChronologicalOrder(t *testing.T) {
	base := time.Now().UTC()
	store := &fakeStore{history: []backend.Message{
		msg("m1", alice.ID, bob.ID, "https://g/1.gif", base.Add(-time.Minute)),
		msg("m3", bob.ID, alice.ID, "https://g/3.gif", base.Add(time.Minute)),
	}}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	// Arrives late but belongs in the middle.
	feed.emit(msg("m2", bob.ID, alice.ID, "https://g/2.gif", base))

	waitFor(t, "three messages", func() bool { return len(s.Messages()) == 3 })
	msgs := s.Messages()
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" || msgs[2].ID != "m3" {
		t.Errorf("order = [%s %s %s], want [m1 m2 m3]",
			msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestSelectSamePeerIsNoOp(t *testing.T) {
	store := &fakeStore{}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)
	s.SelectPeer(context.Background(), bob)
	time.Sleep(100 * time.Millisecond)

	store.mu.Lock()
	queries := store.queryCalls
	store.mu.Unlock()
	if queries != 1 {
		t.Errorf("got %d history fetches, want 1 (reselect is a no-op)", queries)
	}
	feed.mu.Lock()
	subs := feed.subs
	feed.mu.Unlock()
	if subs != 1 {
		t.Errorf("got %d feed subscriptions, want 1", subs)
	}
}

func TestPeerSwitchDiscardsStaleFetch(t *testing.T) {
	base := time.Now().UTC()
	store := &fakeStore{
		history: []backend.Message{
			msg("mb", alice.ID, bob.ID, "https://g/b.gif", base),
			msg("mc", alice.ID, carol.ID, "https://g/c.gif", base),
		},
		queryDelay: 300 * time.Millisecond,
		delayPeer:  bob.ID,
	}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	time.Sleep(50 * time.Millisecond)
	s.SelectPeer(context.Background(), carol)
	waitLive(t, s)

	// Give the slow fetch for bob time to resolve and (correctly) be dropped.
	time.Sleep(500 * time.Millisecond)

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "mc" {
		t.Errorf("message = %s, want mc (bob's history must not leak into carol's thread)", msgs[0].ID)
	}
}

func TestSendImageOptimisticThenConfirmed(t *testing.T) {
	store := &fakeStore{insertDelay: 200 * time.Millisecond}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	if err := s.SendImage(context.Background(), Image{URL: "https://g/send.gif", Title: "hi"}); err != nil {
		t.Fatal(err)
	}

	// Visible immediately, before the insert resolves.
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (optimistic insert)", len(msgs))
	}
	if msgs[0].Status != backend.StatusSending {
		t.Errorf("status = %q, want %q", msgs[0].Status, backend.StatusSending)
	}

	waitFor(t, "confirmation", func() bool {
		m := s.Messages()
		return len(m) == 1 && m[0].Status == backend.StatusSent
	})
	msgs = s.Messages()
	if msgs[0].ID != "srv-1" {
		t.Errorf("id = %q, want server-assigned srv-1", msgs[0].ID)
	}
}

func TestFeedEchoReconcilesPendingSend(t *testing.T) {
	store := &fakeStore{insertDelay: 400 * time.Millisecond, insertID: "srv-echo"}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	if err := s.SendImage(context.Background(), Image{URL: "https://g/echo.gif"}); err != nil {
		t.Fatal(err)
	}

	// The change feed echoes the committed row before the insert returns.
	feed.emit(msg("srv-echo", alice.ID, bob.ID, "https://g/echo.gif", time.Now().UTC()))

	waitFor(t, "reconciliation", func() bool {
		m := s.Messages()
		return len(m) == 1 && m[0].ID == "srv-echo"
	})
	if got := s.Messages()[0].Status; got != backend.StatusSent {
		t.Errorf("status = %q, want %q", got, backend.StatusSent)
	}

	// After the insert resolves nothing duplicates.
	time.Sleep(500 * time.Millisecond)
	if n := len(s.Messages()); n != 1 {
		t.Errorf("got %d messages, want 1 (no duplicate bubble after echo)", n)
	}
}

func TestSendFailureMarksMessageFailed(t *testing.T) {
	store := &fakeStore{insertErr: fmt.Errorf("row-level security violation")}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	if err := s.SendImage(context.Background(), Image{URL: "https://g/fail.gif"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "failure mark", func() bool {
		m := s.Messages()
		return len(m) == 1 && m[0].Status == backend.StatusFailed
	})
}

func TestSendWithoutPeerErrors(t *testing.T) {
	s, _ := newTestSynchronizer(&fakeStore{}, &fakeFeed{})
	if err := s.SendImage(context.Background(), Image{URL: "https://g/x.gif"}); err == nil {
		t.Fatal("got nil error, want error with no active conversation")
	}
}

func TestResetTearsDownThread(t *testing.T) {
	store := &fakeStore{history: []backend.Message{
		msg("m1", alice.ID, bob.ID, "https://g/1.gif", time.Now().UTC()),
	}}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	s.Reset()

	if got := s.State(); got != Idle {
		t.Errorf("state = %s, want %s", got, Idle)
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("got %d messages, want 0 after reset", n)
	}
	waitFor(t, "feed detach", func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.unsubs == 1
	})
}

func TestPeerSwitchDetachesPreviousFeed(t *testing.T) {
	store := &fakeStore{}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)
	s.SelectPeer(context.Background(), carol)
	waitLive(t, s)

	waitFor(t, "previous feed detach", func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.unsubs == 1 && feed.subs == 2
	})
}

func TestFetchErrorRendersEmptyThread(t *testing.T) {
	store := &fakeStore{queryErr: fmt.Errorf("backend unavailable")}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	if n := len(s.Messages()); n != 0 {
		t.Errorf("got %d messages, want 0 on fetch error", n)
	}

	// The feed still works; a later insert shows up.
	feed.emit(msg("m-late", bob.ID, alice.ID, "https://g/late.gif", time.Now().UTC()))
	waitFor(t, "feed insert after fetch error", func() bool {
		return len(s.Messages()) == 1
	})
}

func TestFeedAttachFailureStillGoesLive(t *testing.T) {
	store := &fakeStore{history: []backend.Message{
		msg("m1", alice.ID, bob.ID, "https://g/1.gif", time.Now().UTC()),
	}}
	feed := &fakeFeed{err: fmt.Errorf("websocket refused")}
	s, b := newTestSynchronizer(store, feed)

	ch, unsub := b.Subscribe(bus.KindFeedDropped, 4)
	defer unsub()

	s.SelectPeer(context.Background(), bob)
	waitLive(t, s)

	if n := len(s.Messages()); n != 1 {
		t.Errorf("got %d messages, want 1 (history despite dead feed)", n)
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed dropped event")
	}
}

func TestOptimisticSendSurvivesLoadReplace(t *testing.T) {
	store := &fakeStore{
		queryDelay:  300 * time.Millisecond,
		insertDelay: time.Second,
	}
	feed := &fakeFeed{}
	s, _ := newTestSynchronizer(store, feed)

	s.SelectPeer(context.Background(), bob)
	time.Sleep(50 * time.Millisecond)

	// Send while the initial fetch is still in flight.
	if err := s.SendImage(context.Background(), Image{URL: "https://g/early.gif"}); err != nil {
		t.Fatal(err)
	}

	waitLive(t, s)
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (provisional survives fetch merge)", len(msgs))
	}
	if msgs[0].Status != backend.StatusSending {
		t.Errorf("status = %q, want %q", msgs[0].Status, backend.StatusSending)
	}
}
