package picker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mrodrigues/memegram/internal/giphy"
	"go.uber.org/zap"
)

// fakeCatalog returns canned results, with optional per-term delays to
// simulate slow responses.
type fakeCatalog struct {
	mu       sync.Mutex
	trending []giphy.ImageResult
	results  map[string][]giphy.ImageResult
	delays   map[string]time.Duration
	err      error
	searches []string
}

func (f *fakeCatalog) Trending(_ context.Context, _ int) ([]giphy.ImageResult, error) {
	f.mu.Lock()
	err := f.err
	out := f.trending
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeCatalog) Search(_ context.Context, term string, _ int) ([]giphy.ImageResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	delay := f.delays[term]
	err := f.err
	out := f.results[term]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// collector records delivered result sets.
type collector struct {
	mu   sync.Mutex
	sets []Results
}

func (c *collector) deliver(res Results) {
	c.mu.Lock()
	c.sets = append(c.sets, res)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Results, len(c.sets))
	copy(out, c.sets)
	return out
}

func (c *collector) waitForSets(t *testing.T, n int) []Results {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sets := c.snapshot(); len(sets) >= n {
			return sets
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d result sets (got %d)", n, len(c.snapshot()))
	return nil
}

func newTestSearcher(catalog Catalog, col *collector) *Searcher {
	logger, _ := zap.NewDevelopment()
	s := NewSearcher(context.Background(), catalog, logger, col.deliver)
	s.debounce = 50 * time.Millisecond
	return s
}

func TestLoadTrendingDeliversImmediately(t *testing.T) {
	catalog := &fakeCatalog{trending: []giphy.ImageResult{{ID: "t1"}, {ID: "t2"}}}
	col := &collector{}
	s := newTestSearcher(catalog, col)
	defer s.Close()

	s.LoadTrending()

	sets := col.waitForSets(t, 1)
	if sets[0].Term != "" {
		t.Errorf("term = %q, want empty (trending)", sets[0].Term)
	}
	if len(sets[0].Images) != 2 {
		t.Errorf("got %d images, want 2", len(sets[0].Images))
	}
}

func TestSetQueryDebounces(t *testing.T) {
	catalog := &fakeCatalog{results: map[string][]giphy.ImageResult{
		"cats": {{ID: "c1"}},
	}}
	col := &collector{}
	s := newTestSearcher(catalog, col)
	defer s.Close()

	// Typing "cats" one keystroke at a time; only the settled term queries.
	s.SetQuery("c")
	s.SetQuery("ca")
	s.SetQuery("cat")
	s.SetQuery("cats")

	sets := col.waitForSets(t, 1)
	if sets[0].Term != "cats" {
		t.Errorf("term = %q, want cats", sets[0].Term)
	}

	catalog.mu.Lock()
	searches := len(catalog.searches)
	catalog.mu.Unlock()
	if searches != 1 {
		t.Errorf("got %d catalog queries, want 1 (debounced)", searches)
	}
}

func TestEmptyQueryRevertsToTrending(t *testing.T) {
	catalog := &fakeCatalog{trending: []giphy.ImageResult{{ID: "t1"}}}
	col := &collector{}
	s := newTestSearcher(catalog, col)
	defer s.Close()

	s.SetQuery("cat")
	s.SetQuery("") // cleared before the debounce fires

	sets := col.waitForSets(t, 1)
	if sets[0].Term != "" {
		t.Errorf("term = %q, want empty (trending)", sets[0].Term)
	}

	// The canceled "cat" search must never have been issued.
	time.Sleep(150 * time.Millisecond)
	catalog.mu.Lock()
	searches := len(catalog.searches)
	catalog.mu.Unlock()
	if searches != 0 {
		t.Errorf("got %d catalog queries, want 0 (timer canceled)", searches)
	}
}

// A slow response for a superseded term must never overwrite results of
// the newer one.
func TestStaleResponseSuppressed(t *testing.T) {
	catalog := &fakeCatalog{
		results: map[string][]giphy.ImageResult{
			"cat": {{ID: "c1"}},
			"dog": {{ID: "d1"}},
		},
		delays: map[string]time.Duration{"cat": 400 * time.Millisecond},
	}
	col := &collector{}
	s := newTestSearcher(catalog, col)
	defer s.Close()

	s.SetQuery("cat")
	time.Sleep(100 * time.Millisecond) // debounce fires, slow "cat" in flight
	s.SetQuery("dog")

	sets := col.waitForSets(t, 1)
	// Let the slow "cat" response resolve; it must be dropped.
	time.Sleep(500 * time.Millisecond)

	sets = col.snapshot()
	for _, res := range sets {
		if res.Term == "cat" {
			t.Fatal("stale cat results delivered after dog superseded them")
		}
	}
	last := sets[len(sets)-1]
	if last.Term != "dog" {
		t.Errorf("last delivered term = %q, want dog", last.Term)
	}
}

func TestCatalogErrorDegradesToEmpty(t *testing.T) {
	catalog := &fakeCatalog{err: fmt.Errorf("rate limited")}
	col := &collector{}
	s := newTestSearcher(catalog, col)
	defer s.Close()

	s.SetQuery("cat")

	sets := col.waitForSets(t, 1)
	if sets[0].Term != "cat" {
		t.Errorf("term = %q, want cat", sets[0].Term)
	}
	if len(sets[0].Images) != 0 {
		t.Errorf("got %d images, want 0 on catalog error", len(sets[0].Images))
	}
}

func TestCloseSuppressesDelivery(t *testing.T) {
	catalog := &fakeCatalog{
		results: map[string][]giphy.ImageResult{"cat": {{ID: "c1"}}},
		delays:  map[string]time.Duration{"cat": 200 * time.Millisecond},
	}
	col := &collector{}
	s := newTestSearcher(catalog, col)

	s.SetQuery("cat")
	time.Sleep(100 * time.Millisecond) // issued, response in flight
	s.Close()

	time.Sleep(300 * time.Millisecond)
	if n := len(col.snapshot()); n != 0 {
		t.Errorf("got %d deliveries after close, want 0", n)
	}
}
