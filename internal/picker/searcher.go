package picker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mrodrigues/memegram/internal/giphy"
	"go.uber.org/zap"
)

// Catalog is the image catalog boundary.
type Catalog interface {
	Trending(ctx context.Context, limit int) ([]giphy.ImageResult, error)
	Search(ctx context.Context, term string, limit int) ([]giphy.ImageResult, error)
}

const (
	// DebounceInterval is how long input must be stable before a search fires.
	DebounceInterval = 400 * time.Millisecond
	resultLimit      = 20
)

// Results is a delivered result set, tagged with the term that produced it
// (empty for trending).
type Results struct {
	Term   string
	Images []giphy.ImageResult
}

// Searcher drives debounced catalog queries with supersession: each issued
// request carries a sequence number and only the response matching the
// latest issued sequence is delivered, so a slow response for a stale term
// never overwrites results of a newer one.
type Searcher struct {
	ctx       context.Context
	catalog   Catalog
	logger    *zap.Logger
	debounce  time.Duration
	onResults func(Results)

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	closed bool
}

// NewSearcher creates a searcher delivering result sets to onResults. The
// callback runs on a background goroutine.
func NewSearcher(ctx context.Context, catalog Catalog, logger *zap.Logger, onResults func(Results)) *Searcher {
	return &Searcher{
		ctx:       ctx,
		catalog:   catalog,
		logger:    logger,
		debounce:  DebounceInterval,
		onResults: onResults,
	}
}

// SetQuery reacts to input changes. A non-empty term (re)arms the debounce
// timer, canceling any pending search; an empty or whitespace term cancels
// the timer and issues a trending query immediately.
func (s *Searcher) SetQuery(term string) {
	term = strings.TrimSpace(term)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if term == "" {
		s.issueLocked("")
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.issueLocked(term)
	})
}

// LoadTrending issues an immediate trending query (picker open).
func (s *Searcher) LoadTrending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.issueLocked("")
}

func (s *Searcher) issueLocked(term string) {
	s.seq++
	seq := s.seq

	go func() {
		var images []giphy.ImageResult
		var err error
		if term == "" {
			images, err = s.catalog.Trending(s.ctx, resultLimit)
		} else {
			images, err = s.catalog.Search(s.ctx, term, resultLimit)
		}
		if err != nil {
			// Catalog errors degrade to an empty result set.
			s.logger.Warn("catalog query failed", zap.String("term", term), zap.Error(err))
			images = nil
		}

		s.mu.Lock()
		stale := seq != s.seq || s.closed
		s.mu.Unlock()
		if stale {
			return
		}
		s.onResults(Results{Term: term, Images: images})
	}()
}

// Close cancels any pending timer and suppresses further deliveries.
func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
