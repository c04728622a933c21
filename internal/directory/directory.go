package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mrodrigues/memegram/internal/backend"
	"go.uber.org/zap"
)

// ProfileLister is the slice of the backend the directory depends on.
type ProfileLister interface {
	ListProfiles(ctx context.Context, accessToken string) ([]backend.Profile, error)
}

// Directory holds the list of candidate peers: every known profile except
// the caller's own, ordered by username ascending.
type Directory struct {
	mu     sync.RWMutex
	api    ProfileLister
	logger *zap.Logger
	peers  []backend.Profile
}

// New creates an empty directory.
func New(api ProfileLister, logger *zap.Logger) *Directory {
	return &Directory{api: api, logger: logger}
}

// Load fetches profiles and replaces the peer list, excluding selfID. A
// fetch error leaves the directory empty; the caller renders an empty state.
func (d *Directory) Load(ctx context.Context, accessToken, selfID string) error {
	profiles, err := d.api.ListProfiles(ctx, accessToken)
	if err != nil {
		d.logger.Warn("peer list fetch failed", zap.Error(err))
		d.mu.Lock()
		d.peers = nil
		d.mu.Unlock()
		return err
	}

	peers := make([]backend.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == selfID {
			continue
		}
		peers = append(peers, p)
	}
	// The store orders by username; enforce it locally as well.
	sort.SliceStable(peers, func(i, j int) bool {
		return strings.ToLower(peers[i].Username) < strings.ToLower(peers[j].Username)
	})

	d.mu.Lock()
	d.peers = peers
	d.mu.Unlock()
	return nil
}

// Peers returns a snapshot of the current peer list.
func (d *Directory) Peers() []backend.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]backend.Profile, len(d.peers))
	copy(out, d.peers)
	return out
}

// Clear discards the peer list (on sign-out).
func (d *Directory) Clear() {
	d.mu.Lock()
	d.peers = nil
	d.mu.Unlock()
}

// Filter returns the peers whose username contains query, case-insensitive.
// Pure and local; no network cost.
func Filter(peers []backend.Profile, query string) []backend.Profile {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return peers
	}
	var out []backend.Profile
	for _, p := range peers {
		if strings.Contains(strings.ToLower(p.Username), query) {
			out = append(out, p)
		}
	}
	return out
}
