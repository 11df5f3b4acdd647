package ledger

import (
	"context"
	"sync"
)

// Store persists ledger entries. Append must be atomic-or-nothing: a partial
// write must never leave an entry whose digest does not match its payload.
// Every read is tenant-scoped; a store never returns another org's entries.
type Store interface {
	// Append writes a new entry. Returns ErrDuplicateRun if the run is
	// already sealed.
	Append(ctx context.Context, entry *Entry) error

	// Get retrieves the entry for an org and run. Returns ErrNotFound when
	// absent or owned by a different org.
	Get(ctx context.Context, orgID, runID string) (*Entry, error)

	// ListBySite retrieves entries for an org and site, newest first.
	// Limit of 0 means no limit.
	ListBySite(ctx context.Context, orgID, siteID string, limit int) ([]*Entry, error)
}

// InMemoryStore is an in-memory Store used for testing and development.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry // runID -> entry
	// Maintain insertion order for site queries
	order []string
}

// NewInMemoryStore creates a new in-memory ledger store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*Entry),
		order:   make([]string, 0),
	}
}

// Append writes a new entry.
func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.RunID]; exists {
		return ErrDuplicateRun
	}
	s.entries[entry.RunID] = entry.clone()
	s.order = append(s.order, entry.RunID)
	return nil
}

// Get retrieves the entry for an org and run. An entry owned by a different
// org is indistinguishable from an absent one.
func (s *InMemoryStore) Get(_ context.Context, orgID, runID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[runID]
	if !ok || entry.OrgID != orgID {
		return nil, ErrNotFound
	}
	return entry.clone(), nil
}

// ListBySite retrieves entries for an org and site, newest first.
func (s *InMemoryStore) ListBySite(_ context.Context, orgID, siteID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Entry
	for i := len(s.order) - 1; i >= 0; i-- {
		entry := s.entries[s.order[i]]
		if entry.OrgID != orgID || entry.SiteID != siteID {
			continue
		}
		results = append(results, entry.clone())
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
