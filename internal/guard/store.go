package guard

import (
	"context"
	"sync"
	"time"
)

// Record is the durable per-client guard state. It is always written whole.
type Record struct {
	Authenticated bool
	Role          Role
	// SessionID references the login_sessions row kept alive by the heartbeat.
	SessionID string
	// UnlockAt is zero when no lockout is pending.
	UnlockAt time.Time
}

// IsZero reports whether the record carries nothing worth persisting.
func (r Record) IsZero() bool {
	return !r.Authenticated && r.SessionID == "" && r.UnlockAt.IsZero()
}

// StateStore is the durable key/value storage for guard records.
// Load returns a zero Record when the key is absent.
type StateStore interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps records in process memory. Records survive guard
// eviction but not a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[key], nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
