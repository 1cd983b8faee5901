package sandbox

import (
	"slices"
	"sync"
	"time"
)

// Store persists sandbox records.
type Store interface {
	Save(sb *Sandbox) error
	Get(id string) (*Sandbox, error)
	// GetByKey returns the newest live sandbox of an isolation key.
	GetByKey(key string) (*Sandbox, error)
	Delete(id string) error
	ListActive() ([]*Sandbox, error)
	ListExpired(now time.Time) ([]*Sandbox, error)
}

// MemoryStore keeps sandbox records in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sandboxes map[string]Sandbox
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sandboxes: make(map[string]Sandbox)}
}

func (s *MemoryStore) Save(sb *Sandbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sandboxes[sb.ID] = *sb
	return nil
}

func (s *MemoryStore) Get(id string) (*Sandbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, ok := s.sandboxes[id]
	if !ok {
		return nil, ErrSandboxNotFound
	}
	return &sb, nil
}

func (s *MemoryStore) GetByKey(key string) (*Sandbox, error) {
	live := s.list(func(sb *Sandbox) bool { return sb.Key == key && sb.Live() })
	if len(live) == 0 {
		return nil, ErrSandboxNotFound
	}
	return live[len(live)-1], nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sandboxes[id]; !ok {
		return ErrSandboxNotFound
	}
	delete(s.sandboxes, id)
	return nil
}

func (s *MemoryStore) ListActive() ([]*Sandbox, error) {
	return s.list((*Sandbox).Live), nil
}

func (s *MemoryStore) ListExpired(now time.Time) ([]*Sandbox, error) {
	return s.list(func(sb *Sandbox) bool { return sb.Live() && sb.Expired(now) }), nil
}

// list returns matching records oldest first.
func (s *MemoryStore) list(keep func(*Sandbox) bool) []*Sandbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Sandbox
	for _, sb := range s.sandboxes {
		if keep(&sb) {
			out = append(out, &sb)
		}
	}
	slices.SortFunc(out, func(a, b *Sandbox) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
