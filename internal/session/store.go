package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/storage/local"
)

const collectionSessions = "sessions"

var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions. Get returns ErrSessionNotFound for unknown ids.
type Store interface {
	Save(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// Attempt is one graded submission
type Attempt struct {
	SessionID  string           `json:"session_id"`
	LessonID   string           `json:"lesson_id"`
	ItemIndex  int              `json:"item_index"`
	Number     int              `json:"number"`
	Kind       domain.ItemKind  `json:"kind"`
	Submission string           `json:"submission"`
	Passed     bool             `json:"passed"`
	Verdicts   []domain.Verdict `json:"verdicts"`
	CreatedAt  time.Time        `json:"created_at"`
}

// AttemptLog records graded submissions. Stores may implement it.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, a *Attempt) error
	Attempts(ctx context.Context, sessionID string) ([]*Attempt, error)
}

// SortSessions orders sessions newest first
func SortSessions(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// MemoryStore keeps sessions in memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	attempts map[string][]*Attempt
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ AttemptLog = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		attempts: make(map[string][]*Attempt),
	}
}

func (m *MemoryStore) Save(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.attempts, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	SortSessions(out)
	return out, nil
}

func (m *MemoryStore) AppendAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.SessionID] = append(m.attempts[a.SessionID], &cp)
	return nil
}

func (m *MemoryStore) Attempts(_ context.Context, sessionID string) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Attempt, len(m.attempts[sessionID]))
	copy(out, m.attempts[sessionID])
	return out, nil
}

// FileStore persists sessions as JSON files, one per session
type FileStore struct {
	store *local.Store
}

var (
	_ Store      = (*FileStore)(nil)
	_ AttemptLog = (*FileStore)(nil)
)

// NewFileStore creates a JSON file store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &FileStore{store: store}, nil
}

func (f *FileStore) Save(_ context.Context, sess *Session) error {
	return f.store.Save(collectionSessions, sess.ID, sess)
}

func (f *FileStore) Get(_ context.Context, id string) (*Session, error) {
	var sess Session
	if err := f.store.Load(collectionSessions, id, &sess); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := f.store.Delete(collectionSessions, id); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return f.store.DeleteDir(collectionSessions, id)
}

func (f *FileStore) List(ctx context.Context) ([]*Session, error) {
	ids, err := f.store.List(collectionSessions)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := f.Get(ctx, id)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	SortSessions(sessions)
	return sessions, nil
}

func (f *FileStore) AppendAttempt(_ context.Context, a *Attempt) error {
	name := fmt.Sprintf("%03d-%03d", a.ItemIndex, a.Number)
	return f.store.SaveDir(collectionSessions, a.SessionID, "attempts", name, a)
}

func (f *FileStore) Attempts(_ context.Context, sessionID string) ([]*Attempt, error) {
	names, err := f.store.ListDir(collectionSessions, sessionID, "attempts")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]*Attempt, 0, len(names))
	for _, name := range names {
		var a Attempt
		if err := f.store.LoadDir(collectionSessions, sessionID, "attempts", name, &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, nil
}
