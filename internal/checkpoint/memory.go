package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints and access keys in process memory.
type MemoryStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu         sync.RWMutex
	entries    map[string]memoryEntry
	accessKeys map[string]string
}

type memoryEntry struct {
	cp        Checkpoint
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ AccessKeyStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an in-memory store. A zero ttl keeps entries until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		clock:      time.Now,
		entries:    make(map[string]memoryEntry),
		accessKeys: make(map[string]string),
	}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Checkpoint, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if now := s.clock(); entry.expired(now) {
		s.mu.Lock()
		// a Save may have replaced the entry since the read lock was dropped
		if current, ok := s.entries[key]; ok && current.expired(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}
	cp := cloneCheckpoint(entry.cp)
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, cp Checkpoint) error {
	entry := memoryEntry{cp: cloneCheckpoint(cp)}
	if s.ttl > 0 {
		entry.expiresAt = s.clock().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAccessKey(_ context.Context, quizID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessKeys[quizID], nil
}

func (s *MemoryStore) SetAccessKey(_ context.Context, quizID, accessKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accessKey == "" {
		delete(s.accessKeys, quizID)
		return nil
	}
	s.accessKeys[quizID] = accessKey
	return nil
}
