package auth

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
	admins  map[int64]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[int64]Record{}, admins: map[int64]struct{}{}}
}

func (m *MemoryStore) Get(_ context.Context, user int64) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[user]
	return r, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.UserID] = r
	return nil
}

func (m *MemoryStore) IsAdmin(_ context.Context, user int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[user]
	return ok, nil
}

func (m *MemoryStore) AddAdmin(_ context.Context, user int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[user] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveAdmin(_ context.Context, user int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.admins, user)
	return nil
}

func (m *MemoryStore) Admins(context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
