package promo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps promo codes and usage in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]Code
	used  map[string]int64
	usage []Usage
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]Code), used: make(map[string]int64)}
}

// PutCode registers a promo code (admin/seed path).
func (m *MemoryStore) PutCode(_ context.Context, code Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code.Code = strings.ToUpper(code.Code)
	m.codes[code.Code] = code
	return nil
}

// GetCode looks up a code.
func (m *MemoryStore) GetCode(_ context.Context, code string) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.codes[code]
	if !ok {
		return Code{}, ErrCodeNotFound
	}
	return promo, nil
}

// UsedCount returns the global redemption count.
func (m *MemoryStore) UsedCount(_ context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[code], nil
}

// CountUserUsage counts redemptions by one user.
func (m *MemoryStore) CountUserUsage(_ context.Context, code string, uid uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.usage {
		if u.Code == code && u.UID == uid {
			n++
		}
	}
	return n, nil
}

// ReserveUsage claims one usage slot if the limit allows it.
func (m *MemoryStore) ReserveUsage(_ context.Context, code string, limit int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[code] >= limit {
		return false, nil
	}
	m.used[code]++
	return true, nil
}

// RecordUsage appends the per-user redemption record.
func (m *MemoryStore) RecordUsage(_ context.Context, usage Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, usage)
	return nil
}
