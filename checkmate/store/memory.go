package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrKeyNotFound is returned by GetValue for keys that do not exist.
var ErrKeyNotFound = errors.New("key not found")

// memoryStore is an in-process implementation of KVStore backed by a map.
// It serves single-node deployments that run without valkey, and tests.
// TTLs are accepted but not enforced.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory KVStore.
func NewMemoryStore() KVStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) SetValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) SetValueWithTTL(ctx context.Context, key, value string, ttlSeconds int) error {
	return m.SetValue(ctx, key, value)
}

func (m *memoryStore) GetValue(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, exists := m.data[key]
	if !exists {
		return "", fmt.Errorf("key '%s': %w", key, ErrKeyNotFound)
	}
	return value, nil
}

func (m *memoryStore) DeleteValue(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
