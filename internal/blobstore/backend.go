// Package blobstore persists compressed photo bytes and their capture
// metadata across an ordered list of storage tiers, falling back from the
// durable tier to a volatile in-memory tier when writes fail.
package blobstore

import (
	"errors"
	"sync"
)

// ErrNotFound reports a key absent from a backend.
var ErrNotFound = errors.New("key not found")

// Backend is one storage tier. Implementations must be safe for concurrent
// use by multiple goroutines.
type Backend interface {
	// Name identifies the tier in logs and usage reports.
	Name() string
	Put(key string, value []byte) error
	// Get returns ErrNotFound when the key is absent.
	Get(key string) ([]byte, error)
	Delete(key string) error
	Clear() error
	// Usage returns the approximate stored byte count.
	Usage() (int64, error)
}

// MemoryBackend is the volatile tier: process-lifetime only, but it can never
// hit a quota, so it catches writes the durable tier rejects.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty volatile tier.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	value, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Usage() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, v := range m.data {
		total += int64(len(v))
	}
	return total, nil
}
