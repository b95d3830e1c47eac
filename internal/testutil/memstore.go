package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInjected is returned by MemStore when a write failure is injected.
var ErrInjected = errors.New("injected store failure")

// MemStore is an in-memory blob store for tests.
//
// It satisfies archive.BlobStore. FailPuts makes subsequent writes fail so
// tests can verify rollback behavior.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	puts     int
	failPuts bool
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the blob stored under key.
func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put replaces the blob stored under key.
func (m *MemStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return ErrInjected
	}
	m.blobs[key] = append([]byte(nil), value...)
	m.puts++
	return nil
}

// Delete removes the blob stored under key.
func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Keys returns all keys in byte order.
func (m *MemStore) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set stores raw bytes without counting a write. Used to seed corrupt data.
func (m *MemStore) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
}

// Puts returns the number of successful Put calls.
func (m *MemStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// FailPuts toggles injected write failures.
func (m *MemStore) FailPuts(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts = fail
}
