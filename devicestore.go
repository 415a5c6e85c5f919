package loginsolver

import (
	"context"
	"sync"
)

// MemoryDeviceStore is a thread-safe in-memory DeviceStore. Fingerprints are
// lost on process restart; use the Redis-backed default for persistence.
type MemoryDeviceStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ DeviceStore = (*MemoryDeviceStore)(nil)

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		data: make(map[string]string),
	}
}

func (s *MemoryDeviceStore) Load(_ context.Context, principal string) (string, error) {
	s.mu.RLock()
	blob := s.data[principal]
	s.mu.RUnlock()
	return blob, nil
}

func (s *MemoryDeviceStore) Save(_ context.Context, principal, blob string) error {
	s.mu.Lock()
	s.data[principal] = blob
	s.mu.Unlock()
	return nil
}
