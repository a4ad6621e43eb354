package fixture

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// MemStore is an in-memory zarr store that counts reads per key.
type MemStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	reads map[string]int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte), reads: make(map[string]int)}
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[key]++
	b, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, zarr.ErrKeyNotFound)
	}
	return b, nil
}

func (m *MemStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Reads returns how many times key was read.
func (m *MemStore) Reads(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[key]
}

// TotalReads returns the number of reads across all keys.
func (m *MemStore) TotalReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.reads {
		n += c
	}
	return n
}

// Keys returns the number of stored keys.
func (m *MemStore) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// ResetReads clears the read counters.
func (m *MemStore) ResetReads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = make(map[string]int)
}
