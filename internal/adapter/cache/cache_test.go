package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// --- mock for cache tests ---

type countingStore struct {
	mu    sync.Mutex
	calls map[string]int
	data  map[string][]byte
	err   error
}

func (m *countingStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[key]++
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, zarr.ErrKeyNotFound)
	}
	return b, nil
}

// --- Store tests ---

func TestStore_CacheHit(t *testing.T) {
	inner := &countingStore{data: map[string][]byte{"time/0": {1, 2}}}
	metrics := observability.NewMetricsForTesting()
	s := New(inner, 10, metrics)

	for i := 0; i < 3; i++ {
		b, err := s.Get(context.Background(), "time/0")
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, b)
	}
	assert.Equal(t, 1, inner.calls["time/0"], "should only call inner once")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ChunkCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChunkCache.WithLabelValues("miss")))
}

func TestStore_MissingKeyCached(t *testing.T) {
	inner := &countingStore{}
	s := New(inner, 10, observability.NewMetricsForTesting())

	for i := 0; i < 2; i++ {
		_, err := s.Get(context.Background(), "streamflow/3.1")
		require.Error(t, err)
		assert.ErrorIs(t, err, zarr.ErrKeyNotFound)
	}
	assert.Equal(t, 1, inner.calls["streamflow/3.1"])
}

func TestStore_ErrorsNotCached(t *testing.T) {
	inner := &countingStore{err: errors.New("connection reset")}
	s := New(inner, 10, observability.NewMetricsForTesting())

	_, err := s.Get(context.Background(), ".zmetadata")
	require.Error(t, err)
	_, err = s.Get(context.Background(), ".zmetadata")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls[".zmetadata"])
	assert.Equal(t, 0, s.Len())
}

func TestStore_DisabledWithZeroEntries(t *testing.T) {
	inner := &countingStore{data: map[string][]byte{"k": {1}}}
	s := New(inner, 0, observability.NewMetricsForTesting())
	_, _ = s.Get(context.Background(), "k")
	_, _ = s.Get(context.Background(), "k")
	assert.Equal(t, 2, inner.calls["k"])
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", cached{value: []byte("A")})
	c.put("b", cached{missing: true})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("A"), result.value)

	result, ok = c.get("b")
	assert.True(t, ok)
	assert.True(t, result.missing)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", cached{value: []byte("A")})
	c.put("b", cached{value: []byte("B")})
	c.put("c", cached{value: []byte("C")}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, []byte("B"), result.value)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, []byte("C"), result.value)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", cached{value: []byte("A")})
	c.put("b", cached{value: []byte("B")})
	c.get("a")
	c.put("c", cached{value: []byte("C")}) // evicts "b"

	_, ok := c.get("a")
	assert.True(t, ok)
	_, ok = c.get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", cached{missing: true})
	c.put("a", cached{value: []byte("A2")})
	result, ok := c.get("a")
	require.True(t, ok)
	assert.False(t, result.missing)
	assert.Equal(t, []byte("A2"), result.value)
	assert.Equal(t, 1, c.len())
}
