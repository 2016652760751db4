package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Mem is an in-memory Store with real compare-and-swap semantics.
// Tests use it to simulate racing publishers without a network.
type Mem struct {
	mu   sync.Mutex
	rev  int64
	data map[string]memObject
}

type memObject struct {
	data []byte
	etag string
}

func NewMem() *Mem {
	return &Mem{data: map[string]memObject{}}
}

func (m *Mem) next() string {
	m.rev++
	return strconv.FormatInt(m.rev, 10)
}

func (m *Mem) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return &Object{Data: append([]byte(nil), obj.data...), ETag: obj.etag}, nil
}

func (m *Mem) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memObject{data: append([]byte(nil), data...), etag: m.next()}
	return nil
}

func (m *Mem) PutIfMatch(ctx context.Context, key string, data []byte, contentType, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[key]
	if !ok || current.etag != etag {
		return fmt.Errorf("put-if-match %s: %w", key, ErrConflict)
	}
	m.data[key] = memObject{data: append([]byte(nil), data...), etag: m.next()}
	return nil
}

func (m *Mem) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return fmt.Errorf("put-if-absent %s: %w", key, ErrConflict)
	}
	m.data[key] = memObject{data: append([]byte(nil), data...), etag: m.next()}
	return nil
}

func (m *Mem) PublicURL(key string) string {
	return "https://mem.invalid/" + key
}

// Keys lists stored keys in lexical order, for assertions.
func (m *Mem) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
