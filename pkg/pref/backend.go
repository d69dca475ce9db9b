package pref

import (
	"context"
	"sync"
)

// Backend persists encoded preference values by key.
// Load returns (nil, nil) when the key has never been saved.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// MemoryBackend keeps preferences in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

type prefixed struct {
	b      Backend
	prefix string
}

// Prefixed scopes every key of b under scope, e.g. one scope per client.
func Prefixed(b Backend, scope string) Backend {
	return prefixed{b: b, prefix: scope + ":"}
}

func (p prefixed) Load(ctx context.Context, key string) ([]byte, error) {
	return p.b.Load(ctx, p.prefix+key)
}

func (p prefixed) Save(ctx context.Context, key string, data []byte) error {
	return p.b.Save(ctx, p.prefix+key, data)
}
