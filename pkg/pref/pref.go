// Package pref provides persisted, reactive user preferences.
//
// Preferences are persisted values that:
//   - Survive reloads through a Backend (memory, SQL)
//   - Are observable: every change is visible to subscribers
//   - Merge with values written elsewhere (another tab) by strategy
//
// Example:
//
//	useLastModel := pref.New(pref.KeyLastUsedChatModel, false)
//	if err := useLastModel.Bind(ctx, backend); err != nil {
//	    return err
//	}
//	useLastModel.Set(true)
package pref

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vango-dev/chatsync/pkg/reactive"
)

// Keys of the preferences read during chat hydration.
const (
	KeyLastUsedChatModel = "isLastUsedChatModel"
	KeySelectedModel     = "selectedModel"
)

// MergeStrategy determines how conflicts are resolved when local and remote values differ.
type MergeStrategy int

const (
	// DBWins uses the remote value, discards local.
	DBWins MergeStrategy = iota

	// LocalWins keeps the local value.
	LocalWins

	// Prompt is reserved for asking the user; it currently resolves like LWW.
	Prompt

	// LWW uses last-write-wins with timestamps.
	LWW
)

// PrefOption is a functional option for configuring preferences.
type PrefOption func(*prefConfig)

type prefConfig struct {
	mergeStrategy   MergeStrategy
	conflictHandler func(local, remote any) any
	persist         bool
	onPersistError  func(key string, err error)
	persistTimeout  time.Duration
}

// MergeWith sets the merge strategy for conflict resolution.
func MergeWith(strategy MergeStrategy) PrefOption {
	return func(c *prefConfig) {
		c.mergeStrategy = strategy
	}
}

// OnConflict sets a custom conflict handler.
// The handler receives local and remote values and returns the resolved value.
func OnConflict(handler func(local, remote any) any) PrefOption {
	return func(c *prefConfig) {
		c.conflictHandler = handler
	}
}

// LocalOnly keeps the preference in memory even when a Backend is bound.
func LocalOnly() PrefOption {
	return func(c *prefConfig) {
		c.persist = false
	}
}

// OnPersistError registers a handler for failed writes to the Backend.
func OnPersistError(fn func(key string, err error)) PrefOption {
	return func(c *prefConfig) {
		c.onPersistError = fn
	}
}

// Pref represents a user preference.
type Pref[T any] struct {
	key      string
	defaults T
	signal   *reactive.Signal[T]
	config   prefConfig

	mu        sync.RWMutex
	updatedAt time.Time
	backend   Backend
}

// New creates a new preference with the given key and default value.
func New[T any](key string, defaultValue T, opts ...PrefOption) *Pref[T] {
	config := prefConfig{
		mergeStrategy:  LWW,
		persist:        true,
		persistTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Pref[T]{
		key:       key,
		defaults:  defaultValue,
		signal:    reactive.NewSignal(defaultValue),
		updatedAt: time.Now(),
		config:    config,
	}
}

// Get returns the current preference value.
func (p *Pref[T]) Get() T {
	return p.signal.Get()
}

// Set updates the preference value and persists it when a Backend is bound.
func (p *Pref[T]) Set(value T) {
	p.mu.Lock()
	p.updatedAt = time.Now()
	updatedAt := p.updatedAt
	backend := p.backend
	p.mu.Unlock()

	p.signal.Set(value)

	if backend != nil && p.config.persist {
		p.save(backend, value, updatedAt)
	}
}

// Reset resets the preference to its default value.
func (p *Pref[T]) Reset() {
	p.Set(p.defaults)
}

// Key returns the preference key.
func (p *Pref[T]) Key() string {
	return p.key
}

// UpdatedAt returns when the preference was last updated.
func (p *Pref[T]) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Signal exposes the underlying signal for subscriptions.
func (p *Pref[T]) Signal() *reactive.Signal[T] {
	return p.signal
}

// OnChange subscribes fn to later value changes.
func (p *Pref[T]) OnChange(fn func(prev, next T)) *reactive.Effect {
	return reactive.OnChange(p.signal, fn)
}

// SetFromRemote updates the value from a remote source (another tab or server).
// Uses the configured merge strategy to resolve conflicts. Remote values are
// not written back to the Backend.
func (p *Pref[T]) SetFromRemote(value T, remoteUpdatedAt time.Time) {
	p.mu.Lock()
	resolved := p.resolveConflict(p.signal.Peek(), value, p.updatedAt, remoteUpdatedAt)
	resolvedT, ok := resolved.(T)
	if ok && remoteUpdatedAt.After(p.updatedAt) {
		p.updatedAt = remoteUpdatedAt
	}
	p.mu.Unlock()

	if ok {
		p.signal.Set(resolvedT)
	}
}

// resolveConflict applies the merge strategy to resolve conflicts.
func (p *Pref[T]) resolveConflict(local, remote any, localTime, remoteTime time.Time) any {
	if p.config.conflictHandler != nil {
		return p.config.conflictHandler(local, remote)
	}

	switch p.config.mergeStrategy {
	case DBWins:
		return remote
	case LocalWins:
		return local
	case LWW, Prompt:
		if remoteTime.After(localTime) {
			return remote
		}
		return local
	default:
		return local
	}
}

// Bind loads the persisted value from b, if any, and persists later Sets to b.
func (p *Pref[T]) Bind(ctx context.Context, b Backend) error {
	data, err := b.Load(ctx, p.key)
	if err != nil {
		return fmt.Errorf("pref %s: load: %w", p.key, err)
	}

	if data != nil {
		var stored envelope[T]
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("pref %s: decode: %w", p.key, err)
		}
		p.mu.Lock()
		p.updatedAt = stored.UpdatedAt
		p.mu.Unlock()
		p.signal.Set(stored.Value)
	}

	p.mu.Lock()
	p.backend = b
	p.mu.Unlock()
	return nil
}

func (p *Pref[T]) save(b Backend, value T, updatedAt time.Time) {
	data, err := json.Marshal(envelope[T]{Key: p.key, Value: value, UpdatedAt: updatedAt})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.persistTimeout)
		err = b.Save(ctx, p.key, data)
		cancel()
	}
	if err != nil && p.config.onPersistError != nil {
		p.config.onPersistError(p.key, err)
	}
}

type envelope[T any] struct {
	Key       string    `json:"key"`
	Value     T         `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler.
func (p *Pref[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope[T]{
		Key:       p.key,
		Value:     p.signal.Peek(),
		UpdatedAt: p.UpdatedAt(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pref[T]) UnmarshalJSON(data []byte) error {
	var temp envelope[T]
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	p.mu.Lock()
	p.key = temp.Key
	p.updatedAt = temp.UpdatedAt
	if p.signal == nil {
		p.signal = reactive.NewSignal(temp.Value)
	}
	p.mu.Unlock()
	p.signal.Set(temp.Value)
	return nil
}
