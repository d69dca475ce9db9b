// Package urlparam models the navigable address of a client session.
//
// A Location keeps the current path, query parameters and history stack on
// the server. Updates are published as Patches so a transport can apply them
// to the real address bar:
//
//	loc, _ := urlparam.Parse("/c?chat=abc123")
//	loc.OnPatch(func(p urlparam.Patch) { conn.WriteJSON(p) })
//
//	id, _ := loc.Get("chat")                // "abc123"
//	loc.Replace(map[string]string{"chat": "xyz"}) // no new history entry
package urlparam

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ErrInvalidURL is returned by Parse for unparseable addresses.
var ErrInvalidURL = errors.New("urlparam: invalid url")

// URLMode determines how URL updates are handled.
type URLMode int

const (
	// ModePush adds a new history entry.
	ModePush URLMode = iota

	// ModeReplace replaces the current history entry (no back button spam).
	ModeReplace
)

// String returns the patch op name for the mode.
func (m URLMode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "push"
}

// Patch describes one address change for the client.
type Patch struct {
	Op  string `json:"op"`
	URL string `json:"url"`
}

// Location is an in-memory, concurrency-safe address with a history stack.
// It implements Navigator.
type Location struct {
	mu      sync.RWMutex
	path    string
	query   url.Values
	history []string
	sinks   []func(Patch)
}

// NewLocation creates a Location at path with the given params.
func NewLocation(path string, params map[string]string) *Location {
	if path == "" {
		path = "/"
	}
	l := &Location{path: path, query: toValues(params)}
	l.history = []string{l.stringLocked()}
	return l
}

// Parse builds a Location from a request URL or path with query.
func Parse(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	l := &Location{path: path, query: u.Query()}
	l.history = []string{l.stringLocked()}
	return l, nil
}

// OnPatch registers a sink that receives every address change.
func (l *Location) OnPatch(fn func(Patch)) {
	l.mu.Lock()
	l.sinks = append(l.sinks, fn)
	l.mu.Unlock()
}

// Get returns the first value of key.
func (l *Location) Get(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	vals, ok := l.query[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Query returns a copy of the current parameters (first value per key).
func (l *Location) Query() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.query))
	for k, v := range l.query {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Path returns the current path.
func (l *Location) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// Replace sets the full parameter set, replacing the current history entry.
func (l *Location) Replace(params map[string]string) {
	l.Navigate(params, ModeReplace)
}

// Push sets the full parameter set and appends a history entry.
func (l *Location) Push(params map[string]string) {
	l.Navigate(params, ModePush)
}

// Navigate applies params with the given history mode and publishes a Patch.
func (l *Location) Navigate(params map[string]string, mode URLMode) {
	l.mu.Lock()
	l.query = toValues(params)
	current := l.stringLocked()
	if mode == ModeReplace && len(l.history) > 0 {
		l.history[len(l.history)-1] = current
	} else {
		l.history = append(l.history, current)
	}
	sinks := append([]func(Patch){}, l.sinks...)
	l.mu.Unlock()

	patch := Patch{Op: mode.String(), URL: current}
	for _, fn := range sinks {
		fn(patch)
	}
}

// Back pops the current history entry, as the browser back button does.
// It reports false when there is no previous entry. No Patch is published
// because the client originated the move.
func (l *Location) Back() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) < 2 {
		return false
	}
	l.history = l.history[:len(l.history)-1]
	prev, err := url.Parse(l.history[len(l.history)-1])
	if err != nil {
		return false
	}
	l.path = prev.EscapedPath()
	l.query = prev.Query()
	return true
}

// Sync overwrites the address with one reported by the client (popstate,
// manual edit). History is not modified and no Patch is published.
func (l *Location) Sync(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := u.EscapedPath(); p != "" {
		l.path = p
	}
	l.query = u.Query()
	if len(l.history) > 0 {
		l.history[len(l.history)-1] = l.stringLocked()
	}
	return nil
}

// History returns a copy of the history stack, oldest first.
func (l *Location) History() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.history...)
}

// String returns the path with its encoded query.
func (l *Location) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stringLocked()
}

func (l *Location) stringLocked() string {
	if len(l.query) == 0 {
		return l.path
	}
	return l.path + "?" + l.query.Encode()
}

func toValues(params map[string]string) url.Values {
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	return v
}
