package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/chatsync/pkg/chat"
)

// MemoryEngine is an in-memory Store.
// Values are copied on the way in and out so callers can't alias stored state.
type MemoryEngine struct {
	mu      sync.RWMutex
	chats   map[string]memoryChat
	prompts map[string]chat.Prompt
	files   map[string][]chat.File
	closed  bool
	now     func() time.Time
}

type memoryChat struct {
	info    chat.HistoryInfo
	history chat.RawHistory
}

// NewMemoryEngine creates an empty MemoryEngine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		chats:   make(map[string]memoryChat),
		prompts: make(map[string]chat.Prompt),
		files:   make(map[string][]chat.File),
		now:     time.Now,
	}
}

// GetChatHistory implements Engine.
func (m *MemoryEngine) GetChatHistory(_ context.Context, id string) (*chat.RawHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	c, ok := m.chats[id]
	if !ok {
		return &chat.RawHistory{Messages: map[string]chat.RawMessage{}}, nil
	}
	h := copyHistory(c.history)
	return &h, nil
}

// GetHistoryInfo implements Engine.
func (m *MemoryEngine) GetHistoryInfo(_ context.Context, id string) (*chat.HistoryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	c, ok := m.chats[id]
	if !ok {
		return nil, nil
	}
	info := c.info
	return &info, nil
}

// GetPromptByID implements Engine.
func (m *MemoryEngine) GetPromptByID(_ context.Context, id string) (*chat.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.prompts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetSessionFiles implements Engine.
func (m *MemoryEngine) GetSessionFiles(_ context.Context, id string) ([]chat.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]chat.File{}, m.files[id]...), nil
}

// SaveChat implements Writer.
func (m *MemoryEngine) SaveChat(_ context.Context, info chat.HistoryInfo, history chat.RawHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	now := m.now()
	if existing, ok := m.chats[info.ID]; ok && info.CreatedAt.IsZero() {
		info.CreatedAt = existing.info.CreatedAt
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}
	m.chats[info.ID] = memoryChat{info: info, history: copyHistory(history)}
	return nil
}

// DeleteChat implements Writer.
func (m *MemoryEngine) DeleteChat(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.chats, id)
	delete(m.files, id)
	return nil
}

// ListHistoryInfo implements Writer.
func (m *MemoryEngine) ListHistoryInfo(_ context.Context) ([]chat.HistoryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]chat.HistoryInfo, 0, len(m.chats))
	for _, c := range m.chats {
		out = append(out, c.info)
	}
	sortInfos(out)
	return out, nil
}

// SavePrompt implements Writer.
func (m *MemoryEngine) SavePrompt(_ context.Context, p chat.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.prompts[p.ID] = p
	return nil
}

// AttachFile implements Writer.
func (m *MemoryEngine) AttachFile(_ context.Context, chatID string, f chat.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	files := m.files[chatID]
	for i, existing := range files {
		if existing.ID == f.ID {
			files[i] = f
			return nil
		}
	}
	m.files[chatID] = append(files, f)
	return nil
}

// Close implements Store.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyHistory(h chat.RawHistory) chat.RawHistory {
	out := chat.RawHistory{
		CurrentID: h.CurrentID,
		Messages:  make(map[string]chat.RawMessage, len(h.Messages)),
	}
	for id, msg := range h.Messages {
		msg.ChildrenIDs = append([]string(nil), msg.ChildrenIDs...)
		out.Messages[id] = msg
	}
	return out
}

func sortInfos(infos []chat.HistoryInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
}

var _ Store = (*MemoryEngine)(nil)
