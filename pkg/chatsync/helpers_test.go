package chatsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/storage"
	"github.com/vango-dev/chatsync/pkg/store"
	"github.com/vango-dev/chatsync/pkg/title"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

type notes struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (n *notes) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, msg)
}

func (n *notes) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *notes) counts() (warns, errs int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warns), len(n.errors)
}

// faultyEngine injects errors and counts calls on top of a real engine.
type faultyEngine struct {
	storage.Engine

	historyErr error
	infoErr    error
	promptErr  error
	filesErr   error

	// started is closed on the first fetch; fetches then wait on release.
	started chan struct{}
	release chan struct{}
	once    sync.Once

	infoCalls  atomic.Int32
	filesCalls atomic.Int32
}

func (f *faultyEngine) wait(ctx context.Context) error {
	if f.release == nil {
		return nil
	}
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *faultyEngine) GetChatHistory(ctx context.Context, id string) (*chat.RawHistory, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.Engine.GetChatHistory(ctx, id)
}

func (f *faultyEngine) GetHistoryInfo(ctx context.Context, id string) (*chat.HistoryInfo, error) {
	f.infoCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.Engine.GetHistoryInfo(ctx, id)
}

func (f *faultyEngine) GetPromptByID(ctx context.Context, id string) (*chat.Prompt, error) {
	if f.promptErr != nil {
		return nil, f.promptErr
	}
	return f.Engine.GetPromptByID(ctx, id)
}

func (f *faultyEngine) GetSessionFiles(ctx context.Context, id string) ([]chat.File, error) {
	f.filesCalls.Add(1)
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.Engine.GetSessionFiles(ctx, id)
}

// selectCounter counts prompt selection writes.
type selectCounter struct {
	*store.Session
	selects atomic.Int32
}

func (s *selectCounter) SetSelectedPrompt(p *chat.Prompt) {
	s.selects.Add(1)
	s.Session.SetSelectedPrompt(p)
}

// bareStore has no optional capabilities.
type bareStore struct {
	store.SessionStore
}

type harness struct {
	t        *testing.T
	loc      *urlparam.Location
	sess     *selectCounter
	settings *store.ModelSettings
	prefs    Preferences
	mem      *storage.MemoryEngine
	engine   *faultyEngine
	notes    *notes

	mu      sync.Mutex
	patches []urlparam.Patch
	titles  []string
}

func newHarness(t *testing.T, params map[string]string) *harness {
	t.Helper()
	mem := storage.NewMemoryEngine()
	h := &harness{
		t:        t,
		loc:      urlparam.NewLocation("/", params),
		sess:     &selectCounter{Session: store.NewSession()},
		settings: store.NewModelSettings(),
		prefs:    NewPreferences(),
		mem:      mem,
		engine:   &faultyEngine{Engine: mem},
		notes:    &notes{},
	}
	h.loc.OnPatch(func(p urlparam.Patch) {
		h.mu.Lock()
		h.patches = append(h.patches, p)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Navigator: h.loc,
		Session:   h.sess,
		Settings:  h.settings,
		Prefs:     h.prefs,
		Engine:    h.engine,
		Notifier:  h.notes,
		Title: title.UpdaterFunc(func(s string) {
			h.mu.Lock()
			h.titles = append(h.titles, s)
			h.mu.Unlock()
		}),
	}
}

func (h *harness) newSync(mod ...func(*Deps)) *Sync {
	h.t.Helper()
	d := h.deps()
	for _, fn := range mod {
		fn(&d)
	}
	s, err := New(d)
	if err != nil {
		h.t.Fatalf("New: %v", err)
	}
	h.t.Cleanup(s.Close)
	return s
}

func (h *harness) patchCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.patches)
}

func (h *harness) titleLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.titles...)
}

func (h *harness) urlChat() (string, bool) {
	return h.loc.Get(ParamKey)
}

var seedTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// seed stores a two-message chat.
func (h *harness) seed(info chat.HistoryInfo) {
	h.t.Helper()
	raw := chat.RawHistory{
		CurrentID: "m2",
		Messages: map[string]chat.RawMessage{
			"m1": {ID: "m1", Role: chat.RoleUser, Content: "hi", ChildrenIDs: []string{"m2"}, Timestamp: seedTime},
			"m2": {ID: "m2", ParentID: "m1", Role: chat.RoleAssistant, Content: "hello", Timestamp: seedTime},
		},
	}
	if err := h.mem.SaveChat(context.Background(), info, raw); err != nil {
		h.t.Fatalf("seed: %v", err)
	}
}
