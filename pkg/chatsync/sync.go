package chatsync

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/chatsync/pkg/metrics"
	"github.com/vango-dev/chatsync/pkg/pref"
	"github.com/vango-dev/chatsync/pkg/reactive"
	"github.com/vango-dev/chatsync/pkg/storage"
	"github.com/vango-dev/chatsync/pkg/store"
	"github.com/vango-dev/chatsync/pkg/title"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

// ParamKey is the query parameter carrying the chat id.
const ParamKey = "chat"

// TracerName is the instrumentation name of the spans created by Mount.
const TracerName = "github.com/vango-dev/chatsync/pkg/chatsync"

// Notifier shows user-visible notifications. toast.Notifier implements it.
type Notifier interface {
	Warn(message string)
	Error(message string)
}

// Preferences are the persisted preferences hydration reads and writes.
type Preferences struct {
	// LastUsedModel enables restoring the chat's model on load.
	LastUsedModel *pref.Pref[bool]
	// SelectedModel is the model the composer sends to.
	SelectedModel *pref.Pref[string]
}

// NewPreferences creates unbound preferences with their defaults.
func NewPreferences(opts ...pref.PrefOption) Preferences {
	return Preferences{
		LastUsedModel: pref.New(pref.KeyLastUsedChatModel, false, opts...),
		SelectedModel: pref.New(pref.KeySelectedModel, "", opts...),
	}
}

// Bind loads both preferences from b and persists later changes to it.
func (p Preferences) Bind(ctx context.Context, b pref.Backend) error {
	var errs []error
	if p.LastUsedModel != nil {
		errs = append(errs, p.LastUsedModel.Bind(ctx, b))
	}
	if p.SelectedModel != nil {
		errs = append(errs, p.SelectedModel.Bind(ctx, b))
	}
	return stderrors.Join(errs...)
}

// Deps are the collaborators of a Sync.
type Deps struct {
	Navigator urlparam.Navigator
	Session   store.SessionStore
	Settings  store.SystemPromptSetter
	Prefs     Preferences
	Engine    storage.Engine
	Notifier  Notifier
	Title     title.Updater

	// Dispatch runs a store write. Default: run inline.
	Dispatch func(func())

	// Optional.
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  trace.Tracer
}

var (
	errNoNavigator = stderrors.New("chatsync: Navigator is required")
	errNoSession   = stderrors.New("chatsync: Session is required")
	errNoSettings  = stderrors.New("chatsync: Settings is required")
	errNoEngine    = stderrors.New("chatsync: Engine is required")
	errNoNotifier  = stderrors.New("chatsync: Notifier is required")
	errNoTitle     = stderrors.New("chatsync: Title is required")
)

// Sync is the per-session synchronization unit: the URL binder plus the
// one-shot hydration sequence.
type Sync struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer

	initialized atomic.Bool
	phase       atomic.Int32

	once   sync.Once
	result Result

	mu     sync.Mutex
	effect *reactive.Effect
}

// New validates deps and creates a Sync.
func New(deps Deps) (*Sync, error) {
	switch {
	case deps.Navigator == nil:
		return nil, errNoNavigator
	case deps.Session == nil:
		return nil, errNoSession
	case deps.Settings == nil:
		return nil, errNoSettings
	case deps.Engine == nil:
		return nil, errNoEngine
	case deps.Notifier == nil:
		return nil, errNoNotifier
	case deps.Title == nil:
		return nil, errNoTitle
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(fn func()) { fn() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Sync{
		deps:   deps,
		logger: logger.With("component", "chatsync"),
		tracer: tracer,
	}, nil
}

// ChatID returns the chat id carried by the URL. An empty value counts as absent.
func (s *Sync) ChatID() (string, bool) {
	id, ok := s.deps.Navigator.Get(ParamKey)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SetChatURLParam writes id into the URL immediately. An empty id clears
// the parameter.
func (s *Sync) SetChatURLParam(id string) {
	if id == "" {
		s.ClearChatURLParam()
		return
	}
	s.deps.Navigator.Replace(map[string]string{ParamKey: id})
	s.deps.Metrics.URLWrite("set")
	s.logger.Debug("chat url param set", "chat_id", id)
}

// ClearChatURLParam removes the chat parameter unconditionally.
func (s *Sync) ClearChatURLParam() {
	s.deps.Navigator.Replace(map[string]string{})
	s.deps.Metrics.URLWrite("clear")
	s.logger.Debug("chat url param cleared")
}

// Initialized reports whether hydration has reached Done.
func (s *Sync) Initialized() bool {
	return s.initialized.Load()
}

// StoreChatIDChanged reflects a store chat id into the URL. It does nothing
// before hydration is done. Mount subscribes it automatically when the
// session store implements store.ChatIDSource; other stores must call it on
// every change.
func (s *Sync) StoreChatIDChanged(id string) {
	if !s.initialized.Load() {
		return
	}
	current, hasCurrent := s.ChatID()
	if id != "" {
		if id != current {
			s.SetChatURLParam(id)
		}
		return
	}
	if hasCurrent {
		s.ClearChatURLParam()
	}
}

// bind subscribes the binder to the store's chat id signal.
func (s *Sync) bind() {
	src, ok := s.deps.Session.(store.ChatIDSource)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.effect != nil {
		return
	}
	s.effect = reactive.OnChange(src.ChatID(), func(_, next string) {
		s.StoreChatIDChanged(next)
	})
}

// Close detaches the binder from the store.
func (s *Sync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.effect != nil {
		s.effect.Dispose()
		s.effect = nil
	}
}
