package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/chatsync"
	"github.com/vango-dev/chatsync/pkg/metrics"
	"github.com/vango-dev/chatsync/pkg/pref"
	"github.com/vango-dev/chatsync/pkg/reactive"
	"github.com/vango-dev/chatsync/pkg/storage"
	"github.com/vango-dev/chatsync/pkg/store"
	"github.com/vango-dev/chatsync/pkg/title"
	"github.com/vango-dev/chatsync/pkg/toast"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

// Notification texts for chat switches requested by the client.
const (
	msgChatNotFound   = "Chat not found"
	msgChatLoadFailed = "Failed to load chat"
)

// Session is one connected browser tab.
type Session struct {
	// Identity
	ID        string
	ClientID  string
	CreatedAt time.Time

	conn    *websocket.Conn
	config  *SessionConfig
	logger  *slog.Logger
	metrics *metrics.Collector

	// Chat state. Only the event loop writes it.
	loc      *urlparam.Location
	store    *store.Session
	settings *store.ModelSettings
	prefs    chatsync.Preferences
	sync     *chatsync.Sync
	engine   storage.Engine
	titles   title.EmitterUpdater
	title    string
	selects  uint64
	outcome  string

	// Channels
	events     chan Frame
	dispatchCh chan func()
	sendCh     chan Frame
	mounted    chan struct{}
	done       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	framesIn  atomic.Int64
	framesOut atomic.Int64

	onClose func(*Session)
}

// sessionParams are the collaborators a Session is built from.
type sessionParams struct {
	ID       string
	ClientID string
	Location *urlparam.Location
	Engine   storage.Engine
	Prefs    pref.Backend
	AppName  string
	Config   *SessionConfig
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Tracer   trace.Tracer
}

// newSession wires the stores, preferences and chat sync of a session. The
// session does nothing until Start.
func newSession(conn *websocket.Conn, p sessionParams) (*Session, error) {
	cfg := p.Config.withDefaults()
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", p.ID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         p.ID,
		ClientID:   p.ClientID,
		CreatedAt:  time.Now(),
		conn:       conn,
		config:     cfg,
		logger:     logger,
		metrics:    p.Metrics,
		loc:        p.Location,
		store:      store.NewSession(),
		settings:   store.NewModelSettings(),
		engine:     p.Engine,
		events:     make(chan Frame, cfg.MaxEventQueue),
		dispatchCh: make(chan func(), cfg.MaxEventQueue),
		sendCh:     make(chan Frame, cfg.MaxEventQueue),
		mounted:    make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.titles = title.EmitterUpdater{Emitter: s, AppName: p.AppName}

	s.prefs = chatsync.NewPreferences(pref.OnPersistError(func(key string, err error) {
		s.logger.Warn("preference not saved", "key", key, "error", err)
	}))
	if p.Prefs != nil {
		if err := s.prefs.Bind(ctx, p.Prefs); err != nil {
			s.logger.Warn("preferences not loaded", "error", err)
		}
	}

	cs, err := chatsync.New(chatsync.Deps{
		Navigator: s.loc,
		Session:   s.store,
		Settings:  s.settings,
		Prefs:     s.prefs,
		Engine:    p.Engine,
		Notifier:  toast.Notifier{Emitter: s},
		Title:     title.UpdaterFunc(s.updateTitle),
		Dispatch:  s.dispatchWait,
		Logger:    logger,
		Metrics:   p.Metrics,
		Tracer:    p.Tracer,
	})
	if err != nil {
		cancel()
		return nil, NewSessionError(p.ID, "create", err)
	}
	s.sync = cs

	s.loc.OnPatch(func(patch urlparam.Patch) {
		s.send(Frame{Type: FrameURL, Op: patch.Op, URL: patch.URL})
	})
	return s, nil
}

// Start launches the session goroutines and the chat hydration.
func (s *Session) Start() {
	go s.ReadLoop()
	go s.WriteLoop()
	go s.EventLoop()
	go s.mount()
}

// mount hydrates the chat named in the address. Hydration blocks on store
// writes queued to the event loop, so it runs on its own goroutine.
func (s *Session) mount() {
	defer close(s.mounted)

	res := s.sync.Mount(s.ctx)
	s.logger.Debug("session mounted", "outcome", res.Outcome.String(), "chat_id", res.ChatID)
	s.dispatchWait(func() {
		s.outcome = res.Outcome.String()
		s.sendState()
	})
}

// ReadLoop decodes client frames and queues them for the event loop.
// It closes the session when the connection fails.
func (s *Session) ReadLoop() {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
				s.metrics.WebSocketError("read")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.framesIn.Add(1)

		frame, err := decodeFrame(msg)
		if err != nil {
			s.logger.Warn("frame decode error", "error", err)
			s.metrics.WebSocketError("decode")
			s.sendError(errors.CodeBadFrame, err.Error())
			continue
		}

		select {
		case s.events <- frame:
		case <-s.done:
			return
		default:
			s.logger.Warn("event queue full, dropping frame", "type", frame.Type)
			s.metrics.WebSocketError("event_queue_full")
		}
	}
}

// WriteLoop writes queued frames and sends heartbeat pings.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Error("write error", "type", frame.Type, "error", err)
				s.metrics.WebSocketError("write")
				s.Close()
				return
			}
			s.framesOut.Add(1)

		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("ping failed", "error", err)
				s.Close()
				return
			}

		case <-s.done:
			return
		}
	}
}

// EventLoop applies client frames and dispatched functions one at a time.
// Client frames wait until hydration has finished, so the chat they act on
// is the hydrated one.
func (s *Session) EventLoop() {
	var events chan Frame
	mounted := s.mounted

	for {
		select {
		case <-mounted:
			events = s.events
			mounted = nil

		case frame := <-events:
			s.safeRun("frame "+frame.Type, func() { s.handleFrame(frame) })

		case fn := <-s.dispatchCh:
			s.safeRun("dispatch", fn)

		case <-s.done:
			return
		}
	}
}

// safeRun runs fn and recovers panics so one bad frame cannot kill the loop.
func (s *Session) safeRun(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in event loop",
				"what", what,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Dispatch queues fn to run on the event loop. It never blocks: fn is
// dropped when the session is closed or the queue is full.
func (s *Session) Dispatch(fn func()) {
	if s.closed.Load() {
		return
	}
	select {
	case s.dispatchCh <- fn:
	case <-s.done:
	default:
		s.logger.Warn("dispatch queue full, discarding callback")
	}
}

// dispatchWait queues fn, waiting for room in the queue. It gives up when
// the session closes. It must not be called from the event loop.
func (s *Session) dispatchWait(fn func()) {
	select {
	case s.dispatchCh <- fn:
	case <-s.done:
	}
}

// Emit sends a named client event. It implements toast.Emitter.
func (s *Session) Emit(name string, data any) {
	frame, err := eventFrame(name, data)
	if err != nil {
		s.logger.Error("event not sent", "name", name, "error", err)
		return
	}
	s.send(frame)
}

// send queues a frame for the write loop.
func (s *Session) send(frame Frame) {
	if s.closed.Load() {
		return
	}
	select {
	case s.sendCh <- frame:
	case <-s.done:
	default:
		s.logger.Warn("send queue full, dropping frame", "type", frame.Type)
		s.metrics.WebSocketError("send_queue_full")
	}
}

func (s *Session) sendError(code, message string) {
	s.send(Frame{Type: FrameError, Code: code, Message: message})
}

// sendState reports the current chat to the client. Event loop only.
func (s *Session) sendState() {
	s.send(Frame{Type: FrameState, State: &State{
		ChatID:      s.store.CurrentChatID(),
		Title:       s.title,
		Messages:    len(s.store.Messages().Peek()),
		Initialized: s.sync.Initialized(),
		Outcome:     s.outcome,
	}})
}

// updateTitle records the chat title and forwards it to the client.
func (s *Session) updateTitle(chatTitle string) {
	s.title = chatTitle
	s.titles.Update(chatTitle)
}

// handleFrame applies one client frame. Event loop only.
func (s *Session) handleFrame(f Frame) {
	s.outcome = ""
	switch f.Type {
	case FrameSelectChat:
		s.selectChat(f.ChatID)

	case FrameNewChat:
		s.resetChat()
		s.store.SetChatID(chat.NewID())
		s.sendState()

	case FrameClearChat:
		s.resetChat()
		s.sendState()

	case FramePref:
		if err := s.setPref(f.Key, f.Value); err != nil {
			s.sendError(errors.CodeBadFrame, err.Error())
		}

	case FramePopState:
		s.popState(f.URL)
	}
}

// resetChat empties the chat state. The URL binder clears the address.
func (s *Session) resetChat() {
	s.selects++
	reactive.Batch(func() {
		s.store.Reset()
		s.settings.SetSystemPrompt("")
	})
	s.updateTitle("")
}

// popState follows a client-side history move to the chat in the new URL.
func (s *Session) popState(raw string) {
	if err := s.loc.Sync(raw); err != nil {
		s.sendError(errors.CodeBadFrame, err.Error())
		return
	}
	id, _ := s.sync.ChatID()
	switch {
	case id == s.store.CurrentChatID():
		s.sendState()
	case id == "":
		s.resetChat()
		s.sendState()
	default:
		s.selectChat(id)
	}
}

func (s *Session) setPref(key string, value json.RawMessage) error {
	switch key {
	case pref.KeySelectedModel:
		var v string
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("pref %s: %w", key, err)
		}
		s.prefs.SelectedModel.Set(v)
	case pref.KeyLastUsedChatModel:
		var v bool
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("pref %s: %w", key, err)
		}
		s.prefs.LastUsedModel.Set(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPref, key)
	}
	return nil
}

// loadedChat is what selectChat reads from storage.
type loadedChat struct {
	info    *chat.HistoryInfo
	history *chat.RawHistory
	prompt  chatsync.PromptChoice
	files   []chat.File
	err     error
}

// selectChat switches the session to chat id. Storage is read off the
// event loop; the result is applied back on it unless a newer switch
// started in the meantime.
func (s *Session) selectChat(id string) {
	if id == s.store.CurrentChatID() {
		s.sendState()
		return
	}
	s.selects++
	seq := s.selects

	go func() {
		loaded := s.loadChat(s.ctx, id)
		s.Dispatch(func() {
			if seq != s.selects {
				return
			}
			s.applyChat(id, loaded)
		})
	}()
}

func (s *Session) loadChat(ctx context.Context, id string) loadedChat {
	var out loadedChat
	out.info, out.err = s.engine.GetHistoryInfo(ctx, id)
	if out.err != nil || out.info == nil {
		return out
	}
	out.history, out.err = s.engine.GetChatHistory(ctx, id)
	if out.err != nil {
		return out
	}
	out.prompt = chatsync.ResolvePrompt(ctx, s.engine, out.info)
	if out.prompt.LookupErr != nil {
		s.logger.Warn("prompt lookup failed, using inline prompt", "chat_id", id, "error", out.prompt.LookupErr)
	}
	files, err := s.engine.GetSessionFiles(ctx, id)
	if err != nil {
		s.logger.Warn("context files not loaded", "chat_id", id, "error", err)
	}
	out.files = files
	return out
}

// applyChat writes a loaded chat into the stores. Event loop only.
func (s *Session) applyChat(id string, c loadedChat) {
	logger := s.logger.With("chat_id", id)
	switch {
	case c.err != nil:
		if s.ctx.Err() != nil {
			return
		}
		logger.Error("chat load failed", "error", c.err)
		toast.Error(s, msgChatLoadFailed)
		s.restoreURL()
		return
	case c.info == nil:
		logger.Warn("chat not found")
		toast.Warning(s, msgChatNotFound)
		s.restoreURL()
		return
	}

	raw := chat.RawHistory{}
	if c.history != nil {
		raw = *c.history
	}
	history, messages, err := chat.Transform(raw)
	if err != nil {
		logger.Error("chat history malformed", "error", err)
		toast.Error(s, msgChatLoadFailed)
		s.restoreURL()
		return
	}

	// An unset prompt choice carries empty Text, the fresh-session default.
	reactive.Batch(func() {
		s.store.SetChatID(id)
		s.store.SetHistory(history)
		s.store.SetMessages(messages)
		s.store.SetSelectedPrompt(c.prompt.Prompt)
		s.store.SetContextFiles(c.files)
		s.settings.SetSystemPrompt(c.prompt.Text)
	})
	if c.info.Model != "" && s.prefs.LastUsedModel.Get() {
		s.prefs.SelectedModel.Set(c.info.Model)
	}
	s.updateTitle(c.info.Title)
	s.sendState()
}

// restoreURL points the address back at the chat the store holds after a
// switch was abandoned.
func (s *Session) restoreURL() {
	current := s.store.CurrentChatID()
	if id, _ := s.sync.ChatID(); id != current {
		s.sync.SetChatURLParam(current)
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	s.cancel()
	s.sync.Close()

	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.conn.Close()

	s.logger.Info("session closed",
		"frames_in", s.framesIn.Load(),
		"frames_out", s.framesOut.Load(),
		"duration", time.Since(s.CreatedAt))

	if s.onClose != nil {
		s.onClose(s)
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Location returns the session's server-side address.
func (s *Session) Location() *urlparam.Location {
	return s.loc
}

// Initialized reports whether the session's chat hydration has finished.
func (s *Session) Initialized() bool {
	return s.sync.Initialized()
}

// SessionStats is a point-in-time view of a session.
type SessionStats struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"clientId"`
	URL       string        `json:"url"`
	FramesIn  int64         `json:"framesIn"`
	FramesOut int64         `json:"framesOut"`
	Age       time.Duration `json:"age"`
}

// Stats returns the session's counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:        s.ID,
		ClientID:  s.ClientID,
		URL:       s.loc.String(),
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		Age:       time.Since(s.CreatedAt),
	}
}
