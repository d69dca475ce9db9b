package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chatsync"
	"github.com/vango-dev/chatsync/pkg/metrics"
	"github.com/vango-dev/chatsync/pkg/middleware"
	"github.com/vango-dev/chatsync/pkg/pref"
	"github.com/vango-dev/chatsync/pkg/storage"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

// Deps are the collaborators of a Server.
type Deps struct {
	// Store holds chats and prompts. Required.
	Store storage.Store

	// Prefs persists preferences, scoped per client. Default: in memory.
	Prefs pref.Backend

	// Uploader stores uploaded context files. Without it uploads answer 501.
	Uploader FileUploader

	// Registry collects the HTTP and sync metrics served at /metrics.
	// Default: a new registry.
	Registry *prometheus.Registry

	// Metrics records sync metrics. Default: a collector on Registry.
	Metrics *metrics.Collector

	// Tracer traces HTTP requests and hydrations. Default: the global provider.
	Tracer trace.Tracer
}

// Server is the chat session host.
type Server struct {
	config   *Config
	deps     Deps
	logger   *slog.Logger
	manager  *Manager
	upgrader websocket.Upgrader
	router   chi.Router

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a Server. The config is copied and completed with defaults.
func New(config *Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	config = config.withDefaults()
	if deps.Prefs == nil {
		deps.Prefs = pref.NewMemoryBackend()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(metrics.WithRegistry(deps.Registry))
	}

	s := &Server{
		config:  config,
		deps:    deps,
		logger:  config.Logger.With("component", "server"),
		manager: NewManager(config.MaxSessions, deps.Metrics, config.Logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     config.checkOrigin,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	otelOpts := []middleware.OTelOption{
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	}
	if s.deps.Tracer != nil {
		otelOpts = append(otelOpts, middleware.WithTracer(s.deps.Tracer))
	}
	r.Use(
		chimw.Recoverer,
		middleware.OpenTelemetry(otelOpts...),
		middleware.Prometheus(middleware.WithRegistry(s.deps.Registry)),
	)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	r.Get("/ws", s.HandleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", s.listChats)
		r.Post("/chats", s.createChat)
		r.Get("/chats/{id}", s.getChat)
		r.Delete("/chats/{id}", s.deleteChat)
		r.Put("/chats/{id}/files/{name}", s.uploadFile)
		r.Put("/prompts/{id}", s.putPrompt)
	})
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the session manager.
func (s *Server) Manager() *Manager {
	return s.manager
}

// HandleWebSocket upgrades the request and starts a session.
//
// The session's address is taken from the "url" query parameter (the page
// URL, e.g. /ws?url=%2F%3Fchat%3Dabc) or else from a "chat" parameter on
// the upgrade request itself.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.manager.Full() {
		writeError(w, http.StatusServiceUnavailable, errors.New(errors.CodeSessionLimit))
		return
	}

	loc, err := initialLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New(errors.CodeBadRequest).Wrap(err))
		return
	}

	clientID, header := s.clientID(r)
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Warn("websocket upgrade failed", "error", err)
		s.deps.Metrics.WebSocketError("upgrade")
		return
	}

	sess, err := newSession(conn, sessionParams{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Location: loc,
		Engine:   s.deps.Store,
		Prefs:    pref.Prefixed(s.deps.Prefs, "client:"+clientID),
		AppName:  s.config.AppName,
		Config:   s.config.Session,
		Logger:   s.config.Logger,
		Metrics:  s.deps.Metrics,
		Tracer:   s.deps.Tracer,
	})
	if err != nil {
		s.logger.Error("session setup failed", "error", err)
		closeConn(conn, websocket.CloseInternalServerErr, "session setup failed")
		return
	}

	if err := s.manager.Add(sess); err != nil {
		s.logger.Warn("session rejected", "error", err)
		closeConn(conn, websocket.CloseTryAgainLater, err.Error())
		return
	}
	sess.Start()
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	conn.Close()
}

func initialLocation(r *http.Request) (*urlparam.Location, error) {
	q := r.URL.Query()
	if raw := q.Get("url"); raw != "" {
		return urlparam.Parse(raw)
	}
	params := map[string]string{}
	if id := q.Get(chatsync.ParamKey); id != "" {
		params[chatsync.ParamKey] = id
	}
	return urlparam.NewLocation("/", params), nil
}

// clientID returns the client ID from the request cookie, minting one when
// it is missing or invalid. The returned header sets the new cookie.
func (s *Server) clientID(r *http.Request) (string, http.Header) {
	if c, err := r.Cookie(s.config.ClientCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), nil
		}
	}
	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     s.config.ClientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return id, http.Header{"Set-Cookie": []string{cookie.String()}}
}

// Serve listens on the configured address and serves until ctx ends, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("server listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes every session, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down", "sessions", s.manager.Count())

	err := s.manager.Shutdown(ctx)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		err = stderrors.Join(err, srv.Shutdown(ctx))
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}
