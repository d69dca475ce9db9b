package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message or pong from
	// the client. Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings. It must be
	// shorter than ReadTimeout. Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue is the buffer size of the event, dispatch and send
	// queues. Default: 256.
	MaxEventQueue int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxEventQueue:     256,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *SessionConfig) withDefaults() *SessionConfig {
	d := DefaultSessionConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.HeartbeatInterval <= 0 || out.HeartbeatInterval >= out.ReadTimeout {
		out.HeartbeatInterval = out.ReadTimeout / 2
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.MaxEventQueue <= 0 {
		out.MaxEventQueue = d.MaxEventQueue
	}
	return out
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g. ":8080"). Default: ":8080".
	Address string

	// AppName is appended to chat titles shown by the client.
	AppName string

	// AllowedOrigins lists the origins allowed to open a WebSocket. An
	// empty list allows same-origin requests only. "*" allows any origin.
	AllowedOrigins []string

	// MaxSessions caps concurrent sessions. 0 means unlimited.
	MaxSessions int

	// ShutdownTimeout bounds graceful shutdown in Serve. Default: 10 seconds.
	ShutdownTimeout time.Duration

	// ClientCookie names the cookie carrying the client ID that scopes
	// preferences. Default: "chatsync_client".
	ClientCookie string

	// SecureCookies sets the Secure flag on the client cookie.
	SecureCookies bool

	// Session is the per-session configuration.
	Session *SessionConfig

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		AppName:         "Chat",
		ShutdownTimeout: 10 * time.Second,
		ClientCookie:    "chatsync_client",
		Session:         DefaultSessionConfig(),
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	clone.Session = c.Session.Clone()
	return &clone
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		c = d
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.ClientCookie == "" {
		out.ClientCookie = d.ClientCookie
	}
	out.Session = out.Session.withDefaults()
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// checkOrigin reports whether the upgrade request's Origin is allowed.
func (c *Config) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
