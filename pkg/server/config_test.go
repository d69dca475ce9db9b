package server

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{Session: &SessionConfig{ReadTimeout: 10 * time.Second, HeartbeatInterval: time.Minute}}).withDefaults()

	if cfg.Address != ":8080" || cfg.ClientCookie != "chatsync_client" || cfg.Logger == nil {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Session.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat = %v, want half the read timeout", cfg.Session.HeartbeatInterval)
	}
	if cfg.Session.MaxEventQueue != 256 || cfg.Session.MaxMessageSize != 64*1024 {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://a.example"}
	clone := cfg.Clone()
	clone.AllowedOrigins[0] = "https://b.example"
	clone.Session.MaxEventQueue = 1

	if cfg.AllowedOrigins[0] != "https://a.example" || cfg.Session.MaxEventQueue == 1 {
		t.Error("Clone shares state with the original")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://example.com", true},
		{"other host", nil, "http://evil.com", false},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"listed case-insensitive", []string{"https://APP.example"}, "https://app.example", true},
		{"wildcard", []string{"*"}, "http://evil.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedOrigins: tt.allowed}
			r := httptest.NewRequest("GET", "http://example.com/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := cfg.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
