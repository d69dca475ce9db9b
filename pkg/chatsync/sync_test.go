package chatsync

import (
	"context"
	"reflect"
	"testing"

	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/pref"
)

func TestNewRequiresCollaborators(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name string
		mod  func(*Deps)
		want error
	}{
		{"navigator", func(d *Deps) { d.Navigator = nil }, errNoNavigator},
		{"session", func(d *Deps) { d.Session = nil }, errNoSession},
		{"settings", func(d *Deps) { d.Settings = nil }, errNoSettings},
		{"engine", func(d *Deps) { d.Engine = nil }, errNoEngine},
		{"notifier", func(d *Deps) { d.Notifier = nil }, errNoNotifier},
		{"title", func(d *Deps) { d.Title = nil }, errNoTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := h.deps()
			tt.mod(&d)
			if _, err := New(d); err != tt.want {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBinderSilentBeforeHydration(t *testing.T) {
	h := newHarness(t, map[string]string{ParamKey: "abc"})
	h.seed(chat.HistoryInfo{ID: "abc", Title: "T"})
	h.engine.started = make(chan struct{})
	h.engine.release = make(chan struct{})
	s := h.newSync()

	// Before Mount the binder is not attached and the latch is open.
	s.StoreChatIDChanged("early")
	if n := h.patchCount(); n != 0 {
		t.Fatalf("URL written before mount: %d patches", n)
	}

	done := make(chan Result, 1)
	go func() { done <- s.Mount(context.Background()) }()
	<-h.engine.started

	// Hydration is suspended in Fetch: a store change must not reach the URL.
	h.sess.SetChatID("")
	h.sess.SetChatID("racing")
	if n := h.patchCount(); n != 0 {
		t.Fatalf("URL written during hydration: %d patches", n)
	}
	if s.Initialized() {
		t.Fatal("initialized before Done")
	}

	close(h.engine.release)
	res := <-done
	if res.Outcome != OutcomeLoaded {
		t.Fatalf("Outcome = %v (%v)", res.Outcome, res.Err)
	}
	if url, _ := h.urlChat(); url != "abc" || h.sess.CurrentChatID() != "abc" {
		t.Errorf("url=%q store=%q", url, h.sess.CurrentChatID())
	}
}

func TestBinderAfterHydration(t *testing.T) {
	h := newHarness(t, map[string]string{"tab": "settings"})
	s := h.newSync()
	s.Mount(context.Background())

	h.sess.SetChatID("xyz")
	if url, _ := h.urlChat(); url != "xyz" {
		t.Fatalf("url chat = %q, want xyz", url)
	}
	// Only the chat key survives a write.
	if q := h.loc.Query(); !reflect.DeepEqual(q, map[string]string{ParamKey: "xyz"}) {
		t.Errorf("query = %v", q)
	}

	h.sess.SetChatID("")
	if _, ok := h.urlChat(); ok {
		t.Error("url still carries chat after clearing the store")
	}

	// Every write replaces the current entry.
	if hist := h.loc.History(); len(hist) != 1 {
		t.Errorf("history grew: %v", hist)
	}
	for _, p := range h.patches {
		if p.Op != "replace" {
			t.Errorf("patch op = %q", p.Op)
		}
	}
}

func TestBinderSkipsRedundantWrites(t *testing.T) {
	h := newHarness(t, map[string]string{ParamKey: "abc"})
	h.seed(chat.HistoryInfo{ID: "abc"})
	s := h.newSync()
	s.Mount(context.Background())

	s.StoreChatIDChanged("abc")
	if n := h.patchCount(); n != 0 {
		t.Errorf("equal id rewrote the URL: %d patches", n)
	}

	h.loc.Replace(map[string]string{})
	before := h.patchCount()
	s.StoreChatIDChanged("")
	if h.patchCount() != before {
		t.Error("clearing an absent URL param wrote the URL")
	}
}

func TestBinderDetachedAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	s := h.newSync()
	s.Mount(context.Background())
	s.Close()

	h.sess.SetChatID("xyz")
	if _, ok := h.urlChat(); ok {
		t.Error("closed binder wrote the URL")
	}
}

func TestBinderManualNotification(t *testing.T) {
	h := newHarness(t, nil)
	s := h.newSync(func(d *Deps) { d.Session = bareStore{h.sess} })
	s.Mount(context.Background())

	// No ChatIDSource: store changes are not observed.
	h.sess.SetChatID("xyz")
	if _, ok := h.urlChat(); ok {
		t.Fatal("binder subscribed without a ChatIDSource")
	}
	s.StoreChatIDChanged("xyz")
	if url, _ := h.urlChat(); url != "xyz" {
		t.Errorf("url chat = %q", url)
	}
}

func TestExplicitURLParamSetters(t *testing.T) {
	h := newHarness(t, map[string]string{"q": "x"})
	s := h.newSync()

	s.SetChatURLParam("abc")
	if id, ok := s.ChatID(); !ok || id != "abc" {
		t.Fatalf("ChatID() = %q, %v", id, ok)
	}
	if !reflect.DeepEqual(h.loc.Query(), map[string]string{ParamKey: "abc"}) {
		t.Errorf("query = %v", h.loc.Query())
	}

	s.SetChatURLParam("")
	if _, ok := s.ChatID(); ok {
		t.Error("empty id did not clear the param")
	}

	s.SetChatURLParam("def")
	s.ClearChatURLParam()
	if _, ok := s.ChatID(); ok {
		t.Error("ClearChatURLParam left the param")
	}
	if n := h.patchCount(); n != 4 {
		t.Errorf("patches = %d, want 4", n)
	}
}

func TestPreferencesBind(t *testing.T) {
	ctx := context.Background()
	backend := pref.NewMemoryBackend()

	first := NewPreferences()
	if err := first.Bind(ctx, backend); err != nil {
		t.Fatal(err)
	}
	first.LastUsedModel.Set(true)
	first.SelectedModel.Set("m2")

	second := NewPreferences()
	if err := second.Bind(ctx, backend); err != nil {
		t.Fatal(err)
	}
	if !second.LastUsedModel.Get() || second.SelectedModel.Get() != "m2" {
		t.Errorf("restored = %v, %q", second.LastUsedModel.Get(), second.SelectedModel.Get())
	}
	if err := (Preferences{}).Bind(ctx, backend); err != nil {
		t.Errorf("empty preferences: %v", err)
	}
}
