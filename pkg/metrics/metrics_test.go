package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("test"))

	c.ObserveHydration("loaded", 20*time.Millisecond)
	c.ObserveHydration("loaded", 10*time.Millisecond)
	c.ObserveHydration("not_found", time.Millisecond)
	c.URLWrite("set")
	c.URLWrite("clear")
	c.URLWrite("clear")
	c.StepError("files")
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	c.WebSocketError("read")

	if got := testutil.ToFloat64(c.hydrations.WithLabelValues("loaded")); got != 2 {
		t.Errorf("loaded hydrations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.urlWrites.WithLabelValues("clear")); got != 2 {
		t.Errorf("clear writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.stepErrors.WithLabelValues("files")); got != 1 {
		t.Errorf("step errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.activeSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.wsErrors.WithLabelValues("read")); got != 1 {
		t.Errorf("ws errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.hydrationDuration); n != 1 {
		t.Errorf("expected one histogram series, got %d", n)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveHydration("loaded", time.Second)
	c.URLWrite("set")
	c.StepError("title")
	c.SessionOpened()
	c.SessionClosed()
	c.WebSocketError("write")
}

func TestMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithSubsystem("sync"))
	c.URLWrite("set")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "chatsync_sync_url_writes_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected chatsync_sync_url_writes_total to be registered")
	}
}
