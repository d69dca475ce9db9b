package reactive

import (
	"sync"
	"testing"
)

type testListener struct {
	id    uint64
	mu    sync.Mutex
	dirty int
}

func newTestListener() *testListener {
	return &testListener{id: nextID()}
}

func (l *testListener) MarkDirty() {
	l.mu.Lock()
	l.dirty++
	l.mu.Unlock()
}

func (l *testListener) ID() uint64 { return l.id }

func (l *testListener) getDirtyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

func TestSignalBasic(t *testing.T) {
	count := NewSignal(0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Peek() != 10 {
		t.Errorf("expected value 10, got %d", count.Peek())
	}
}

func TestSignalNotifiesOnlyOnChange(t *testing.T) {
	name := NewSignal("a")
	listener := newTestListener()
	name.Subscribe(listener)
	name.Subscribe(listener) // deduplicated

	name.Set("a")
	if got := listener.getDirtyCount(); got != 0 {
		t.Fatalf("unchanged Set notified %d times", got)
	}

	name.Set("b")
	if got := listener.getDirtyCount(); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}

	name.Unsubscribe(listener)
	name.Set("c")
	if got := listener.getDirtyCount(); got != 1 {
		t.Fatalf("unsubscribed listener notified, count %d", got)
	}
}

func TestSignalDeepEquals(t *testing.T) {
	list := NewSignal([]string{"x"})
	listener := newTestListener()
	list.Subscribe(listener)

	list.Set([]string{"x"})
	if listener.getDirtyCount() != 0 {
		t.Error("DeepEqual slices should not notify")
	}

	list.Set([]string{"x", "y"})
	if listener.getDirtyCount() != 1 {
		t.Error("changed slice should notify")
	}
}

func TestSignalWithEquals(t *testing.T) {
	sig := NewSignal(1).WithEquals(func(a, b int) bool { return a%2 == b%2 })
	listener := newTestListener()
	sig.Subscribe(listener)

	sig.Set(3)
	if listener.getDirtyCount() != 0 {
		t.Error("custom equality should treat 1 and 3 as equal")
	}
	sig.Set(4)
	if listener.getDirtyCount() != 1 {
		t.Error("custom equality should treat 3 and 4 as different")
	}
}

func TestOnChange(t *testing.T) {
	id := NewSignal("")
	var got [][2]string
	eff := OnChange(id, func(prev, next string) {
		got = append(got, [2]string{prev, next})
	})

	if len(got) != 0 {
		t.Fatalf("OnChange must not deliver the initial value, got %v", got)
	}

	id.Set("abc")
	id.Set("abc")
	id.Set("")

	want := [][2]string{{"", "abc"}, {"abc", ""}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d: got %v, want %v", i, got[i], want[i])
		}
	}

	eff.Dispose()
	eff.Dispose()
	id.Set("later")
	if len(got) != 2 {
		t.Errorf("disposed effect still ran: %v", got)
	}
	if !eff.Disposed() {
		t.Error("Disposed() = false after Dispose")
	}
	if n := id.base.subscriberCount(); n != 0 {
		t.Errorf("expected no subscribers after dispose, got %d", n)
	}
}

func TestOnChangeReentrantWrite(t *testing.T) {
	id := NewSignal(0)
	var seen []int
	OnChange(id, func(prev, next int) {
		seen = append(seen, next)
		if next < 3 {
			id.Set(next + 1)
		}
	})

	id.Set(1)

	want := []int{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("got %v, want %v", seen, want)
			break
		}
	}
}

func TestBatch(t *testing.T) {
	a := NewSignal(0)
	b := NewSignal(0)
	listener := newTestListener()
	a.Subscribe(listener)
	b.Subscribe(listener)

	Batch(func() {
		a.Set(1)
		b.Set(2)
		Batch(func() {
			a.Set(3)
		})
		if listener.getDirtyCount() != 0 {
			t.Error("listener notified inside batch")
		}
	})

	if got := listener.getDirtyCount(); got != 1 {
		t.Errorf("expected a single deduplicated notification, got %d", got)
	}
	if getBatchDepth() != 0 {
		t.Error("batch depth not reset")
	}
}

func TestSignalConcurrentSet(t *testing.T) {
	sig := NewSignal(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	if sig.Get() != 50 {
		t.Errorf("expected 50, got %d", sig.Get())
	}
}
