package reactive

import "sync/atomic"

// Effect runs a callback after its source signal changes.
// Effects are created with OnChange and released with Dispose.
type Effect struct {
	id uint64

	run    func()
	detach func()

	// pending is set on every notification; running guards re-entry so a
	// change made from inside the callback is delivered after it returns.
	pending  atomic.Bool
	running  atomic.Bool
	disposed atomic.Bool
}

// MarkDirty runs the effect. Implements Listener.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}
	e.pending.Store(true)
	for {
		if !e.running.CompareAndSwap(false, true) {
			return
		}
		for e.pending.Swap(false) && !e.disposed.Load() {
			e.run()
		}
		e.running.Store(false)
		if !e.pending.Load() || e.disposed.Load() {
			return
		}
	}
}

// ID implements Listener.
func (e *Effect) ID() uint64 {
	return e.id
}

// Dispose unsubscribes the effect. Safe to call more than once.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}
	if e.detach != nil {
		e.detach()
	}
}

// Disposed reports whether Dispose has been called.
func (e *Effect) Disposed() bool {
	return e.disposed.Load()
}

// OnChange subscribes fn to later changes of sig. The current value is not
// delivered; fn receives the value seen before the change and the new value.
// Nested changes made from inside fn are delivered in order once fn returns.
func OnChange[T any](sig *Signal[T], fn func(prev, next T)) *Effect {
	last := sig.Peek()
	e := &Effect{id: nextID()}
	e.run = func() {
		next := sig.Peek()
		if sig.equals(last, next) {
			return
		}
		prev := last
		last = next
		fn(prev, next)
	}
	e.detach = func() { sig.Unsubscribe(e) }
	sig.Subscribe(e)
	return e
}
