package reactive

import (
	"runtime"
	"sync"
)

// batchState holds per-goroutine batching state.
type batchState struct {
	depth   int
	pending []Listener
}

// batchStates stores per-goroutine batch state keyed by goroutine ID.
var batchStates sync.Map

// getGoroutineID parses the current goroutine ID from the runtime stack header
// ("goroutine <id> [...]").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func currentBatch(create bool) *batchState {
	gid := getGoroutineID()
	if st, ok := batchStates.Load(gid); ok {
		return st.(*batchState)
	}
	if !create {
		return nil
	}
	st := &batchState{}
	batchStates.Store(gid, st)
	return st
}

func getBatchDepth() int {
	st := currentBatch(false)
	if st == nil {
		return 0
	}
	return st.depth
}

func queuePendingUpdate(l Listener) {
	st := currentBatch(true)
	st.pending = append(st.pending, l)
}

// Batch groups signal updates made by fn on the current goroutine. Each
// affected listener is notified once, after the outermost batch returns.
//
//	reactive.Batch(func() {
//	    history.Set(h)
//	    messages.Set(msgs)
//	})
func Batch(fn func()) {
	st := currentBatch(true)
	st.depth++

	defer func() {
		st.depth--
		if st.depth > 0 {
			return
		}
		updates := st.pending
		st.pending = nil
		batchStates.Delete(getGoroutineID())

		seen := make(map[uint64]bool, len(updates))
		for _, l := range updates {
			id := l.ID()
			if seen[id] {
				continue
			}
			seen[id] = true
			l.MarkDirty()
		}
	}()

	fn()
}
