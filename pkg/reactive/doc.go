// Package reactive provides the minimal signal runtime used by chatsync stores.
//
// A Signal holds a value and notifies its listeners when Set changes it.
// OnChange attaches an Effect that receives every later (previous, next) pair:
//
//	id := reactive.NewSignal("")
//	eff := reactive.OnChange(id, func(prev, next string) {
//	    log.Printf("chat changed %q -> %q", prev, next)
//	})
//	defer eff.Dispose()
//
// Batch coalesces notifications so a listener observes a group of writes once.
// Batching state is tracked per goroutine.
package reactive
