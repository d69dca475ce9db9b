// Package chatsync keeps the current chat of a client session consistent
// between the address bar ("chat" query parameter) and the session store.
//
// A Sync is built once per client session from explicit collaborators:
//
//	s, err := chatsync.New(chatsync.Deps{
//		Navigator: loc,
//		Session:   sess,
//		Settings:  settings,
//		Prefs:     chatsync.NewPreferences(),
//		Engine:    engine,
//		Notifier:  toast.Notifier{Emitter: emitter},
//		Title:     title.EmitterUpdater{Emitter: emitter, AppName: "Chat"},
//	})
//	res := s.Mount(ctx)
//
// Mount runs the hydration sequence exactly once:
//
//	Start → Fetch → Validate → Populate → Done
//
// Start reads the chat id from the URL. Fetch loads the history content and
// metadata. Validate handles a missing chat (warning, URL cleared). Populate
// writes the session into the stores step by step; a failing step does not
// stop later steps. Done latches the session as initialized whatever the
// outcome.
//
// Until Done, store chat id changes are not reflected into the URL so an
// empty store can't clobber the id hydration is about to read. After Done,
// every store change is mirrored with a replace navigation whose parameter
// set contains only "chat".
//
// Store writes run through Deps.Dispatch. Hosts with an event loop pass a
// function that runs the write on the loop; Mount must then be called from
// another goroutine.
package chatsync
