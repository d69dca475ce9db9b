// Package store provides the session-scoped application state the chat UI
// renders from.
//
// A Session holds one signal per field (current chat id, history, message
// list, selected prompt, context files). ModelSettings holds the active
// system prompt text. Both are created once per client session and handed
// to the synchronization service explicitly:
//
//	sess := store.NewSession()
//	settings := store.NewModelSettings()
//
//	reactive.OnChange(sess.ChatID(), func(prev, next string) { ... })
//	sess.SetChatID("abc123")
//
// An empty chat id means no current session.
package store
