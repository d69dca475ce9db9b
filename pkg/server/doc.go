// Package server hosts chat sessions over WebSocket.
//
// Each browser tab opens one WebSocket to /ws. The server keeps the tab's
// address on its side as a urlparam.Location and ships URL patches, toasts
// and title changes back as JSON frames. A chatsync.Sync per session keeps
// the address and the session store in step and hydrates the chat named in
// the address when the session starts.
//
// # Architecture
//
// Each session runs three goroutines:
//
//   - ReadLoop: decodes client frames and queues them for the event loop
//   - WriteLoop: writes queued frames and sends heartbeat pings
//   - EventLoop: applies client frames and dispatched store writes, one at a time
//
// Store state is only touched on the event loop. Work running elsewhere,
// such as chat hydration, reaches it through Session.Dispatch.
//
// # Frames
//
// Client to server:
//
//	{"type":"select_chat","chatId":"abc"}
//	{"type":"new_chat"}
//	{"type":"clear_chat"}
//	{"type":"pref","key":"selectedModel","value":"gpt-4o"}
//	{"type":"popstate","url":"/?chat=abc"}
//
// Server to client:
//
//	{"type":"url","op":"replace","url":"/?chat=abc"}
//	{"type":"event","name":"chatsync:toast","data":{...}}
//	{"type":"state","state":{"chatId":"abc","title":"...","messages":2}}
//	{"type":"error","code":"E301","message":"..."}
//
// # HTTP API
//
// Next to /ws the server exposes a small JSON API over the chat storage
// (/api/chats, /api/prompts), /healthz and Prometheus metrics at /metrics.
//
// # Usage
//
//	srv, err := server.New(server.DefaultConfig(), server.Deps{Store: engine})
//	if err != nil {
//	    return err
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	return srv.Serve(ctx)
package server
