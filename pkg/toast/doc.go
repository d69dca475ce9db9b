// Package toast provides feedback notifications for chat sessions.
//
// Toasts are custom events pushed to the client over the session
// transport. The client decides how to render them:
//
//	window.addEventListener("chatsync:toast", (e) => {
//	    const { level, message, title } = e.detail;
//	    showToast(level, title ?? message);
//	});
//
// Server-side usage:
//
//	toast.Warning(conn, "Chat not found")
//	toast.WithTitle(conn, toast.TypeError, "History", "Failed to load chat")
//
// Notifier wraps an Emitter with the Warn/Error pair the hydration
// sequence uses.
package toast
