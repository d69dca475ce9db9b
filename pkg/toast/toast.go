package toast

// EventName is the event name dispatched for toasts.
// Client-side code should listen for this event.
const EventName = "chatsync:toast"

// Emitter sends a named custom event to the client.
type Emitter interface {
	Emit(name string, data any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, data any)

// Emit implements Emitter.
func (f EmitterFunc) Emit(name string, data any) { f(name, data) }

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Show displays a toast notification to the user.
// Uses e.Emit to send a custom event to the client.
//
// The client receives a CustomEvent with:
//   - event.type = "chatsync:toast"
//   - event.detail = { level: "success|error|warning|info", message: "..." }
func Show(e Emitter, level Type, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"message": message,
	})
}

// Success shows a success toast.
//
//	toast.Success(e, "Chat saved")
func Success(e Emitter, message string) {
	Show(e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(e, "Failed to load chat")
func Error(e Emitter, message string) {
	Show(e, TypeError, message)
}

// Warning shows a warning toast.
//
//	toast.Warning(e, "Chat not found")
func Warning(e Emitter, message string) {
	Show(e, TypeWarning, message)
}

// Info shows an info toast.
//
//	toast.Info(e, "New chat started")
func Info(e Emitter, message string) {
	Show(e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(e, toast.TypeSuccess, "Settings", "Your changes have been saved.")
func WithTitle(e Emitter, level Type, title, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"title":   title,
		"message": message,
	})
}

// WithAction shows a toast with an action button.
//
//	toast.WithAction(e, toast.TypeInfo, "Undo available", "Click to undo", "undo")
func WithAction(e Emitter, level Type, message, actionLabel, actionID string) {
	e.Emit(EventName, map[string]any{
		"level":       string(level),
		"message":     message,
		"actionLabel": actionLabel,
		"actionID":    actionID,
	})
}

// Custom shows a toast with custom data.
// Use this for advanced toast configurations.
func Custom(e Emitter, data map[string]any) {
	e.Emit(EventName, data)
}

// Notifier adapts an Emitter to the fire-and-forget warn/error surface the
// chat hydration reports through.
type Notifier struct {
	Emitter Emitter
}

// Warn shows a warning toast.
func (n Notifier) Warn(message string) {
	Warning(n.Emitter, message)
}

// Error shows an error toast.
func (n Notifier) Error(message string) {
	Error(n.Emitter, message)
}
