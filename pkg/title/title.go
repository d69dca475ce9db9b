// Package title updates the page title shown by the client.
package title

import (
	"strings"

	"github.com/vango-dev/chatsync/pkg/toast"
)

// EventName is the client event carrying a new document title.
const EventName = "chatsync:title"

// Updater sets the externally visible page title.
type Updater interface {
	Update(title string)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(title string)

// Update implements Updater.
func (f UpdaterFunc) Update(title string) { f(title) }

// Format joins a chat title with the application name. An empty chat title
// yields the application name alone.
func Format(chatTitle, appName string) string {
	chatTitle = strings.TrimSpace(chatTitle)
	switch {
	case chatTitle == "":
		return appName
	case appName == "":
		return chatTitle
	default:
		return chatTitle + " · " + appName
	}
}

// EmitterUpdater emits formatted titles as client events.
type EmitterUpdater struct {
	Emitter toast.Emitter
	AppName string
}

// Update implements Updater.
func (u EmitterUpdater) Update(chatTitle string) {
	u.Emitter.Emit(EventName, map[string]any{
		"title": Format(chatTitle, u.AppName),
	})
}
