package store

import (
	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/reactive"
)

// SessionStore is the state surface the synchronization core writes to.
type SessionStore interface {
	CurrentChatID() string
	SetChatID(id string)
	SetHistory(h chat.History)
	SetMessages(msgs []chat.Message)
	SetSelectedPrompt(p *chat.Prompt)
}

// ContextFilesSetter is an optional SessionStore capability. Stores that do
// not render attached files leave it unimplemented.
type ContextFilesSetter interface {
	SetContextFiles(files []chat.File)
}

// ChatIDSource exposes the chat id as a signal so changes can be observed.
type ChatIDSource interface {
	ChatID() *reactive.Signal[string]
}

// SystemPromptSetter sets the active system prompt text of the model settings.
type SystemPromptSetter interface {
	SetSystemPrompt(text string)
}

// Session holds the state of one client session.
type Session struct {
	chatID         *reactive.Signal[string]
	history        *reactive.Signal[chat.History]
	messages       *reactive.Signal[[]chat.Message]
	selectedPrompt *reactive.Signal[*chat.Prompt]
	contextFiles   *reactive.Signal[[]chat.File]
}

// NewSession creates an empty session store.
func NewSession() *Session {
	return &Session{
		chatID:         reactive.NewSignal(""),
		history:        reactive.NewSignal(chat.History{}),
		messages:       reactive.NewSignal([]chat.Message{}),
		selectedPrompt: reactive.NewSignal[*chat.Prompt](nil),
		contextFiles:   reactive.NewSignal([]chat.File{}),
	}
}

// ChatID exposes the chat id signal for subscriptions.
func (s *Session) ChatID() *reactive.Signal[string] { return s.chatID }

// History exposes the history signal.
func (s *Session) History() *reactive.Signal[chat.History] { return s.history }

// Messages exposes the message list signal.
func (s *Session) Messages() *reactive.Signal[[]chat.Message] { return s.messages }

// SelectedPrompt exposes the selected prompt signal.
func (s *Session) SelectedPrompt() *reactive.Signal[*chat.Prompt] { return s.selectedPrompt }

// ContextFiles exposes the context files signal.
func (s *Session) ContextFiles() *reactive.Signal[[]chat.File] { return s.contextFiles }

// CurrentChatID returns the current chat id, or "" when there is none.
func (s *Session) CurrentChatID() string { return s.chatID.Peek() }

// SetChatID sets the current chat id. "" clears it.
func (s *Session) SetChatID(id string) { s.chatID.Set(id) }

// SetHistory replaces the history.
func (s *Session) SetHistory(h chat.History) { s.history.Set(h) }

// SetMessages replaces the message list.
func (s *Session) SetMessages(msgs []chat.Message) {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	s.messages.Set(msgs)
}

// SetSelectedPrompt selects a stored prompt; nil clears the selection.
func (s *Session) SetSelectedPrompt(p *chat.Prompt) { s.selectedPrompt.Set(p) }

// SetContextFiles replaces the attached files.
func (s *Session) SetContextFiles(files []chat.File) {
	if files == nil {
		files = []chat.File{}
	}
	s.contextFiles.Set(files)
}

// Reset returns every field to its empty state, as when starting a new chat.
func (s *Session) Reset() {
	reactive.Batch(func() {
		s.chatID.Set("")
		s.history.Set(chat.History{})
		s.messages.Set([]chat.Message{})
		s.selectedPrompt.Set(nil)
		s.contextFiles.Set([]chat.File{})
	})
}

// ModelSettings holds model configuration for the session.
type ModelSettings struct {
	systemPrompt *reactive.Signal[string]
}

// NewModelSettings creates empty model settings.
func NewModelSettings() *ModelSettings {
	return &ModelSettings{systemPrompt: reactive.NewSignal("")}
}

// SystemPrompt exposes the system prompt signal.
func (m *ModelSettings) SystemPrompt() *reactive.Signal[string] { return m.systemPrompt }

// SetSystemPrompt sets the active system prompt text.
func (m *ModelSettings) SetSystemPrompt(text string) { m.systemPrompt.Set(text) }

var (
	_ SessionStore       = (*Session)(nil)
	_ ContextFilesSetter = (*Session)(nil)
	_ ChatIDSource       = (*Session)(nil)
	_ SystemPromptSetter = (*ModelSettings)(nil)
)
