// Package chat defines the chat session model shared by storage, stores and
// the hydration sequence.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// HistoryInfo is the metadata row of a chat session.
type HistoryInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Model is the model last used in the session, if any.
	Model string `json:"model,omitempty"`

	// PromptID references a stored Prompt. Prompt carries inline system
	// prompt text for sessions that were not started from a stored prompt.
	PromptID string `json:"promptId,omitempty"`
	Prompt   string `json:"prompt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Prompt is a stored system prompt.
type Prompt struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// File is a context file attached to a session.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Snapshot is the assembled result of hydrating one session.
// It is replaced as a whole on every hydration.
type Snapshot struct {
	Info         HistoryInfo `json:"info"`
	History      History     `json:"history"`
	Messages     []Message   `json:"messages"`
	Prompt       *Prompt     `json:"prompt,omitempty"`
	SystemPrompt string      `json:"systemPrompt,omitempty"`
	Model        string      `json:"model,omitempty"`
	Files        []File      `json:"files,omitempty"`
	Title        string      `json:"title"`
}
