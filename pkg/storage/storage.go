package storage

import (
	"context"
	"errors"

	"github.com/vango-dev/chatsync/pkg/chat"
)

// ErrClosed is returned when operations are attempted on a closed store.
var ErrClosed = errors.New("storage: closed")

// Engine is the read surface of the chat storage.
// Implementations must be safe for concurrent use.
type Engine interface {
	// GetChatHistory returns the raw history content of a chat.
	// A missing chat yields an empty history, not an error.
	GetChatHistory(ctx context.Context, id string) (*chat.RawHistory, error)

	// GetHistoryInfo returns chat metadata, or (nil, nil) if the chat doesn't exist.
	GetHistoryInfo(ctx context.Context, id string) (*chat.HistoryInfo, error)

	// GetPromptByID returns a stored prompt, or (nil, nil) if it doesn't exist.
	GetPromptByID(ctx context.Context, id string) (*chat.Prompt, error)

	// GetSessionFiles returns the files attached to a chat.
	GetSessionFiles(ctx context.Context, id string) ([]chat.File, error)
}

// Writer is the write surface of the chat storage.
type Writer interface {
	// SaveChat creates or replaces a chat.
	SaveChat(ctx context.Context, info chat.HistoryInfo, history chat.RawHistory) error

	// DeleteChat removes a chat and its attached file records.
	// Deleting a missing chat is not an error.
	DeleteChat(ctx context.Context, id string) error

	// ListHistoryInfo returns the metadata of all chats, most recently updated first.
	ListHistoryInfo(ctx context.Context) ([]chat.HistoryInfo, error)

	// SavePrompt creates or replaces a stored prompt.
	SavePrompt(ctx context.Context, p chat.Prompt) error

	// AttachFile records a file as attached to a chat.
	AttachFile(ctx context.Context, chatID string, f chat.File) error
}

// Store combines Engine and Writer.
type Store interface {
	Engine
	Writer

	// Close releases any resources held by the store.
	Close() error
}

// FileSource lists the files attached to a chat.
type FileSource interface {
	GetSessionFiles(ctx context.Context, chatID string) ([]chat.File, error)
}

type withFiles struct {
	Store
	files FileSource
}

// WithFiles returns s with GetSessionFiles served by files.
func WithFiles(s Store, files FileSource) Store {
	return withFiles{Store: s, files: files}
}

func (w withFiles) GetSessionFiles(ctx context.Context, id string) ([]chat.File, error) {
	return w.files.GetSessionFiles(ctx, id)
}
