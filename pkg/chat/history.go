package chat

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedHistory is returned when raw history content cannot be
// turned into a message sequence.
var ErrMalformedHistory = errors.New("chat: malformed history")

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RawMessage is one node of the stored message tree.
type RawMessage struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parentId,omitempty"`
	ChildrenIDs []string  `json:"childrenIds,omitempty"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Model       string    `json:"model,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// RawHistory is the stored content of a chat: a tree of messages where
// regenerated replies branch from a shared parent. CurrentID names the leaf
// of the branch the user last looked at.
type RawHistory struct {
	Messages  map[string]RawMessage `json:"messages"`
	CurrentID string                `json:"currentId"`
}

// Message is one entry of the rendered conversation.
type Message struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Siblings is the number of alternative replies at this position,
	// this message included.
	Siblings int `json:"siblings"`
}

// History is the UI form of RawHistory: a lookup by id plus the active leaf.
type History struct {
	Messages  map[string]Message `json:"messages"`
	CurrentID string             `json:"currentId"`
}

// Transform converts raw history into the UI history and the ordered message
// list of the current branch (root first). An empty history yields empty
// results.
func Transform(raw RawHistory) (History, []Message, error) {
	h := History{
		Messages:  make(map[string]Message, len(raw.Messages)),
		CurrentID: raw.CurrentID,
	}
	for id, m := range raw.Messages {
		if m.ID != "" && m.ID != id {
			return History{}, nil, fmt.Errorf("%w: message key %q holds id %q", ErrMalformedHistory, id, m.ID)
		}
		h.Messages[id] = Message{
			ID:        id,
			ParentID:  m.ParentID,
			Role:      m.Role,
			Content:   m.Content,
			Model:     m.Model,
			Timestamp: m.Timestamp,
			Siblings:  siblingCount(raw, m),
		}
	}

	if raw.CurrentID == "" {
		if len(raw.Messages) > 0 {
			return History{}, nil, fmt.Errorf("%w: messages without current id", ErrMalformedHistory)
		}
		return h, []Message{}, nil
	}

	var branch []Message
	seen := make(map[string]bool)
	for id := raw.CurrentID; id != ""; {
		if seen[id] {
			return History{}, nil, fmt.Errorf("%w: cycle at %q", ErrMalformedHistory, id)
		}
		seen[id] = true

		m, ok := h.Messages[id]
		if !ok {
			return History{}, nil, fmt.Errorf("%w: missing message %q", ErrMalformedHistory, id)
		}
		branch = append(branch, m)
		id = m.ParentID
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return h, branch, nil
}

func siblingCount(raw RawHistory, m RawMessage) int {
	if m.ParentID == "" {
		return 1
	}
	parent, ok := raw.Messages[m.ParentID]
	if !ok || len(parent.ChildrenIDs) == 0 {
		return 1
	}
	return len(parent.ChildrenIDs)
}
