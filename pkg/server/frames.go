package server

import (
	"encoding/json"
	"fmt"
)

// Frame types sent by the client.
const (
	FrameSelectChat = "select_chat"
	FrameNewChat    = "new_chat"
	FrameClearChat  = "clear_chat"
	FramePref       = "pref"
	FramePopState   = "popstate"
)

// Frame types sent by the server.
const (
	FrameURL   = "url"
	FrameEvent = "event"
	FrameState = "state"
	FrameError = "error"
)

// Frame is one JSON message in either direction. Only the fields of its
// Type are set.
type Frame struct {
	Type string `json:"type"`

	// select_chat
	ChatID string `json:"chatId,omitempty"`

	// pref
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// url, popstate
	Op  string `json:"op,omitempty"`
	URL string `json:"url,omitempty"`

	// event
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	// state
	State *State `json:"state,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// State summarizes the session's chat for the client.
type State struct {
	ChatID      string `json:"chatId"`
	Title       string `json:"title"`
	Messages    int    `json:"messages"`
	Initialized bool   `json:"initialized"`

	// Outcome is set on the state frame that follows hydration.
	Outcome string `json:"outcome,omitempty"`
}

// decodeFrame parses and checks a client frame.
func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameSelectChat:
		if f.ChatID == "" {
			return Frame{}, fmt.Errorf("%s: chatId is required", f.Type)
		}
	case FramePref:
		if f.Key == "" || len(f.Value) == 0 {
			return Frame{}, fmt.Errorf("%s: key and value are required", f.Type)
		}
	case FramePopState:
		if f.URL == "" {
			return Frame{}, fmt.Errorf("%s: url is required", f.Type)
		}
	case FrameNewChat, FrameClearChat:
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return f, nil
}

// eventFrame builds an event frame, encoding data as JSON.
func eventFrame(name string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode event %s: %w", name, err)
	}
	return Frame{Type: FrameEvent, Name: name, Data: raw}, nil
}
