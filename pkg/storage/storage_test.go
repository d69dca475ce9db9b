package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/chatsync/pkg/chat"
)

func sampleHistory() chat.RawHistory {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return chat.RawHistory{
		CurrentID: "m2",
		Messages: map[string]chat.RawMessage{
			"m1": {ID: "m1", Role: chat.RoleUser, Content: "hi", ChildrenIDs: []string{"m2"}, Timestamp: ts},
			"m2": {ID: "m2", ParentID: "m1", Role: chat.RoleAssistant, Content: "hello", Model: "m-large", Timestamp: ts},
		},
	}
}

// runStoreContract exercises the behavior every Store implementation shares.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("MissingChat", func(t *testing.T) {
		info, err := s.GetHistoryInfo(ctx, "nope")
		if err != nil {
			t.Fatalf("GetHistoryInfo: %v", err)
		}
		if info != nil {
			t.Fatalf("expected nil info, got %+v", info)
		}
		h, err := s.GetChatHistory(ctx, "nope")
		if err != nil {
			t.Fatalf("GetChatHistory: %v", err)
		}
		if h == nil || len(h.Messages) != 0 {
			t.Fatalf("expected empty history, got %+v", h)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		info := chat.HistoryInfo{ID: "c1", Title: "First", Model: "m-large", PromptID: "p1", CreatedAt: created, UpdatedAt: created}
		if err := s.SaveChat(ctx, info, sampleHistory()); err != nil {
			t.Fatalf("SaveChat: %v", err)
		}

		got, err := s.GetHistoryInfo(ctx, "c1")
		if err != nil || got == nil {
			t.Fatalf("GetHistoryInfo: %v %v", got, err)
		}
		if got.Title != "First" || got.Model != "m-large" || got.PromptID != "p1" {
			t.Errorf("unexpected info: %+v", got)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}

		h, err := s.GetChatHistory(ctx, "c1")
		if err != nil {
			t.Fatalf("GetChatHistory: %v", err)
		}
		if h.CurrentID != "m2" || len(h.Messages) != 2 {
			t.Fatalf("unexpected history: %+v", h)
		}
		if h.Messages["m2"].Content != "hello" {
			t.Errorf("m2 content = %q", h.Messages["m2"].Content)
		}
	})

	t.Run("SaveKeepsCreatedAt", func(t *testing.T) {
		later := created.Add(time.Hour)
		info := chat.HistoryInfo{ID: "c1", Title: "Renamed", UpdatedAt: later}
		if err := s.SaveChat(ctx, info, sampleHistory()); err != nil {
			t.Fatalf("SaveChat: %v", err)
		}
		got, _ := s.GetHistoryInfo(ctx, "c1")
		if got.Title != "Renamed" {
			t.Errorf("Title = %q", got.Title)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt changed to %v", got.CreatedAt)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		newer := chat.HistoryInfo{ID: "c2", Title: "Second", CreatedAt: created, UpdatedAt: created.Add(2 * time.Hour)}
		if err := s.SaveChat(ctx, newer, chat.RawHistory{}); err != nil {
			t.Fatalf("SaveChat: %v", err)
		}
		infos, err := s.ListHistoryInfo(ctx)
		if err != nil {
			t.Fatalf("ListHistoryInfo: %v", err)
		}
		if len(infos) != 2 || infos[0].ID != "c2" || infos[1].ID != "c1" {
			t.Fatalf("unexpected order: %+v", infos)
		}
	})

	t.Run("Prompts", func(t *testing.T) {
		if p, err := s.GetPromptByID(ctx, "p1"); err != nil || p != nil {
			t.Fatalf("expected (nil, nil), got (%v, %v)", p, err)
		}
		if err := s.SavePrompt(ctx, chat.Prompt{ID: "p1", Title: "Pirate", Content: "Talk like a pirate"}); err != nil {
			t.Fatalf("SavePrompt: %v", err)
		}
		if err := s.SavePrompt(ctx, chat.Prompt{ID: "p1", Title: "Pirate", Content: "Arr"}); err != nil {
			t.Fatalf("SavePrompt update: %v", err)
		}
		p, err := s.GetPromptByID(ctx, "p1")
		if err != nil || p == nil {
			t.Fatalf("GetPromptByID: %v %v", p, err)
		}
		if p.Content != "Arr" {
			t.Errorf("Content = %q, want updated", p.Content)
		}
	})

	t.Run("Files", func(t *testing.T) {
		files, err := s.GetSessionFiles(ctx, "c1")
		if err != nil {
			t.Fatalf("GetSessionFiles: %v", err)
		}
		if len(files) != 0 {
			t.Fatalf("expected no files, got %v", files)
		}
		if err := s.AttachFile(ctx, "c1", chat.File{ID: "f1", Name: "a.txt", Size: 3}); err != nil {
			t.Fatalf("AttachFile: %v", err)
		}
		if err := s.AttachFile(ctx, "c1", chat.File{ID: "f1", Name: "a.txt", Size: 4}); err != nil {
			t.Fatalf("AttachFile again: %v", err)
		}
		files, _ = s.GetSessionFiles(ctx, "c1")
		if len(files) != 1 || files[0].Size != 4 {
			t.Fatalf("unexpected files: %+v", files)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.DeleteChat(ctx, "c1"); err != nil {
			t.Fatalf("DeleteChat: %v", err)
		}
		if info, _ := s.GetHistoryInfo(ctx, "c1"); info != nil {
			t.Errorf("chat still present: %+v", info)
		}
		if files, _ := s.GetSessionFiles(ctx, "c1"); len(files) != 0 {
			t.Errorf("files still present: %+v", files)
		}
		if err := s.DeleteChat(ctx, "c1"); err != nil {
			t.Errorf("deleting a missing chat: %v", err)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := s.GetHistoryInfo(ctx, "c2"); !errors.Is(err, ErrClosed) {
			t.Errorf("GetHistoryInfo after close: %v", err)
		}
		if err := s.SaveChat(ctx, chat.HistoryInfo{ID: "x"}, chat.RawHistory{}); !errors.Is(err, ErrClosed) {
			t.Errorf("SaveChat after close: %v", err)
		}
	})
}

func TestMemoryEngine(t *testing.T) {
	runStoreContract(t, NewMemoryEngine())
}

func TestMemoryEngineCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryEngine()
	h := sampleHistory()
	if err := m.SaveChat(ctx, chat.HistoryInfo{ID: "c"}, h); err != nil {
		t.Fatal(err)
	}
	h.Messages["m3"] = chat.RawMessage{ID: "m3"}

	got, _ := m.GetChatHistory(ctx, "c")
	if len(got.Messages) != 2 {
		t.Fatalf("stored history aliased caller map: %d messages", len(got.Messages))
	}
	got.Messages["m1"] = chat.RawMessage{ID: "m1", Content: "mutated"}

	again, _ := m.GetChatHistory(ctx, "c")
	if again.Messages["m1"].Content != "hi" {
		t.Error("returned history aliased stored map")
	}
}

func TestWithFiles(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryEngine()
	_ = m.AttachFile(ctx, "c", chat.File{ID: "local"})

	src := fileSourceFunc(func(_ context.Context, id string) ([]chat.File, error) {
		return []chat.File{{ID: "remote-" + id}}, nil
	})
	s := WithFiles(m, src)

	files, err := s.GetSessionFiles(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].ID != "remote-c" {
		t.Fatalf("expected files from source, got %+v", files)
	}
	if err := s.SaveChat(ctx, chat.HistoryInfo{ID: "c"}, chat.RawHistory{}); err != nil {
		t.Fatalf("writes should reach the wrapped store: %v", err)
	}
	if info, _ := m.GetHistoryInfo(ctx, "c"); info == nil {
		t.Error("wrapped store did not receive the chat")
	}
}

type fileSourceFunc func(ctx context.Context, id string) ([]chat.File, error)

func (f fileSourceFunc) GetSessionFiles(ctx context.Context, id string) ([]chat.File, error) {
	return f(ctx, id)
}
