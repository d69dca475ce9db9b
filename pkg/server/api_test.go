package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-dev/chatsync/pkg/chat"
)

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestAPIChats(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/chats", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty list = %d %s", rec.Code, rec.Body.String())
	}

	body := `{"info":{"title":"Plans","prompt":"be brief"},"history":{"messages":{"m1":{"id":"m1","role":"user","content":"hi"}},"currentId":"m1"}}`
	rec = s.do(t, http.MethodPost, "/api/chats", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[chat.HistoryInfo](t, rec)
	if created.ID == "" || created.Title != "Plans" || created.CreatedAt.IsZero() {
		t.Errorf("created = %+v", created)
	}

	rec = s.do(t, http.MethodGet, "/api/chats/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}
	got := decode[chatBody](t, rec)
	if got.Info.Prompt != "be brief" || got.History.CurrentID != "m1" || len(got.History.Messages) != 1 {
		t.Errorf("got = %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/chats", "")
	if list := decode[[]chat.HistoryInfo](t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	rec = s.do(t, http.MethodDelete, "/api/chats/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/chats/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", rec.Code)
	}
	if e := decode[apiError](t, rec); e.Code != "E101" {
		t.Errorf("code = %q, want E101", e.Code)
	}
}

func TestAPICreateRejectsBadBodies(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown field", `{"bogus":1}`},
		{"malformed history", `{"info":{"id":"x"},"history":{"messages":{"m1":{"id":"m1","parentId":"gone"}},"currentId":"m1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/chats", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if e := decode[apiError](t, rec); e.Code != "E303" {
				t.Errorf("code = %q, want E303", e.Code)
			}
		})
	}
}

func TestAPIPutPrompt(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPut, "/api/prompts/p1", `{"title":"Terse","content":"Answer briefly."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d %s", rec.Code, rec.Body.String())
	}
	p, err := s.engine.GetPromptByID(context.Background(), "p1")
	if err != nil || p == nil || p.Content != "Answer briefly." {
		t.Fatalf("stored prompt = %+v, %v", p, err)
	}
}

func TestAPIStorageClosed(t *testing.T) {
	s := newTestServer(t)
	s.engine.Close()

	rec := s.do(t, http.MethodGet, "/api/chats", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decode[apiError](t, rec); e.Code != "E201" {
		t.Errorf("code = %q, want E201", e.Code)
	}
}

type fakeUploader struct {
	chatID, name, contentType string
	body                      []byte
}

func (u *fakeUploader) Put(_ context.Context, chatID, name, contentType string, size int64, body io.Reader) (chat.File, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return chat.File{}, err
	}
	u.chatID, u.name, u.contentType, u.body = chatID, name, contentType, data
	return chat.File{ID: name, Name: name, Size: size, ContentType: contentType}, nil
}

func TestAPIUploadFile(t *testing.T) {
	up := &fakeUploader{}
	s := newTestServer(t, func(_ *Config, d *Deps) { d.Uploader = up })
	s.seed(t, "c1", "Hello")

	req := httptest.NewRequest(http.MethodPut, "/api/chats/c1/files/notes.txt", bytes.NewReader([]byte("abc")))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body.String())
	}
	if up.chatID != "c1" || up.name != "notes.txt" || string(up.body) != "abc" || up.contentType != "text/plain" {
		t.Errorf("uploader got %+v", up)
	}

	files, err := s.engine.GetSessionFiles(context.Background(), "c1")
	if err != nil || len(files) != 1 || files[0].Name != "notes.txt" || files[0].Size != 3 {
		t.Errorf("attached files = %+v, %v", files, err)
	}

	rec = s.do(t, http.MethodPut, "/api/chats/nope/files/a.txt", "x")
	if rec.Code != http.StatusNotFound {
		t.Errorf("upload to missing chat = %d", rec.Code)
	}
}

func TestAPIUploadWithoutUploader(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "c1", "Hello")
	rec := s.do(t, http.MethodPut, "/api/chats/c1/files/a.txt", "x")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decode[apiError](t, rec); e.Code != "E304" {
		t.Errorf("code = %q, want E304", e.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["sessions"] != float64(0) {
		t.Errorf("body = %v", body)
	}
}
