package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/storage"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 4 << 20

// FileUploader stores an uploaded context file and returns its record.
// storage.S3Files implements it.
type FileUploader interface {
	Put(ctx context.Context, chatID, name, contentType string, size int64, body io.Reader) (chat.File, error)
}

// apiError is the JSON body of a failed API request.
type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := apiError{Message: err.Error()}
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		body = apiError{Code: coded.Code, Message: coded.Message}
	}
	writeJSON(w, status, body)
}

// storageError answers a failed storage call.
func (s *Server) storageError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, storage.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, errors.New(errors.CodeStorageClosed).Wrap(err))
		return
	}
	s.logger.Error("storage request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, errors.New(errors.CodeStorageBackend).Wrap(err))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New(errors.CodeBadRequest).Wrap(err)
	}
	return nil
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	infos, err := s.deps.Store.ListHistoryInfo(r.Context())
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	if infos == nil {
		infos = []chat.HistoryInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// chatBody is a chat as the API reads and writes it.
type chatBody struct {
	Info    chat.HistoryInfo `json:"info"`
	History chat.RawHistory  `json:"history"`
	Files   []chat.File      `json:"files,omitempty"`
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	info, err := s.deps.Store.GetHistoryInfo(ctx, id)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, errors.New(errors.CodeChatNotFound))
		return
	}
	history, err := s.deps.Store.GetChatHistory(ctx, id)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	files, err := s.deps.Store.GetSessionFiles(ctx, id)
	if err != nil {
		s.logger.Warn("context files not listed", "chat_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, chatBody{Info: *info, History: *history, Files: files})
}

// createChat stores a chat. A missing info.id gets a fresh one; an
// existing id is overwritten.
func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, _, err := chat.Transform(body.History); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(errors.CodeBadRequest).Wrap(err))
		return
	}
	if body.Info.ID == "" {
		body.Info.ID = chat.NewID()
	}
	now := time.Now()
	if body.Info.CreatedAt.IsZero() {
		body.Info.CreatedAt = now
	}
	body.Info.UpdatedAt = now

	if err := s.deps.Store.SaveChat(r.Context(), body.Info, body.History); err != nil {
		s.storageError(w, r, err)
		return
	}
	info, err := s.deps.Store.GetHistoryInfo(r.Context(), body.Info.ID)
	if err != nil || info == nil {
		info = &body.Info
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteChat(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putPrompt(w http.ResponseWriter, r *http.Request) {
	var p chat.Prompt
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := s.deps.Store.SavePrompt(r.Context(), p); err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// uploadFile stores the raw request body as a context file of the chat.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploader == nil {
		writeError(w, http.StatusNotImplemented, errors.New(errors.CodeNoUploads))
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	info, err := s.deps.Store.GetHistoryInfo(ctx, id)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, errors.New(errors.CodeChatNotFound))
		return
	}
	if r.ContentLength < 0 {
		writeError(w, http.StatusLengthRequired, errors.New(errors.CodeBadRequest).WithDetail("Content-Length is required"))
		return
	}

	f, err := s.deps.Uploader.Put(ctx, id, chi.URLParam(r, "name"), r.Header.Get("Content-Type"), r.ContentLength, r.Body)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	if err := s.deps.Store.AttachFile(ctx, id, f); err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}
