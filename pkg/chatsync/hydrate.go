package chatsync

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/storage"
	"github.com/vango-dev/chatsync/pkg/store"
)

// Phase is a state of the hydration sequence.
type Phase int32

const (
	PhaseStart Phase = iota
	PhaseFetch
	PhaseValidate
	PhasePopulate
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseFetch:
		return "fetch"
	case PhaseValidate:
		return "validate"
	case PhasePopulate:
		return "populate"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Outcome is how a hydration ended.
type Outcome int

const (
	// OutcomeNoID means the URL carried no chat id.
	OutcomeNoID Outcome = iota
	// OutcomeNotFound means the chat has no metadata.
	OutcomeNotFound
	// OutcomeLoaded means every populate step succeeded.
	OutcomeLoaded
	// OutcomeFailed means a fetch or at least one populate step failed.
	OutcomeFailed
	// OutcomeCanceled means the context ended before hydration finished.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoID:
		return "no_id"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeLoaded:
		return "loaded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes a finished hydration.
type Result struct {
	Outcome Outcome
	ChatID  string

	// Snapshot holds what was loaded. It is nil unless Populate ran.
	Snapshot *chat.Snapshot

	// Err carries an internal/errors code: E101 not found, E102 fetch
	// failure, E103 populate failure, E104 canceled.
	Err error
}

// Notification texts.
const (
	msgNotFound   = "Chat not found"
	msgLoadFailed = "Failed to load chat"
)

// Populate step names, used in logs and metrics.
const (
	stepChatID  = "chat_id"
	stepHistory = "history"
	stepModel   = "model"
	stepPrompt  = "prompt"
	stepFiles   = "files"
	stepTitle   = "title"
)

// Phase returns the current hydration phase.
func (s *Sync) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Sync) enter(p Phase, chatID string) {
	s.phase.Store(int32(p))
	s.logger.Debug("hydration phase", "phase", p.String(), "chat_id", chatID)
}

// Mount attaches the URL binder and runs hydration. Only the first call
// hydrates; later calls return the first result. Mount never panics on
// collaborator errors and always leaves the Sync initialized.
func (s *Sync) Mount(ctx context.Context) Result {
	s.once.Do(func() {
		s.bind()
		s.result = s.hydrate(ctx)
	})
	return s.result
}

func (s *Sync) hydrate(ctx context.Context) (res Result) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "chatsync.Hydrate")
	defer func() {
		s.enter(PhaseDone, res.ChatID)
		s.initialized.Store(true)

		s.deps.Metrics.ObserveHydration(res.Outcome.String(), time.Since(start))
		span.SetAttributes(attribute.String("chatsync.outcome", res.Outcome.String()))
		if res.Err != nil && res.Outcome != OutcomeNotFound {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Outcome.String())
		}
		span.End()
	}()

	s.enter(PhaseStart, "")
	id, ok := s.ChatID()
	if !ok {
		return Result{Outcome: OutcomeNoID}
	}
	span.SetAttributes(attribute.String("chatsync.chat_id", id))
	logger := s.logger.With("chat_id", id)

	s.enter(PhaseFetch, id)
	raw, info, err := s.fetch(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return s.canceled(id, ctx.Err())
		}
		logger.Error("chat fetch failed", "error", err)
		return s.fail(ctx, Result{
			Outcome: OutcomeFailed,
			ChatID:  id,
			Err:     errors.New(errors.CodeFetchFailed).Wrap(err),
		})
	}

	s.enter(PhaseValidate, id)
	if info == nil {
		logger.Warn("chat not found")
		res := Result{
			Outcome: OutcomeNotFound,
			ChatID:  id,
			Err:     errors.New(errors.CodeChatNotFound).WithDetail(fmt.Sprintf("no metadata for chat %q", id)),
		}
		if err := s.apply(ctx, func() {
			s.deps.Notifier.Warn(msgNotFound)
			s.ClearChatURLParam()
		}); err != nil {
			return s.canceled(id, err)
		}
		return res
	}

	s.enter(PhasePopulate, id)
	snap, err := s.populate(ctx, id, raw, info)
	if ctx.Err() != nil {
		res := s.canceled(id, ctx.Err())
		res.Snapshot = snap
		return res
	}
	if err != nil {
		logger.Error("chat populate failed", "error", err)
		return s.fail(ctx, Result{
			Outcome:  OutcomeFailed,
			ChatID:   id,
			Snapshot: snap,
			Err:      errors.New(errors.CodePopulateFailed).Wrap(err),
		})
	}

	logger.Info("chat hydrated", "messages", len(snap.Messages), "files", len(snap.Files))
	return Result{Outcome: OutcomeLoaded, ChatID: id, Snapshot: snap}
}

// fetch reads the history content and metadata concurrently.
func (s *Sync) fetch(ctx context.Context, id string) (*chat.RawHistory, *chat.HistoryInfo, error) {
	ctx, span := s.tracer.Start(ctx, "chatsync.Fetch")
	defer span.End()

	var (
		raw  *chat.RawHistory
		info *chat.HistoryInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = s.deps.Engine.GetChatHistory(gctx, id)
		if err != nil {
			return fmt.Errorf("get chat history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		info, err = s.deps.Engine.GetHistoryInfo(gctx, id)
		if err != nil {
			return fmt.Errorf("get history info: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, nil, err
	}
	if raw == nil {
		raw = &chat.RawHistory{}
	}
	return raw, info, nil
}

// populate runs the populate steps in order. Every step runs even when an
// earlier one failed; the failures are joined. It returns early only when
// ctx ends.
func (s *Sync) populate(ctx context.Context, id string, raw *chat.RawHistory, info *chat.HistoryInfo) (*chat.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "chatsync.Populate", trace.WithAttributes(attribute.String("chatsync.chat_id", id)))
	defer span.End()

	snap := &chat.Snapshot{Info: *info, Title: info.Title}
	var errs []error
	stepFailed := func(step string, err error) {
		s.deps.Metrics.StepError(step)
		s.logger.Warn("populate step failed", "chat_id", id, "step", step, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
	}

	// a. chat id
	if err := s.apply(ctx, func() { s.deps.Session.SetChatID(id) }); err != nil {
		return snap, err
	}

	// b. history and messages
	history, messages, err := chat.Transform(*raw)
	if err != nil {
		stepFailed(stepHistory, err)
	} else {
		snap.History, snap.Messages = history, messages
		if err := s.apply(ctx, func() {
			s.deps.Session.SetHistory(history)
			s.deps.Session.SetMessages(messages)
		}); err != nil {
			return snap, err
		}
	}

	// c. last used model
	if p := s.deps.Prefs; p.LastUsedModel != nil && p.SelectedModel != nil && info.Model != "" && p.LastUsedModel.Get() {
		snap.Model = info.Model
		if err := s.apply(ctx, func() { p.SelectedModel.Set(info.Model) }); err != nil {
			return snap, err
		}
	}

	// d. prompt
	if err := s.resolvePrompt(ctx, id, info, snap); err != nil {
		return snap, err
	}

	// e. context files
	if setter, ok := s.deps.Session.(store.ContextFilesSetter); ok {
		files, err := s.deps.Engine.GetSessionFiles(ctx, id)
		switch {
		case ctx.Err() != nil:
			return snap, ctx.Err()
		case err != nil:
			stepFailed(stepFiles, err)
		default:
			snap.Files = files
			if err := s.apply(ctx, func() { setter.SetContextFiles(files) }); err != nil {
				return snap, err
			}
		}
	}

	// f. title
	if err := s.apply(ctx, func() { s.deps.Title.Update(info.Title) }); err != nil {
		return snap, err
	}

	err = stderrors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "populate step failed")
	}
	return snap, err
}

// PromptChoice is the system prompt a chat resolves to.
type PromptChoice struct {
	// Prompt is the stored prompt the chat references, if it was found.
	Prompt *chat.Prompt
	// Text is the system prompt text. It is meaningful only when Set.
	Text string
	// Set is false when the system prompt is to be left alone.
	Set bool
	// LookupErr is the failed prompt lookup that led to the inline fallback.
	LookupErr error
}

// ResolvePrompt picks the system prompt of a chat. A reference that
// resolves to nothing leaves the system prompt alone. A failed lookup, or
// no reference at all, falls back to the inline prompt text.
func ResolvePrompt(ctx context.Context, e storage.Engine, info *chat.HistoryInfo) PromptChoice {
	var choice PromptChoice
	if info.PromptID != "" {
		p, err := e.GetPromptByID(ctx, info.PromptID)
		if err == nil {
			if p == nil {
				return choice
			}
			return PromptChoice{Prompt: p, Text: p.Content, Set: true}
		}
		choice.LookupErr = err
	}
	if info.Prompt != "" {
		choice.Text, choice.Set = info.Prompt, true
	}
	return choice
}

// resolvePrompt applies ResolvePrompt to the stores.
func (s *Sync) resolvePrompt(ctx context.Context, id string, info *chat.HistoryInfo, snap *chat.Snapshot) error {
	choice := ResolvePrompt(ctx, s.deps.Engine, info)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if choice.LookupErr != nil {
		s.deps.Metrics.StepError(stepPrompt)
		s.logger.Warn("prompt lookup failed, using inline prompt", "chat_id", id, "prompt_id", info.PromptID, "error", choice.LookupErr)
	} else if info.PromptID != "" && choice.Prompt == nil {
		s.logger.Debug("referenced prompt not found", "chat_id", id, "prompt_id", info.PromptID)
	}
	if !choice.Set {
		return nil
	}
	snap.SystemPrompt = choice.Text
	if choice.Prompt == nil {
		return s.apply(ctx, func() { s.deps.Settings.SetSystemPrompt(choice.Text) })
	}
	snap.Prompt = choice.Prompt
	return s.apply(ctx, func() {
		s.deps.Session.SetSelectedPrompt(choice.Prompt)
		s.deps.Settings.SetSystemPrompt(choice.Text)
	})
}

// apply runs fn through Dispatch and waits for it. fn is skipped when ctx
// has ended, before or after it was queued.
func (s *Sync) apply(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	s.deps.Dispatch(func() {
		defer close(done)
		if ctx.Err() != nil {
			return
		}
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail runs the failure path: error notification and URL clear. The store
// keeps whatever populate already wrote.
func (s *Sync) fail(ctx context.Context, res Result) Result {
	if err := s.apply(ctx, func() {
		s.deps.Notifier.Error(msgLoadFailed)
		s.ClearChatURLParam()
	}); err != nil {
		canceled := s.canceled(res.ChatID, err)
		canceled.Snapshot = res.Snapshot
		return canceled
	}
	return res
}

func (s *Sync) canceled(id string, cause error) Result {
	s.logger.Debug("hydration canceled", "chat_id", id, "error", cause)
	return Result{
		Outcome: OutcomeCanceled,
		ChatID:  id,
		Err:     errors.New(errors.CodeHydrationAbort).Wrap(cause),
	}
}
