package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chat"
)

// seedFile is the import format of the seed command.
type seedFile struct {
	Prompts []chat.Prompt `json:"prompts"`
	Chats   []seedChat    `json:"chats"`
}

type seedChat struct {
	Info    chat.HistoryInfo `json:"info"`
	History chat.RawHistory  `json:"history"`
	Files   []seedAttachment `json:"files,omitempty"`
}

// seedAttachment is a context file. With Path set the file is uploaded to
// the configured bucket; otherwise File is recorded as is.
type seedAttachment struct {
	chat.File
	Path string `json:"path,omitempty"`
}

func seedCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Import chats and prompts from a JSON file",
		Long: `Import chats and prompts from a JSON file of the form

  {
    "prompts": [{"id": "p1", "title": "Terse", "content": "Answer briefly."}],
    "chats": [{
      "info": {"id": "c1", "title": "Plans", "promptId": "p1"},
      "history": {"messages": {...}, "currentId": "m2"},
      "files": [{"path": "notes/plan.md"}]
    }]
  }

Existing chats and prompts with the same IDs are overwritten. File paths
are relative to the seed file and need files.bucket to be configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			chats, prompts, err := runSeed(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			success("Imported %d chats and %d prompts", chats, prompts)
			info("Storage: %s %s", cfg.Storage.Driver, cfg.Storage.DSN)
			return nil
		},
	}
	return cmd
}

func readSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, errors.New(errors.CodeBadRequest).
			WithDetail(fmt.Sprintf("%s: %v", filepath.Base(path), err))
	}
	for i, c := range sf.Chats {
		if c.Info.ID == "" {
			return nil, errors.New(errors.CodeBadRequest).
				WithDetail(fmt.Sprintf("chats[%d] has no info.id", i))
		}
		if _, _, err := chat.Transform(c.History); err != nil {
			return nil, errors.New(errors.CodeBadRequest).
				WithDetail(fmt.Sprintf("chat %s: %v", c.Info.ID, err))
		}
	}
	return &sf, nil
}

func runSeed(ctx context.Context, cfg *config.Config, path string) (chats, prompts int, err error) {
	sf, err := readSeed(path)
	if err != nil {
		return 0, 0, err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return 0, 0, err
	}
	defer b.close()

	for _, p := range sf.Prompts {
		if err := b.store.SavePrompt(ctx, p); err != nil {
			return chats, prompts, err
		}
		prompts++
	}

	now := time.Now()
	for _, c := range sf.Chats {
		if c.Info.CreatedAt.IsZero() {
			c.Info.CreatedAt = now
		}
		if c.Info.UpdatedAt.IsZero() {
			c.Info.UpdatedAt = c.Info.CreatedAt
		}
		if err := b.store.SaveChat(ctx, c.Info, c.History); err != nil {
			return chats, prompts, err
		}
		for _, a := range c.Files {
			f, err := attachment(ctx, b, filepath.Dir(path), c.Info.ID, a)
			if err != nil {
				return chats, prompts, fmt.Errorf("chat %s: %w", c.Info.ID, err)
			}
			if err := b.store.AttachFile(ctx, c.Info.ID, f); err != nil {
				return chats, prompts, err
			}
		}
		chats++
	}
	return chats, prompts, nil
}

// attachment uploads a from disk when it names a path.
func attachment(ctx context.Context, b *backend, dir, chatID string, a seedAttachment) (chat.File, error) {
	if a.Path == "" {
		if a.ID == "" {
			a.ID = a.Name
		}
		return a.File, nil
	}
	if b.files == nil {
		return chat.File{}, errors.New(errors.CodeNoUploads).
			WithDetail("file " + a.Path + " needs files.bucket")
	}

	path := a.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return chat.File{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return chat.File{}, err
	}

	name := a.Name
	if name == "" {
		name = filepath.Base(path)
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	return b.files.Put(ctx, chatID, name, contentType, st.Size(), f)
}
