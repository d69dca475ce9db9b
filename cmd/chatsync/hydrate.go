package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/chatsync"
	"github.com/vango-dev/chatsync/pkg/pref"
	"github.com/vango-dev/chatsync/pkg/store"
	"github.com/vango-dev/chatsync/pkg/title"
	"github.com/vango-dev/chatsync/pkg/toast"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

// hydrateReport is what the hydrate command prints.
type hydrateReport struct {
	URL           string         `json:"url"`
	Outcome       string         `json:"outcome"`
	Error         string         `json:"error,omitempty"`
	Title         string         `json:"title"`
	Notifications []notification `json:"notifications,omitempty"`
	Snapshot      *chat.Snapshot `json:"snapshot,omitempty"`
}

type notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// recorder collects the toasts and title updates of a headless session.
type recorder struct {
	mu    sync.Mutex
	notes []notification
	title string
	app   string
}

func (r *recorder) Emit(name string, data any) {
	m, ok := data.(map[string]any)
	if !ok {
		return
	}
	level, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	r.mu.Lock()
	r.notes = append(r.notes, notification{Level: level, Message: msg})
	r.mu.Unlock()
}

func (r *recorder) Update(chatTitle string) {
	r.mu.Lock()
	r.title = title.Format(chatTitle, r.app)
	r.mu.Unlock()
}

func hydrateCmd(configPath *string) *cobra.Command {
	var (
		pageURL  string
		clientID string
	)

	cmd := &cobra.Command{
		Use:   "hydrate [chat-id]",
		Short: "Load a chat the way a page opening with ?chat= would",
		Long: `Run the hydration sequence headlessly against the configured storage
and print the resulting URL, outcome, notifications and loaded chat as JSON.

Pass a chat ID, or --url with a full page URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && pageURL == "" {
				return errors.New(errors.CodeMissingArgument).
					WithDetail("hydrate needs a chat id or --url")
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			loc := urlparam.NewLocation("/", nil)
			if pageURL != "" {
				if loc, err = urlparam.Parse(pageURL); err != nil {
					return err
				}
			}
			if len(args) == 1 {
				params := loc.Query()
				params[chatsync.ParamKey] = args[0]
				loc.Replace(params)
			}

			report, err := runHydrate(cmd.Context(), cfg, loc, clientID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "page URL to hydrate from, e.g. '/?chat=abc'")
	cmd.Flags().StringVar(&clientID, "client", "", "client ID whose preferences apply")

	return cmd
}

func runHydrate(ctx context.Context, cfg *config.Config, loc *urlparam.Location, clientID string) (*hydrateReport, error) {
	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer b.close()

	rec := &recorder{app: cfg.App.Title}
	prefs := chatsync.NewPreferences()
	if clientID != "" {
		if err := prefs.Bind(ctx, pref.Prefixed(b.prefs, "client:"+clientID)); err != nil {
			logger.Warn("preferences not loaded", "error", err)
		}
	}

	cs, err := chatsync.New(chatsync.Deps{
		Navigator: loc,
		Session:   store.NewSession(),
		Settings:  store.NewModelSettings(),
		Prefs:     prefs,
		Engine:    b.store,
		Notifier:  toast.Notifier{Emitter: rec},
		Title:     rec,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	defer cs.Close()

	res := cs.Mount(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	report := &hydrateReport{
		URL:           loc.String(),
		Outcome:       res.Outcome.String(),
		Title:         rec.title,
		Notifications: rec.notes,
		Snapshot:      res.Snapshot,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report, nil
}
