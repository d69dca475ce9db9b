package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/pkg/server"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		host     string
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat session server",
		Long: `Start the chat session server.

Configuration is read from the config file, then CHATSYNC_* environment
variables, then flags. The server exposes:

  /ws        WebSocket sessions (?url= carries the page URL)
  /api/...   chat and prompt management
  /healthz   health check
  /metrics   Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "host to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scfg := server.DefaultConfig()
	scfg.Address = cfg.Address()
	scfg.AppName = cfg.App.Title
	scfg.AllowedOrigins = cfg.Server.AllowedOrigins
	scfg.MaxSessions = cfg.Server.MaxSessions
	scfg.SecureCookies = cfg.Server.SecureCookies
	scfg.Session.WriteTimeout = cfg.WriteTimeout()
	scfg.Logger = logger

	deps := server.Deps{
		Store:    b.store,
		Prefs:    b.prefs,
		Registry: registry,
	}
	if b.files != nil {
		deps.Uploader = b.files
	}

	srv, err := server.New(scfg, deps)
	if err != nil {
		return err
	}

	logger.Info("starting chatsync",
		"version", version,
		"url", cfg.URL(),
		"storage", cfg.Storage.Driver,
		"files", cfg.FilesEnabled(),
	)
	return srv.Serve(ctx)
}
