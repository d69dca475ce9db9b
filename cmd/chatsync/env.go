package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/pref"
	"github.com/vango-dev/chatsync/pkg/storage"
)

// loadConfig reads the config file, falling back to defaults when none
// exists, then applies CHATSYNC_* overrides.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		if errors.CodeOf(err) == errors.CodeConfigNotFound {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// backend is an opened store plus the preference backend that goes with it.
type backend struct {
	store storage.Store
	prefs pref.Backend
	files *storage.S3Files
	close func() error
}

// openBackend opens the configured storage and, when a bucket is set, the
// S3 file store layered over it.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		m := storage.NewMemoryEngine()
		b.store, b.prefs, b.close = m, pref.NewMemoryBackend(), m.Close

	case config.DriverSQLite:
		e, err := storage.OpenSQLite(ctx, cfg.Storage.DSN, storage.WithTablePrefix(cfg.Storage.TablePrefix))
		if err != nil {
			return nil, errors.New(errors.CodeStorageBackend).Wrap(err)
		}
		b.store, b.prefs, b.close = e, e.Preferences(), e.Close

	case config.DriverPostgres, config.DriverMySQL:
		e, db, err := openSQL(ctx, cfg.Storage)
		if err != nil {
			return nil, errors.New(errors.CodeStorageBackend).Wrap(err)
		}
		b.store, b.prefs = e, e.Preferences()
		b.close = func() error { return stderrors.Join(e.Close(), db.Close()) }

	default:
		return nil, errors.New(errors.CodeUnknownStorage).
			WithDetail(fmt.Sprintf("storage.driver %q", cfg.Storage.Driver))
	}

	if cfg.FilesEnabled() {
		client := storage.NewS3Client(storage.S3Config{
			Region:          cfg.Files.Region,
			Endpoint:        cfg.Files.Endpoint,
			PathStyle:       cfg.Files.PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
		b.files = storage.NewS3Files(client, cfg.Files.Bucket, cfg.Files.Prefix).
			WithPresigner(s3.NewPresignClient(client)).
			WithURLExpiry(cfg.URLExpiry())
		b.store = storage.WithFiles(b.store, b.files)
	}
	return b, nil
}

// openSQL opens a database whose driver is registered by the binary under
// the config's driver name.
func openSQL(ctx context.Context, sc config.StorageConfig) (*storage.SQLEngine, *sql.DB, error) {
	dialect, err := storage.ParseDialect(sc.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(sc.Driver, sc.DSN)
	if err != nil {
		return nil, nil, err
	}
	e := storage.NewSQLEngine(db, storage.WithDialect(dialect), storage.WithTablePrefix(sc.TablePrefix))
	if err := e.Migrate(ctx); err != nil {
		return nil, nil, stderrors.Join(err, db.Close())
	}
	return e, db, nil
}
