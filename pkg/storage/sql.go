package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vango-dev/chatsync/pkg/chat"
	"github.com/vango-dev/chatsync/pkg/pref"
)

// SQLEngine is a database/sql backed Store.
// It works with any database/sql compatible driver. SQLite is built in via
// modernc.org/sqlite; PostgreSQL and MySQL need their driver registered by
// the binary that opens the *sql.DB.
//
// Migrate creates the following tables (default prefix "chatsync_"):
//
//	chatsync_chats   (id, title, model, prompt_id, prompt, history, created_at, updated_at)
//	chatsync_prompts (id, title, content)
//	chatsync_files   (chat_id, id, name, size, content_type, url, created_at)
//	chatsync_prefs   (pref_key, data, updated_at)
//
// Timestamps are stored as Unix nanoseconds and history as JSON text.
type SQLEngine struct {
	db      *sql.DB
	prefix  string
	dialect SQLDialect
	ownsDB  bool
	closed  atomic.Bool
	now     func() time.Time
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
)

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (SQLDialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return 0, fmt.Errorf("storage: unknown sql driver %q", driver)
	}
}

// SQLOption configures SQLEngine behavior.
type SQLOption func(*sqlConfig)

type sqlConfig struct {
	prefix  string
	dialect SQLDialect
}

// WithTablePrefix sets the prefix of every table name.
// Default: "chatsync_".
func WithTablePrefix(prefix string) SQLOption {
	return func(c *sqlConfig) {
		c.prefix = prefix
	}
}

// WithDialect sets the SQL dialect for query generation.
// Default: DialectSQLite.
func WithDialect(d SQLDialect) SQLOption {
	return func(c *sqlConfig) {
		c.dialect = d
	}
}

// NewSQLEngine wraps an open database. Close does not close db.
func NewSQLEngine(db *sql.DB, opts ...SQLOption) *SQLEngine {
	cfg := &sqlConfig{
		prefix:  "chatsync_",
		dialect: DialectSQLite,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &SQLEngine{
		db:      db,
		prefix:  cfg.prefix,
		dialect: cfg.dialect,
		now:     time.Now,
	}
}

// OpenSQLite opens (or creates) a SQLite database and migrates it.
// ":memory:" and "file::memory:" DSNs are pinned to a single connection so
// every query sees the same database. The returned engine owns the handle.
func OpenSQLite(ctx context.Context, dsn string, opts ...SQLOption) (*SQLEngine, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	e := NewSQLEngine(db, append(opts, WithDialect(DialectSQLite))...)
	e.ownsDB = true
	if err := e.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (s *SQLEngine) table(name string) string {
	return s.prefix + name
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLEngine) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLEngine) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = s.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// upsert builds an insert that updates the given columns on key conflict.
func (s *SQLEngine) upsert(table string, cols, keys, update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		if s.dialect == DialectMySQL {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), s.placeholders(len(cols)))
	if s.dialect == DialectMySQL {
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		insert, strings.Join(keys, ", "), strings.Join(sets, ", "))
}

// Migrate creates the tables if they don't exist.
func (s *SQLEngine) Migrate(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(191) PRIMARY KEY,
			title TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_id VARCHAR(191) NOT NULL,
			prompt TEXT NOT NULL,
			history TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, s.table("chats")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(191) PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL
		)`, s.table("prompts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chat_id VARCHAR(191) NOT NULL,
			id VARCHAR(191) NOT NULL,
			name TEXT NOT NULL,
			size BIGINT NOT NULL,
			content_type TEXT NOT NULL,
			url TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (chat_id, id)
		)`, s.table("files")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			pref_key VARCHAR(191) PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, s.table("prefs")),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: migrate: %w", err)
		}
	}
	return nil
}

// GetChatHistory implements Engine.
func (s *SQLEngine) GetChatHistory(ctx context.Context, id string) (*chat.RawHistory, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf("SELECT history FROM %s WHERE id = %s", s.table("chats"), s.placeholder(1))

	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return &chat.RawHistory{Messages: map[string]chat.RawMessage{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load history %s: %w", id, err)
	}

	var h chat.RawHistory
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("storage: decode history %s: %w", id, err)
	}
	if h.Messages == nil {
		h.Messages = map[string]chat.RawMessage{}
	}
	return &h, nil
}

// GetHistoryInfo implements Engine.
func (s *SQLEngine) GetHistoryInfo(ctx context.Context, id string) (*chat.HistoryInfo, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf(`SELECT id, title, model, prompt_id, prompt, created_at, updated_at
		FROM %s WHERE id = %s`, s.table("chats"), s.placeholder(1))

	info, err := scanInfo(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load info %s: %w", id, err)
	}
	return &info, nil
}

// GetPromptByID implements Engine.
func (s *SQLEngine) GetPromptByID(ctx context.Context, id string) (*chat.Prompt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf("SELECT id, title, content FROM %s WHERE id = %s", s.table("prompts"), s.placeholder(1))

	var p chat.Prompt
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Title, &p.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load prompt %s: %w", id, err)
	}
	return &p, nil
}

// GetSessionFiles implements Engine.
func (s *SQLEngine) GetSessionFiles(ctx context.Context, id string) ([]chat.File, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf(`SELECT id, name, size, content_type, url FROM %s
		WHERE chat_id = %s ORDER BY created_at, id`, s.table("files"), s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("storage: list files %s: %w", id, err)
	}
	defer rows.Close()

	files := []chat.File{}
	for rows.Next() {
		var f chat.File
		if err := rows.Scan(&f.ID, &f.Name, &f.Size, &f.ContentType, &f.URL); err != nil {
			return nil, fmt.Errorf("storage: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// SaveChat implements Writer. CreatedAt of an existing row is preserved.
func (s *SQLEngine) SaveChat(ctx context.Context, info chat.HistoryInfo, history chat.RawHistory) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("storage: encode history %s: %w", info.ID, err)
	}
	now := s.now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}

	query := s.upsert(s.table("chats"),
		[]string{"id", "title", "model", "prompt_id", "prompt", "history", "created_at", "updated_at"},
		[]string{"id"},
		[]string{"title", "model", "prompt_id", "prompt", "history", "updated_at"},
	)
	_, err = s.db.ExecContext(ctx, query,
		info.ID, info.Title, info.Model, info.PromptID, info.Prompt, string(data),
		info.CreatedAt.UnixNano(), info.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storage: save chat %s: %w", info.ID, err)
	}
	return nil
}

// DeleteChat implements Writer.
func (s *SQLEngine) DeleteChat(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	queries := []string{
		fmt.Sprintf("DELETE FROM %s WHERE chat_id = %s", s.table("files"), s.placeholder(1)),
		fmt.Sprintf("DELETE FROM %s WHERE id = %s", s.table("chats"), s.placeholder(1)),
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("storage: delete chat %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ListHistoryInfo implements Writer.
func (s *SQLEngine) ListHistoryInfo(ctx context.Context) ([]chat.HistoryInfo, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf(`SELECT id, title, model, prompt_id, prompt, created_at, updated_at
		FROM %s ORDER BY updated_at DESC, id`, s.table("chats"))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: list chats: %w", err)
	}
	defer rows.Close()

	infos := []chat.HistoryInfo{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan chat: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// SavePrompt implements Writer.
func (s *SQLEngine) SavePrompt(ctx context.Context, p chat.Prompt) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := s.upsert(s.table("prompts"),
		[]string{"id", "title", "content"},
		[]string{"id"},
		[]string{"title", "content"},
	)
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Title, p.Content); err != nil {
		return fmt.Errorf("storage: save prompt %s: %w", p.ID, err)
	}
	return nil
}

// AttachFile implements Writer.
func (s *SQLEngine) AttachFile(ctx context.Context, chatID string, f chat.File) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := s.upsert(s.table("files"),
		[]string{"chat_id", "id", "name", "size", "content_type", "url", "created_at"},
		[]string{"chat_id", "id"},
		[]string{"name", "size", "content_type", "url"},
	)
	_, err := s.db.ExecContext(ctx, query,
		chatID, f.ID, f.Name, f.Size, f.ContentType, f.URL, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("storage: attach file %s to %s: %w", f.ID, chatID, err)
	}
	return nil
}

// Close marks the engine closed, closing the database only if OpenSQLite
// created it.
func (s *SQLEngine) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Preferences returns a pref.Backend storing rows in the prefs table.
func (s *SQLEngine) Preferences() pref.Backend {
	return sqlPrefs{s}
}

type sqlPrefs struct {
	s *SQLEngine
}

func (p sqlPrefs) Load(ctx context.Context, key string) ([]byte, error) {
	if p.s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE pref_key = %s", p.s.table("prefs"), p.s.placeholder(1))

	var data string
	err := p.s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load pref %s: %w", key, err)
	}
	return []byte(data), nil
}

func (p sqlPrefs) Save(ctx context.Context, key string, data []byte) error {
	if p.s.closed.Load() {
		return ErrClosed
	}
	query := p.s.upsert(p.s.table("prefs"),
		[]string{"pref_key", "data", "updated_at"},
		[]string{"pref_key"},
		[]string{"data", "updated_at"},
	)
	if _, err := p.s.db.ExecContext(ctx, query, key, string(data), p.s.now().UnixNano()); err != nil {
		return fmt.Errorf("storage: save pref %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(r rowScanner) (chat.HistoryInfo, error) {
	var info chat.HistoryInfo
	var created, updated int64
	err := r.Scan(&info.ID, &info.Title, &info.Model, &info.PromptID, &info.Prompt, &created, &updated)
	if err != nil {
		return chat.HistoryInfo{}, err
	}
	info.CreatedAt = time.Unix(0, created)
	info.UpdatedAt = time.Unix(0, updated)
	return info, nil
}

var _ Store = (*SQLEngine)(nil)
