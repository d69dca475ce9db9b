package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/vango-dev/chatsync/pkg/pref"
)

func openTestSQLite(t *testing.T) *SQLEngine {
	t.Helper()
	e, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return e
}

func TestSQLEngine(t *testing.T) {
	runStoreContract(t, openTestSQLite(t))
}

func TestSQLEngineMigrateIdempotent(t *testing.T) {
	e := openTestSQLite(t)
	defer e.Close()
	if err := e.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSQLEngineTablePrefix(t *testing.T) {
	ctx := context.Background()
	e, err := OpenSQLite(ctx, ":memory:", WithTablePrefix("t_"))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	var n int
	row := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 't_%'")
	if err := row.Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 prefixed tables, got %d", n)
	}
}

func TestSQLPreferences(t *testing.T) {
	ctx := context.Background()
	e := openTestSQLite(t)
	defer e.Close()
	b := e.Preferences()

	data, err := b.Load(ctx, "selectedModel")
	if err != nil || data != nil {
		t.Fatalf("expected (nil, nil) for missing key, got (%q, %v)", data, err)
	}
	if err := b.Save(ctx, "selectedModel", []byte(`"a"`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Save(ctx, "selectedModel", []byte(`"b"`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	data, _ = b.Load(ctx, "selectedModel")
	if string(data) != `"b"` {
		t.Errorf("Load = %q", data)
	}

	first := pref.New("isLastUsedChatModel", false)
	if err := first.Bind(ctx, b); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	first.Set(true)

	second := pref.New("isLastUsedChatModel", false)
	if err := second.Bind(ctx, b); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !second.Get() {
		t.Error("value persisted through the SQL backend was not loaded")
	}
}

func TestSQLDialectQueries(t *testing.T) {
	cols := []string{"id", "title"}
	keys := []string{"id"}
	update := []string{"title"}

	tests := []struct {
		dialect SQLDialect
		want    string
	}{
		{DialectSQLite, "INSERT INTO x (id, title) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title"},
		{DialectPostgreSQL, "INSERT INTO x (id, title) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title"},
		{DialectMySQL, "INSERT INTO x (id, title) VALUES (?, ?) ON DUPLICATE KEY UPDATE title = VALUES(title)"},
	}
	for _, tt := range tests {
		e := NewSQLEngine(nil, WithDialect(tt.dialect))
		if got := e.upsert("x", cols, keys, update); got != tt.want {
			t.Errorf("dialect %d:\n got  %s\n want %s", tt.dialect, got, tt.want)
		}
	}
}

func TestParseDialect(t *testing.T) {
	for name, want := range map[string]SQLDialect{
		"sqlite":   DialectSQLite,
		"Postgres": DialectPostgreSQL,
		"mysql":    DialectMySQL,
	} {
		got, err := ParseDialect(name)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Errorf("expected unknown driver error, got %v", err)
	}
}

func TestSQLEngineCloseDoesNotCloseBorrowedDB(t *testing.T) {
	owned := openTestSQLite(t)
	defer owned.Close()

	borrowed := NewSQLEngine(owned.db)
	if err := borrowed.Close(); err != nil {
		t.Fatal(err)
	}
	if err := owned.db.PingContext(context.Background()); err != nil {
		t.Errorf("borrowed Close closed the database: %v", err)
	}
	if _, err := owned.ListHistoryInfo(context.Background()); err != nil {
		t.Errorf("owner should still work: %v", err)
	}
}
