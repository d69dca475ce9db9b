package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/chatsync/internal/config"
	"github.com/vango-dev/chatsync/internal/errors"
	"github.com/vango-dev/chatsync/pkg/urlparam"
)

const seedJSON = `{
  "prompts": [{"id": "p1", "title": "Terse", "content": "Answer briefly."}],
  "chats": [{
    "info": {"id": "c1", "title": "Plans", "promptId": "p1", "model": "small"},
    "history": {
      "messages": {
        "m1": {"id": "m1", "role": "user", "content": "hi", "childrenIds": ["m2"]},
        "m2": {"id": "m2", "parentId": "m1", "role": "assistant", "content": "hello"}
      },
      "currentId": "m2"
    },
    "files": [{"id": "f1", "name": "notes.md", "size": 12}]
  }]
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.Log.Level = "error"
	return cfg
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedThenHydrate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	chats, prompts, err := runSeed(ctx, cfg, writeSeed(t, seedJSON))
	if err != nil {
		t.Fatalf("runSeed: %v", err)
	}
	if chats != 1 || prompts != 1 {
		t.Fatalf("imported %d chats, %d prompts", chats, prompts)
	}

	report, err := runHydrate(ctx, cfg, urlparam.NewLocation("/", map[string]string{"chat": "c1"}), "")
	if err != nil {
		t.Fatalf("runHydrate: %v", err)
	}
	if report.Outcome != "loaded" || report.URL != "/?chat=c1" {
		t.Fatalf("report = %+v", report)
	}
	if report.Title != "Plans · Chat" {
		t.Errorf("title = %q", report.Title)
	}
	snap := report.Snapshot
	if snap == nil {
		t.Fatal("no snapshot")
	}
	if len(snap.Messages) != 2 || snap.SystemPrompt != "Answer briefly." {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Files) != 1 || snap.Files[0].Name != "notes.md" {
		t.Errorf("files = %+v", snap.Files)
	}
}

func TestHydrateMissingChat(t *testing.T) {
	cfg := testConfig(t)
	report, err := runHydrate(context.Background(), cfg, urlparam.NewLocation("/", map[string]string{"chat": "nope"}), "")
	if err != nil {
		t.Fatalf("runHydrate: %v", err)
	}
	if report.Outcome != "not_found" || report.URL != "/" {
		t.Errorf("report = %+v", report)
	}
	if len(report.Notifications) != 1 || report.Notifications[0].Message != "Chat not found" {
		t.Errorf("notifications = %+v", report.Notifications)
	}
}

func TestSeedRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing id", `{"chats":[{"info":{"title":"x"},"history":{"messages":{},"currentId":""}}]}`},
		{"broken tree", `{"chats":[{"info":{"id":"c"},"history":{"messages":{"m1":{"id":"m1","parentId":"gone"}},"currentId":"m1"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runSeed(context.Background(), cfg, writeSeed(t, tt.body))
			if errors.CodeOf(err) != errors.CodeBadRequest {
				t.Errorf("err = %v, want E303", err)
			}
		})
	}
}

func TestSeedFilePathNeedsBucket(t *testing.T) {
	cfg := testConfig(t)
	body := strings.Replace(seedJSON, `{"id": "f1", "name": "notes.md", "size": 12}`, `{"path": "notes.md"}`, 1)
	_, _, err := runSeed(context.Background(), cfg, writeSeed(t, body))
	if errors.CodeOf(err) != errors.CodeNoUploads {
		t.Errorf("err = %v, want E304", err)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	cmd := rootCmd()
	cmd.SetArgs([]string{"init", dir, "--yaml", "--driver", "memory"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != config.DriverMemory || filepath.Base(cfg.Path()) != config.YAMLConfigFileName {
		t.Errorf("cfg = %+v at %s", cfg.Storage, cfg.Path())
	}

	cmd = rootCmd()
	cmd.SetArgs([]string{"init", dir, "--yaml"})
	if err := cmd.Execute(); err == nil {
		t.Error("init overwrote an existing config without --force")
	}
}

func TestHydrateCommandOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	if err := cfg.SaveTo(filepath.Join(dir, config.ConfigFileName)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runSeed(context.Background(), cfg, writeSeed(t, seedJSON)); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfg.Path(), "hydrate", "--url", "/c?tab=2", "c1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	var report hydrateReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode %s: %v", out.String(), err)
	}
	if report.Outcome != "loaded" || report.URL != "/c?chat=c1&tab=2" {
		t.Errorf("report = %+v", report)
	}
}

func TestHydrateNeedsTarget(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"hydrate"})
	if err := cmd.Execute(); errors.CodeOf(err) != errors.CodeMissingArgument {
		t.Errorf("err = %v, want E501", err)
	}
}

func TestVersionShort(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version = %q", out.String())
	}
}
