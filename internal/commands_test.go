package internal

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Storage.Location = filepath.Join(root, "notes")
	cfg.Storage.SettingsFile = filepath.Join(root, "settings.yaml")
	cfg.App.LogLevel = slog.LevelError + 4
	return cfg
}

func TestPrintTree_Local(t *testing.T) {
	cfg := testConfig(t)
	lib, err := openLibrary(cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, _ := lib.Create(ctx, "Parent", "", nil)
	_, _ = lib.Create(ctx, "Child", "Summary", models.ParentRef(a.ID))
	_, _ = lib.Create(ctx, "Sibling", "", nil)
	lib.Close()

	var out bytes.Buffer
	if err := PrintTree(ctx, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("PrintTree: %v", err)
	}
	text := out.String()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 4 {
		t.Fatalf("output = %q", text)
	}
	for i, want := range []string{"notes", "Parent", "Child", "Sibling"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
	if !strings.Contains(lines[2], "Summary") || !strings.Contains(lines[2], "└── ") {
		t.Errorf("child line = %q", lines[2])
	}
}

func TestPrintTree_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := PrintTree(context.Background(), WithConfig(testConfig(t)), WithOutput(&out)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "(no notes)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintTree_Remote(t *testing.T) {
	lib := testutil.TestLibrary(t, storage.BackendFiles)
	_, _ = lib.Create(context.Background(), "Remote", "", nil)

	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(api.RouterOptions{Store: lib, Logger: testutil.Logger()}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Remote.URL = srv.URL
	var out bytes.Buffer
	if err := PrintTree(context.Background(), WithConfig(cfg), WithOutput(&out), WithRemote(true)); err != nil {
		t.Fatalf("PrintTree: %v", err)
	}
	if !strings.Contains(out.String(), "Remote") || !strings.Contains(out.String(), srv.URL) {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}
