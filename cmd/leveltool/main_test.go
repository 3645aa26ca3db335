package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/system-tactics/internal/api"
	"github.com/talgya/system-tactics/internal/config"
	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
	"github.com/talgya/system-tactics/internal/persistence"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Storage: config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(dir, "store", "levels.db")},
		Levels: config.LevelsConfig{
			Dir:         filepath.Join(dir, "levels"),
			Orientation: hexgrid.PointyTop,
			CellRadius:  1,
		},
	}
}

func runOK(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(cfg, args, &out); err != nil {
		t.Fatalf("leveltool %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestNewSetShow(t *testing.T) {
	cfg := testConfig(t)

	path := strings.TrimSpace(runOK(t, cfg, "new", "-name", "Ridge Pass", "-rows", "3", "-cols", "4", "-height", "2"))
	if want := filepath.Join(cfg.Levels.Dir, "ridge_pass.toml"); path != want {
		t.Fatalf("wrote %q, want %q", path, want)
	}

	runOK(t, cfg, "set", "-file", path, "-row", "1", "-col", "2", "-height", "9")

	l, err := level.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := l.Height(1, 2); h != 9 {
		t.Fatalf("height after set = %d", h)
	}
	if h, _ := l.Height(1, 1); h != 2 {
		t.Fatalf("neighbour changed to %d", h)
	}

	out := runOK(t, cfg, "show", "-file", path)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("show printed %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[2], "  ") || !strings.Contains(lines[2], "9") {
		t.Fatalf("odd row should be indented and hold the edit: %q", lines[2])
	}
}

func TestSetOutOfBounds(t *testing.T) {
	cfg := testConfig(t)
	path := strings.TrimSpace(runOK(t, cfg, "new", "-name", "Small", "-rows", "2", "-cols", "2"))

	err := run(cfg, []string{"set", "-file", path, "-row", "2", "-col", "0", "-height", "3"}, &bytes.Buffer{})
	if !errors.Is(err, level.ErrOutOfBounds) {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestHeightFlagsRejectOverflow(t *testing.T) {
	cfg := testConfig(t)
	path := strings.TrimSpace(runOK(t, cfg, "new", "-name", "Small", "-rows", "2", "-cols", "2", "-height", "3"))

	for _, args := range [][]string{
		{"set", "-file", path, "-row", "0", "-col", "0", "-height", "4294967301"},
		{"set", "-file", path, "-row", "0", "-col", "0", "-height", "-1"},
		{"new", "-name", "Big", "-height", "4294967296"},
		{"generate", "-name", "Big", "-max-height", "4294967296"},
		{"remote", "-height", "4294967296", "set"},
	} {
		if err := run(cfg, args, &bytes.Buffer{}); err == nil {
			t.Errorf("leveltool %s succeeded", strings.Join(args, " "))
		}
	}

	l, err := level.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := l.Height(0, 0); h != 3 {
		t.Fatalf("height after rejected set = %d, want 3", h)
	}

	runOK(t, cfg, "set", "-file", path, "-row", "0", "-col", "0", "-height", "4294967295")
	l, err = level.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := l.Height(0, 0); h != 4294967295 {
		t.Fatalf("max uint32 height stored as %d", h)
	}
}

func TestGenerateRejectsZeroMaxHeight(t *testing.T) {
	cfg := testConfig(t)
	if err := run(cfg, []string{"generate", "-name", "Flat", "-max-height", "0"}, &bytes.Buffer{}); err == nil {
		t.Fatal("zero max height accepted")
	}
}

func TestLayoutJSON(t *testing.T) {
	cfg := testConfig(t)
	path := strings.TrimSpace(runOK(t, cfg, "new", "-name", "Grad", "-gradient"))

	var cells []struct {
		Row, Col int
		Height   uint32
	}
	if err := json.Unmarshal([]byte(runOK(t, cfg, "layout", "-file", path, "-json")), &cells); err != nil {
		t.Fatal(err)
	}
	if len(cells) != 100 {
		t.Fatalf("got %d cells", len(cells))
	}
	if cells[0].Height != 1 || cells[99].Height != 4 {
		t.Fatalf("gradient corners = %d, %d", cells[0].Height, cells[99].Height)
	}

	if err := run(cfg, []string{"layout", "-file", path, "-radius", "0"}, &bytes.Buffer{}); err == nil {
		t.Fatal("zero radius accepted")
	}
}

func TestStats(t *testing.T) {
	cfg := testConfig(t)
	path := strings.TrimSpace(runOK(t, cfg, "new", "-name", "Grad", "-gradient"))

	out := runOK(t, cfg, "stats", "-file", path)
	for _, want := range []string{"cells      100 (10x10)", "heights    4 distinct, max 4", "3,800 drawn"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestImportExport(t *testing.T) {
	cfg := testConfig(t)
	runOK(t, cfg, "new", "-name", "Alpha", "-rows", "2", "-cols", "3")
	runOK(t, cfg, "generate", "-name", "Beta", "-rows", "4", "-cols", "4", "-seed", "11")

	out := runOK(t, cfg, "import")
	if !strings.Contains(out, "imported Alpha") || !strings.Contains(out, "imported Beta") {
		t.Fatalf("import output:\n%s", out)
	}

	exportDir := filepath.Join(t.TempDir(), "exported")
	runOK(t, cfg, "export", "-dir", exportDir)

	for _, name := range []string{"alpha.toml", "beta.toml"} {
		orig, err := level.LoadFile(filepath.Join(cfg.Levels.Dir, name))
		if err != nil {
			t.Fatal(err)
		}
		back, err := level.LoadFile(filepath.Join(exportDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !orig.Equal(back) {
			t.Fatalf("%s changed on the way through the store", name)
		}
	}
}

func TestImportRequiresLevels(t *testing.T) {
	cfg := testConfig(t)

	err := run(cfg, []string{"import", "-dir", filepath.Join(t.TempDir(), "missing")}, &bytes.Buffer{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing dir: err = %v, want ErrNotExist", err)
	}
	if err := run(cfg, []string{"import", "-dir", t.TempDir()}, &bytes.Buffer{}); err == nil {
		t.Fatal("empty dir imported")
	}

	if out := runOK(t, cfg, "stored"); out != "" {
		t.Fatalf("store should be empty, got:\n%s", out)
	}
}

func TestImportReplace(t *testing.T) {
	cfg := testConfig(t)
	runOK(t, cfg, "new", "-name", "Alpha", "-rows", "2", "-cols", "2")
	runOK(t, cfg, "new", "-name", "Beta", "-rows", "3", "-cols", "3")
	runOK(t, cfg, "import")

	if err := os.Remove(filepath.Join(cfg.Levels.Dir, "alpha.toml")); err != nil {
		t.Fatal(err)
	}

	runOK(t, cfg, "import")
	if out := runOK(t, cfg, "stored"); !strings.Contains(out, "Alpha") {
		t.Fatalf("plain import dropped Alpha:\n%s", out)
	}

	runOK(t, cfg, "import", "-replace")
	out := runOK(t, cfg, "stored")
	if strings.Contains(out, "Alpha") || !strings.Contains(out, "Beta") {
		t.Fatalf("stored after -replace:\n%s", out)
	}
}

func TestStoredAndDelete(t *testing.T) {
	cfg := testConfig(t)
	runOK(t, cfg, "new", "-name", "Alpha", "-rows", "2", "-cols", "3")
	runOK(t, cfg, "new", "-name", "Beta", "-rows", "4", "-cols", "4")
	runOK(t, cfg, "import")

	lines := strings.Split(strings.TrimSpace(runOK(t, cfg, "stored")), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Alpha") || !strings.Contains(lines[1], "4x4") {
		t.Fatalf("stored listing:\n%s", strings.Join(lines, "\n"))
	}

	if out := runOK(t, cfg, "delete", "-name", "Alpha"); out != "deleted Alpha\n" {
		t.Fatalf("delete output %q", out)
	}
	err := run(cfg, []string{"delete", "-name", "Alpha"}, &bytes.Buffer{})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
	if err := run(cfg, []string{"delete"}, &bytes.Buffer{}); err == nil {
		t.Fatal("delete without -name succeeded")
	}

	if out := runOK(t, cfg, "stored"); strings.Contains(out, "Alpha") {
		t.Fatalf("Alpha still stored:\n%s", out)
	}
}

func TestExportDetectsFileNameClash(t *testing.T) {
	cfg := testConfig(t)
	a, _ := level.New("Ridge Pass", 2, 2, 1)
	b, _ := level.New("ridge_pass", 2, 2, 2)
	if err := level.SaveFile(cfg.Levels.Dir, "a.toml", a); err != nil {
		t.Fatal(err)
	}
	if err := level.SaveFile(cfg.Levels.Dir, "b.toml", b); err != nil {
		t.Fatal(err)
	}
	runOK(t, cfg, "import")

	exportDir := filepath.Join(t.TempDir(), "exported")
	err := run(cfg, []string{"export", "-dir", exportDir}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "ridge_pass.toml") {
		t.Fatalf("export err = %v, want a file name clash", err)
	}
	if _, err := os.Stat(exportDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("export wrote files despite the clash")
	}
}

func TestUsage(t *testing.T) {
	cfg := testConfig(t)
	if err := run(cfg, nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("no args: %v", err)
	}
	if err := run(cfg, []string{"frobnicate"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("unknown command: %v", err)
	}
	if err := run(cfg, []string{"show"}, &bytes.Buffer{}); err == nil {
		t.Fatal("show without -file succeeded")
	}
}

func TestRemote(t *testing.T) {
	cfg := testConfig(t)
	srv := &api.Server{
		Catalog:  level.DefaultCatalog(),
		Layout:   hexgrid.DefaultLayout(),
		AdminKey: "k",
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out := runOK(t, cfg, "remote", "-url", ts.URL, "-key", "k", "-row", "2", "-col", "3", "-height", "8", "set")
	if !strings.Contains(out, "h=8") {
		t.Fatalf("set output: %q", out)
	}
	out = runOK(t, cfg, "remote", "-url", ts.URL, "-level", level.DefaultName, "-row", "2", "-col", "3", "get")
	if !strings.Contains(out, "h=8") {
		t.Fatalf("get output: %q", out)
	}
	out = runOK(t, cfg, "remote", "-url", ts.URL, "levels")
	if !strings.HasPrefix(out, "* "+level.DefaultName) {
		t.Fatalf("levels output: %q", out)
	}

	err := run(cfg, []string{"remote", "-url", ts.URL, "-row", "2", "-col", "3", "-height", "1", "set"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("edit without a key succeeded")
	}
	if err := run(cfg, []string{"remote", "-url", ts.URL}, &bytes.Buffer{}); err == nil {
		t.Fatal("missing action accepted")
	}
}

func TestRemoteWaitsForServer(t *testing.T) {
	cfg := testConfig(t)
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	err := run(cfg, []string{"remote", "-url", url, "-timeout", "300ms", "status"}, &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
