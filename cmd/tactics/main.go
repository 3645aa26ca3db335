// Command tactics loads the level catalog and serves it, with derived hex
// layouts, over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/system-tactics/internal/api"
	"github.com/talgya/system-tactics/internal/config"
	"github.com/talgya/system-tactics/internal/geometry"
	"github.com/talgya/system-tactics/internal/level"
	"github.com/talgya/system-tactics/internal/logging"
	"github.com/talgya/system-tactics/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.Logging)

	layout := cfg.Layout()
	slog.Info("System Tactics level server",
		"orientation", layout.Orientation,
		"cell_radius", layout.CellRadius,
	)

	// ── Store ─────────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.Driver != "" {
		if cfg.Storage.Driver == persistence.DriverSQLite {
			os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0755)
		}
		db, err = persistence.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open database", "driver", cfg.Storage.Driver, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "driver", cfg.Storage.Driver)
	}

	// ── Levels ────────────────────────────────────────────────────────
	catalog, err := level.LoadDirectory(cfg.Levels.Dir)
	if err != nil {
		slog.Error("failed to load levels", "dir", cfg.Levels.Dir, "error", err)
		os.Exit(1)
	}

	if db != nil {
		stored, err := db.LoadLevels()
		if err != nil {
			slog.Error("failed to load stored levels", "error", err)
			os.Exit(1)
		}
		// Stored edits take precedence over the files they started from.
		for _, l := range stored {
			catalog.Put(l)
		}
		if name, err := db.GetMeta("current_level"); err == nil {
			if err := catalog.Select(name); err != nil {
				slog.Warn("stored current level no longer exists", "name", name)
			}
		}
		slog.Info("stored levels merged", "count", len(stored))
	}

	// A level whose layout cannot be derived is a broken build, not a
	// runtime condition.
	for _, l := range catalog.Levels() {
		cells, err := geometry.GenerateLevelLayout(l, layout)
		if err != nil {
			slog.Error("level layout failed", "level", l.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("level ready",
			"name", l.Name(),
			"rows", l.Rows(),
			"columns", l.Columns(),
			"cells", len(cells),
			"max_height", l.MaxHeight(),
		)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("TACTICS_ADMIN_KEY not set, level editing endpoints will be disabled")
	}
	srv := &api.Server{
		Catalog:      catalog,
		Layout:       layout,
		DB:           db,
		Addr:         cfg.Server.Addr,
		AdminKey:     cfg.Server.AdminKey,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		srv.Limiter = api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	srv.Start()

	fmt.Printf("\n%d levels loaded, current: %q\n", catalog.Len(), catalog.Current().Name())
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	fmt.Println("Server stopped.")
}
