// Command mdserver hosts Market Disruption matches over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/market-disruption/internal/api"
	"github.com/talgya/market-disruption/internal/config"
	"github.com/talgya/market-disruption/internal/engine"
	"github.com/talgya/market-disruption/internal/persistence"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.Level(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Market Disruption server starting", "addr", cfg.Addr, "db", cfg.DBPath, "seed", cfg.Seed)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	boots := 0
	if v, err := db.GetMeta("boot_count"); err == nil && v != "" {
		boots, _ = strconv.Atoi(v)
	}
	boots++
	if err := db.SaveMeta("boot_count", strconv.Itoa(boots)); err != nil {
		slog.Warn("failed to record boot", "error", err)
	}

	if cfg.AdminKey == "" {
		slog.Warn("MD_ADMIN_KEY not set, admin endpoints will be disabled")
	}
	server := api.New(cfg, db)

	// ── Resume unfinished matches ─────────────────────────────────────
	states, err := db.LoadMatches()
	if err != nil {
		slog.Error("failed to load matches", "error", err)
		os.Exit(1)
	}
	for _, g := range states {
		if err := db.VerifyChain(g.ID); err != nil {
			slog.Warn("snapshot chain does not verify, resuming latest state anyway", "match", g.ID, "error", err)
		}
		server.Register(engine.Restore(g, server.NewDice()))
		slog.Info("match resumed", "match", g.ID, "round", g.Round, "phase", g.Phase)
	}
	slog.Info("database ready", "path", cfg.DBPath, "boot", boots, "resumed", len(states))

	// ── HTTP API ──────────────────────────────────────────────────────
	httpServer := server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	save := time.NewTicker(cfg.SavePeriod)
	defer save.Stop()

	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.Addr)

	for {
		select {
		case <-save.C:
			if !cfg.SaveEvery {
				if err := server.SaveAll(); err != nil {
					slog.Error("periodic save failed", "error", err)
				}
			}
			if n := server.PruneLimiters(time.Hour); n > 0 {
				slog.Debug("pruned idle rate limiters", "count", n)
			}
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := httpServer.Shutdown(ctx); err != nil {
				slog.Error("HTTP shutdown failed", "error", err)
			}
			cancel()

			slog.Info("final save...")
			if err := server.SaveAll(); err != nil {
				slog.Error("final save failed", "error", err)
			}
			fmt.Println("Server stopped. Matches saved.")
			return
		}
	}
}
