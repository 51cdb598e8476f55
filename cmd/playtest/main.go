// Command playtest drives a match on a running mdserver with bots in every
// seat, one move per tick, until somebody wins.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/market-disruption/internal/config"
	"github.com/talgya/market-disruption/internal/playtest"
)

func main() {
	cfg, err := config.LoadPlaytest()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.Level(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("playtest starting", "api_url", cfg.APIURL, "seats", cfg.Seats, "interval", cfg.Interval)

	observer := playtest.NewObserver(cfg.APIURL)
	actor := playtest.NewActor(cfg.APIURL)

	// Wait for the server to be ready before the first move.
	slog.Info("waiting for mdserver API...")
	waitForAPI(cfg.APIURL)

	matchID := cfg.MatchID
	if matchID == "" {
		g, err := actor.CreateMatch(cfg.Seats)
		if err != nil {
			slog.Error("failed to create match", "error", err)
			os.Exit(1)
		}
		matchID = g.ID
		slog.Info("match created", "match", matchID)
	}

	runner := &playtest.Runner{
		Observer: observer,
		Actor:    actor,
		Bot:      playtest.NewBot(cfg.Seed),
		MatchID:  matchID,
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			done, err := runner.Step()
			if err != nil {
				slog.Error("step failed", "match", matchID, "error", err)
				continue
			}
			if done {
				g, err := observer.Match(matchID)
				if err == nil {
					slog.Info("match over", "match", matchID, "winner", g.Winner, "round", g.Round)
				}
				fmt.Println("Playtest finished.")
				return
			}
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Playtest stopped.")
			return
		}
	}
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("mdserver API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("mdserver API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("mdserver not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
