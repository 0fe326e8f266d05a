package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/simulation"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL  = flag.String("url", envOr("SENSOR_SIM_URL", "http://localhost:9001"), "disaster-sentinel base URL")
		types    = flag.String("types", "EARTHQUAKE,FLOOD,FIRE", "comma-separated disaster types to simulate")
		interval = flag.Duration("interval", 5*time.Second, "delay between rounds")
		rounds   = flag.Int("rounds", 0, "number of rounds, 0 runs until interrupted")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		level    = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()
	logging.Setup(*level, "text")

	var kinds []models.DisasterType
	for _, s := range strings.Split(*types, ",") {
		t, ok := models.ParseDisasterType(s)
		if !ok {
			logging.Fatalf("unknown disaster type %q", s)
		}
		kinds = append(kinds, t)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := simulation.NewGenerator(*seed, nil)
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		for _, t := range kinds {
			raw, err := gen.Reading(t)
			if err != nil {
				slog.Error("error generating reading", "type", t, "error", err)
				continue
			}
			status, err := post(ctx, client, *baseURL+"/api/simulate/"+strings.ToLower(string(t)), raw)
			if err != nil {
				slog.Error("error posting reading", "type", t, "error", err)
				continue
			}
			slog.Info("reading sent", "round", round, "type", t, "status", status, "created", status == http.StatusCreated)
		}

		if *rounds > 0 && round >= *rounds {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func post(ctx context.Context, client *http.Client, url string, body map[string]any) (int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
