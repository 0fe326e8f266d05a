package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-sentinel/internal/alerting"
	"github.com/mr1hm/disaster-sentinel/internal/api"
	"github.com/mr1hm/disaster-sentinel/internal/classifier"
	"github.com/mr1hm/disaster-sentinel/internal/config"
	"github.com/mr1hm/disaster-sentinel/internal/ingestion"
	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/notify"
	"github.com/mr1hm/disaster-sentinel/internal/observability"
	"github.com/mr1hm/disaster-sentinel/internal/realtime"
	"github.com/mr1hm/disaster-sentinel/internal/relay"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
	"github.com/mr1hm/disaster-sentinel/internal/simulation"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	thresholds, err := loadThresholds(cfg.Classifier.ThresholdsFile)
	if err != nil {
		logging.Fatalf("Failed to load classifier thresholds: %v", err)
	}

	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatalf("Failed to create database directory: %v", err)
		}
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	hub := realtime.NewHub()
	hub.OnSubscriberChange(func(n int) {
		metrics.StreamSubscribers.Set(float64(n))
	})

	forwarder := relay.NewForwarder(relay.ForwarderConfig{
		Workers:    cfg.Relay.Workers,
		BufferSize: cfg.Relay.BufferSize,
		Timeout:    cfg.Relay.Timeout,
	}, buildSinks(cfg.Relay), metrics)
	forwarder.Start(ctx)

	opts := []notify.Option{notify.WithDispatchLog(db), notify.WithClock(clock)}
	if forwarder.Sinks() > 0 {
		opts = append(opts, notify.WithForwarder(forwarder))
	}
	dispatcher := notify.NewDispatcher(hub, metrics, opts...)

	engine := alerting.NewEngine(db, db, dispatcher, alerting.Options{
		AtomicGuards:   cfg.Alerting.AtomicGuards,
		RegionMatching: cfg.Alerting.RegionMatching,
	}, clock, metrics)
	runner := alerting.NewRunner(engine, cfg.Worker.Count, cfg.Worker.BufferSize)
	runner.Start(ctx)
	if n, err := runner.Recover(ctx, db); err != nil {
		slog.Error("error recovering pending disasters", "error", err)
	} else if n > 0 {
		slog.Info("recovered pending disasters", "count", n)
	}

	svc := ingestion.NewService(db, classifier.New(classifier.NewTable(thresholds), clock), hub, runner, clock, metrics)

	mgr := ingestion.NewManager(cfg, svc, simulation.NewGenerator(time.Now().UnixNano(), nil), clock)
	mgr.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(api.Deps{
		Disasters:  svc,
		Configs:    db,
		Dispatches: db,
		Matcher:    engine,
		Stream:     hub,
		DB:         db,
		Clock:      clock,
		KeepAlive:  cfg.Stream.KeepAlive,
	})
	router := api.NewRouter(cfg.Server, handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// Ends open SSE streams so Shutdown does not wait on them
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop producers before consumers so each queue drains on a live ctx
	mgr.Stop()
	runner.Stop()
	forwarder.Stop()
	cancel()

	slog.Info("shutdown complete")
}

func loadThresholds(path string) (classifier.Thresholds, error) {
	if path == "" {
		return classifier.DefaultThresholds(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return classifier.Thresholds{}, err
	}
	defer f.Close()
	return classifier.LoadThresholds(f)
}

// buildSinks enables every relay that has a destination configured. A relay
// that fails to connect is skipped.
func buildSinks(cfg config.RelayConfig) []relay.Sink {
	var sinks []relay.Sink

	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, relay.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		slog.Info("relay enabled", "sink", "kafka", "topic", cfg.KafkaTopic)
	}
	if cfg.AMQPURL != "" {
		sink, err := relay.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Error("amqp relay disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
			slog.Info("relay enabled", "sink", "amqp", "exchange", cfg.AMQPExchange)
		}
	}
	if cfg.CloudEventsEndpoint != "" {
		sink, err := relay.NewCloudEventsSink(cfg.CloudEventsEndpoint)
		if err != nil {
			slog.Error("cloudevents relay disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
			slog.Info("relay enabled", "sink", "cloudevents", "endpoint", cfg.CloudEventsEndpoint)
		}
	}
	return sinks
}
