// Package relay forwards dispatched alert payloads to downstream systems.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/observability"
	"github.com/mr1hm/disaster-sentinel/internal/worker"
)

const EventTypeAlert = "disaster.alert"

// Sink delivers alert payloads to one downstream system.
type Sink interface {
	Name() string
	Send(ctx context.Context, p models.AlertPayload) error
	Close() error
}

type ForwarderConfig struct {
	Workers    int
	BufferSize int
	Timeout    time.Duration
}

// Forwarder hands payloads to every sink on a worker pool. Enqueueing never
// blocks the caller; a full queue drops the payload.
type Forwarder struct {
	sinks   []Sink
	pool    *worker.Pool[models.AlertPayload]
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewForwarder(cfg ForwarderConfig, sinks []Sink, metrics *observability.Metrics) *Forwarder {
	f := &Forwarder{
		sinks:   sinks,
		timeout: cfg.Timeout,
		metrics: metrics,
		logger:  logging.Component("relay"),
	}
	f.pool = worker.NewPool("relay", cfg.Workers, cfg.BufferSize, f.deliver)
	return f
}

func (f *Forwarder) Start(ctx context.Context) {
	f.pool.Start(ctx)
}

func (f *Forwarder) Sinks() int {
	return len(f.sinks)
}

func (f *Forwarder) Forward(p models.AlertPayload) {
	if len(f.sinks) == 0 {
		return
	}
	if !f.pool.TrySubmit(p) {
		f.logger.Warn("relay queue full, dropping payload", "disaster_id", p.DisasterID, "config_id", p.AlertConfigID)
		for _, s := range f.sinks {
			f.countError(s)
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, p models.AlertPayload) error {
	var errs []error
	for _, s := range f.sinks {
		if err := f.send(ctx, s, p); err != nil {
			f.countError(s)
			errs = append(errs, fmt.Errorf("%w: %s: %v", models.ErrTransport, s.Name(), err))
			continue
		}
		if f.metrics != nil {
			f.metrics.RelayForwarded.WithLabelValues(s.Name()).Inc()
		}
	}
	return errors.Join(errs...)
}

func (f *Forwarder) countError(s Sink) {
	if f.metrics != nil {
		f.metrics.RelayErrors.WithLabelValues(s.Name()).Inc()
	}
}

func (f *Forwarder) send(ctx context.Context, s Sink, p models.AlertPayload) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return s.Send(ctx, p)
}

// Stop drains queued payloads and closes every sink.
func (f *Forwarder) Stop() {
	f.pool.Stop()
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			f.logger.Warn("error closing sink", "sink", s.Name(), "error", err)
		}
	}
}
