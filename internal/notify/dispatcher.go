package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/observability"
	"github.com/mr1hm/disaster-sentinel/internal/realtime"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

// Publisher is the real-time fan-out the dispatcher writes to.
type Publisher interface {
	Publish(topic, event string, data any) int
}

// Forwarder hands payloads to downstream relays without blocking.
type Forwarder interface {
	Forward(p models.AlertPayload)
}

type Dispatcher struct {
	hub       Publisher
	log       repository.DispatchRepository
	forwarder Forwarder
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures optional collaborators of a Dispatcher.
type Option func(*Dispatcher)

// WithDispatchLog records every payload in repo.
func WithDispatchLog(repo repository.DispatchRepository) Option {
	return func(d *Dispatcher) { d.log = repo }
}

func WithForwarder(f Forwarder) Option {
	return func(d *Dispatcher) { d.forwarder = f }
}

func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func NewDispatcher(hub Publisher, metrics *observability.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		hub:     hub,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logging.Component("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch emits one alert for the (disaster, config) pair. Delivery is
// best-effort: hub, dispatch log and relay failures are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, disaster *models.DisasterEvent, cfg *models.AlertConfig) (models.AlertPayload, error) {
	if err := ctx.Err(); err != nil {
		return models.AlertPayload{}, err
	}

	p := models.AlertPayload{
		ID:            uuid.NewString(),
		DisasterID:    disaster.ID,
		AlertConfigID: cfg.ID,
		DisasterType:  disaster.Type,
		Severity:      disaster.Severity,
		Location:      disaster.Location,
		Description:   disaster.Description,
		Channels:      ChannelDecisions(cfg.Channels),
		Timestamp:     d.clock.Now().UTC(),
	}

	n := d.hub.Publish(string(disaster.Type), realtime.EventDisasterAlert, p)
	d.logger.Info("alert dispatched",
		"disaster_id", p.DisasterID,
		"config_id", p.AlertConfigID,
		"severity", p.Severity,
		"channels", len(p.Channels),
		"subscribers", n,
	)

	if d.log != nil {
		if err := d.log.AddDispatch(ctx, &p); err != nil {
			d.logger.Warn("error recording dispatch", "disaster_id", p.DisasterID, "config_id", p.AlertConfigID, "error", err)
		}
	}
	if d.forwarder != nil {
		d.forwarder.Forward(p)
	}
	if d.metrics != nil {
		d.metrics.AlertsDispatched.WithLabelValues(string(p.DisasterType)).Inc()
	}
	return p, nil
}
