package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/observability"
)

// Dispatcher emits the alert for one matched config.
type Dispatcher interface {
	Dispatch(ctx context.Context, d *models.DisasterEvent, cfg *models.AlertConfig) (models.AlertPayload, error)
}

type DisasterStore interface {
	GetByID(ctx context.Context, id string) (*models.DisasterEvent, error)
	MarkAlertsSent(ctx context.Context, id string) error
	ClaimAlertsSent(ctx context.Context, id string) (bool, error)
}

type ConfigStore interface {
	FindMatching(ctx context.Context, t models.DisasterType, severity int) ([]models.AlertConfig, error)
	SetLastTriggered(ctx context.Context, id string, at time.Time) error
	ClaimCooldown(ctx context.Context, id string, at time.Time) (bool, error)
	ReleaseCooldown(ctx context.Context, id string, claimed time.Time, previous *time.Time) (bool, error)
}

type Options struct {
	// AtomicGuards claims the disaster and each config's cooldown slot with
	// conditional writes before dispatching. When false, writes follow the
	// dispatch and concurrent passes may both fire.
	AtomicGuards bool
	// RegionMatching drops configs whose region does not contain the
	// disaster location.
	RegionMatching bool
}

// Result summarizes one matching pass.
type Result struct {
	DisasterID       string
	AlreadyProcessed bool
	Matched          int
	Dispatched       int
	Suppressed       int
	Failed           int
}

type Engine struct {
	disasters  DisasterStore
	configs    ConfigStore
	dispatcher Dispatcher
	opts       Options
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewEngine(disasters DisasterStore, configs ConfigStore, dispatcher Dispatcher, opts Options, clock clockwork.Clock, metrics *observability.Metrics) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		disasters:  disasters,
		configs:    configs,
		dispatcher: dispatcher,
		opts:       opts,
		clock:      clock,
		metrics:    metrics,
		logger:     logging.Component("alerting"),
	}
}

// Process runs the single matching pass for a disaster. Once the disaster is
// marked processed, later calls are no-ops.
func (e *Engine) Process(ctx context.Context, disasterID string) (Result, error) {
	start := e.clock.Now()
	res, err := e.process(ctx, disasterID)

	outcome := "processed"
	switch {
	case errors.Is(err, models.ErrNotFound):
		outcome = "not_found"
		e.logger.Warn("disaster not found for matching", "disaster_id", disasterID)
	case err != nil:
		outcome = "error"
		e.logger.Error("matching pass failed", "disaster_id", disasterID, "error", err)
	case res.AlreadyProcessed:
		outcome = "already_processed"
	default:
		e.logger.Info("matching pass complete",
			"disaster_id", disasterID,
			"matched", res.Matched,
			"dispatched", res.Dispatched,
			"suppressed", res.Suppressed,
			"failed", res.Failed,
		)
	}

	if e.metrics != nil {
		e.metrics.MatchPasses.WithLabelValues(outcome).Inc()
		e.metrics.MatchDuration.Observe(e.clock.Since(start).Seconds())
		e.metrics.AlertsSuppressed.Add(float64(res.Suppressed))
		e.metrics.ConfigFailures.Add(float64(res.Failed))
	}
	return res, err
}

// Trigger is the manual entry point. It reports whether the pass completed.
func (e *Engine) Trigger(ctx context.Context, disasterID string) bool {
	_, err := e.Process(ctx, disasterID)
	return err == nil
}

func (e *Engine) process(ctx context.Context, disasterID string) (Result, error) {
	res := Result{DisasterID: disasterID}

	d, err := e.disasters.GetByID(ctx, disasterID)
	if err != nil {
		return res, fmt.Errorf("%w: load disaster %s: %v", models.ErrPersistence, disasterID, err)
	}
	if d == nil {
		return res, fmt.Errorf("%w: disaster %s", models.ErrNotFound, disasterID)
	}
	if d.AlertsSent {
		res.AlreadyProcessed = true
		return res, nil
	}

	configs, err := e.configs.FindMatching(ctx, d.Type, d.Severity)
	if err != nil {
		return res, fmt.Errorf("%w: find configs for %s: %v", models.ErrPersistence, disasterID, err)
	}
	configs = lo.Filter(configs, func(c models.AlertConfig, _ int) bool {
		return c.Matches(d) && (!e.opts.RegionMatching || c.Region.Contains(d.Location))
	})
	res.Matched = len(configs)

	_, finalize := MarkProcessed(*d)
	if e.opts.AtomicGuards {
		won, err := e.apply(ctx, finalize.Guarded())
		if err != nil {
			return res, err
		}
		if !won {
			res.AlreadyProcessed = true
			return res, nil
		}
	}

	now := e.clock.Now()
	for i := range configs {
		e.fire(ctx, d, configs[i], now, &res)
	}

	if !e.opts.AtomicGuards {
		if _, err := e.apply(ctx, finalize); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) fire(ctx context.Context, d *models.DisasterEvent, cfg models.AlertConfig, now time.Time, res *Result) {
	triggered, cmd, ok := Trigger(cfg, now)
	if !ok {
		res.Suppressed++
		e.logger.Debug("config in cooldown", "disaster_id", d.ID, "config_id", cfg.ID)
		return
	}

	if e.opts.AtomicGuards {
		won, err := e.apply(ctx, cmd.Guarded())
		if err != nil {
			res.Failed++
			e.logger.Error("error claiming cooldown", "disaster_id", d.ID, "config_id", cfg.ID, "error", err)
			return
		}
		if !won {
			res.Suppressed++
			e.logger.Debug("config triggered concurrently", "disaster_id", d.ID, "config_id", cfg.ID)
			return
		}
	}

	if _, err := e.dispatcher.Dispatch(ctx, d, &triggered); err != nil {
		res.Failed++
		e.logger.Error("error dispatching alert", "disaster_id", d.ID, "config_id", cfg.ID, "error", err)
		if e.opts.AtomicGuards {
			e.release(ctx, cfg, now)
		}
		return
	}
	res.Dispatched++

	if !e.opts.AtomicGuards {
		if _, err := e.apply(ctx, cmd); err != nil {
			res.Failed++
			e.logger.Error("error updating last triggered", "disaster_id", d.ID, "config_id", cfg.ID, "error", err)
		}
	}
}

// release hands a claimed cooldown slot back after a failed dispatch. It only
// takes effect while the slot still holds this pass's timestamp.
func (e *Engine) release(ctx context.Context, cfg models.AlertConfig, claimed time.Time) {
	ok, err := e.configs.ReleaseCooldown(context.WithoutCancel(ctx), cfg.ID, claimed, cfg.LastTriggered)
	if err != nil {
		e.logger.Error("error releasing cooldown", "config_id", cfg.ID, "error", err)
		return
	}
	if !ok {
		e.logger.Warn("cooldown slot moved before release", "config_id", cfg.ID)
	}
}

// apply persists cmd. For guarded commands the bool reports whether the
// conditional write took effect; unguarded writes always report true.
func (e *Engine) apply(ctx context.Context, cmd Command) (bool, error) {
	var (
		won = true
		err error
	)
	switch cmd.Kind {
	case CommandMarkAlertsSent:
		if cmd.Guard {
			won, err = e.disasters.ClaimAlertsSent(ctx, cmd.DisasterID)
		} else {
			err = e.disasters.MarkAlertsSent(ctx, cmd.DisasterID)
		}
	case CommandSetLastTriggered:
		if cmd.Guard {
			won, err = e.configs.ClaimCooldown(ctx, cmd.ConfigID, cmd.At)
		} else {
			err = e.configs.SetLastTriggered(ctx, cmd.ConfigID, cmd.At)
		}
	default:
		return false, fmt.Errorf("unknown command %s", cmd.Kind)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", models.ErrPersistence, cmd.Kind, err)
	}
	return won, nil
}
