package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-sentinel/internal/config"
	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/simulation"
	"github.com/mr1hm/disaster-sentinel/internal/worker"
)

// SensorJob is one raw reading waiting to be classified.
type SensorJob struct {
	Source string
	Type   string
	Raw    map[string]any
}

type Simulator interface {
	Simulate(ctx context.Context, disasterType string, raw map[string]any) (*models.DisasterEvent, error)
}

// Manager runs the background feeds. Every reading goes through the ingest
// pool into the service.
type Manager struct {
	cfg       *config.Config
	service   Simulator
	generator *simulation.Generator
	clock     clockwork.Clock
	pool      *worker.Pool[SensorJob]
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewManager(cfg *config.Config, service Simulator, generator *simulation.Generator, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		cfg:       cfg,
		service:   service,
		generator: generator,
		clock:     clock,
		logger:    logging.Component("ingest"),
	}
}

// Start runs the ingest pool on ctx. Pollers get their own child context so
// Stop can end them while the pool drains on a live ctx.
func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, job SensorJob) error {
		d, err := m.service.Simulate(ctx, job.Type, job.Raw)
		if err != nil {
			m.logger.Error("error ingesting reading", "source", job.Source, "type", job.Type, "error", err)
			return nil
		}
		if d != nil {
			m.logger.Debug("reading produced disaster", "source", job.Source, "id", d.ID)
		}
		return nil
	}

	m.pool = worker.NewPool("ingest", m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	m.pool.Start(ctx)

	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.Sources.SimulationEnabled && m.generator != nil {
		m.wg.Add(1)
		go m.runPoller(pollCtx, "simulation", m.cfg.Sources.SimulationInterval, m.simulate)
	}

	if m.cfg.Sources.USGSEnabled {
		url := m.cfg.Sources.USGSURL
		m.wg.Add(1)
		go m.runPoller(pollCtx, "usgs", m.cfg.Sources.USGSPollInterval, func(ctx context.Context) ([]SensorJob, error) {
			return fetchUSGS(ctx, url)
		})
	}
}

// Submit queues a reading for classification.
func (m *Manager) Submit(ctx context.Context, job SensorJob) error {
	return m.pool.Submit(ctx, job)
}

func (m *Manager) runPoller(ctx context.Context, source string, interval time.Duration, fetch func(context.Context) ([]SensorJob, error)) {
	defer m.wg.Done()
	m.logger.Info("starting poller", "source", source, "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.poll(ctx, source, fetch)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("poller shutting down", "source", source)
			return
		case <-ticker.Chan():
			m.poll(ctx, source, fetch)
		}
	}
}

func (m *Manager) poll(ctx context.Context, source string, fetch func(context.Context) ([]SensorJob, error)) {
	m.logger.Debug("polling", "source", source)

	jobs, err := fetch(ctx)
	if err != nil {
		m.logger.Error("poll failed", "source", source, "error", err)
		return
	}

	for _, job := range jobs {
		if err := m.Submit(ctx, job); err != nil {
			m.logger.Warn("dropping reading", "source", source, "error", err)
			return
		}
	}

	m.logger.Debug("poll complete", "source", source, "count", len(jobs))
}

func (m *Manager) simulate(_ context.Context) ([]SensorJob, error) {
	jobs := make([]SensorJob, 0, len(m.cfg.Sources.SimulationTypes))
	for _, typ := range m.cfg.Sources.SimulationTypes {
		t, ok := models.ParseDisasterType(typ)
		if !ok {
			continue
		}
		raw, err := m.generator.Reading(t)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, SensorJob{Source: "simulation", Type: string(t), Raw: raw})
	}
	return jobs, nil
}

// Stop ends the pollers, then waits for queued readings to be ingested.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.pool.Stop()
	m.logger.Info("ingestion manager stopped")
}
