package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-sentinel/internal/classifier"
	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/observability"
	"github.com/mr1hm/disaster-sentinel/internal/realtime"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

// Scheduler queues a matching pass for a disaster.
type Scheduler interface {
	Schedule(ctx context.Context, disasterID string) error
}

type Publisher interface {
	Publish(topic, event string, data any) int
}

// DisasterPatch holds the fields an update may change. Nil means unchanged.
type DisasterPatch struct {
	Severity     *int           `json:"severity"`
	Status       *models.Status `json:"status"`
	Description  *string        `json:"description"`
	AffectedArea *float64       `json:"affectedArea"`
	EndTime      *time.Time     `json:"endTime"`
}

// ReadingEvent is the body of a new-reading message.
type ReadingEvent struct {
	DisasterID string         `json:"disasterId"`
	Reading    models.Reading `json:"reading"`
}

// DeleteEvent is the body of a delete-disaster message.
type DeleteEvent struct {
	ID string `json:"id"`
}

// Service owns the disaster lifecycle: classify, persist, publish and hand
// off to matching.
type Service struct {
	store      repository.DisasterRepository
	classifier *classifier.Classifier
	hub        Publisher
	scheduler  Scheduler
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewService(store repository.DisasterRepository, c *classifier.Classifier, hub Publisher, scheduler Scheduler, clock clockwork.Clock, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:      store,
		classifier: c,
		hub:        hub,
		scheduler:  scheduler,
		clock:      clock,
		metrics:    metrics,
		logger:     logging.Component("ingestion"),
	}
}

// Simulate classifies a raw reading and creates a disaster when it crosses
// the trigger. It returns nil, nil for readings below the trigger and for
// readings whose sourceRef was already ingested.
func (s *Service) Simulate(ctx context.Context, disasterType string, raw map[string]any) (*models.DisasterEvent, error) {
	label := strings.ToUpper(disasterType)

	req, err := s.classifier.Classify(disasterType, raw)
	if err != nil {
		s.count(label, "invalid")
		return nil, err
	}
	if req == nil {
		s.count(label, "below_threshold")
		s.logger.Debug("reading below threshold", "type", label)
		return nil, nil
	}

	if req.SourceRef != "" {
		exists, err := s.store.ExistsBySourceRef(ctx, req.SourceRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		if exists {
			s.count(label, "duplicate")
			return nil, nil
		}
	}

	s.count(label, "qualified")
	d := req.Event(uuid.NewString(), s.clock.Now().UTC())
	if err := s.Create(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create validates and persists d, fills in defaults, publishes
// new-disaster and schedules matching.
func (s *Service) Create(ctx context.Context, d *models.DisasterEvent) error {
	now := s.clock.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.StatusDetected
	}
	if d.StartTime.IsZero() {
		d.StartTime = now
	}
	if d.Readings == nil {
		d.Readings = []models.Reading{}
	}
	d.AlertsSent = false
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.store.Add(ctx, d); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	if s.metrics != nil {
		s.metrics.DisastersCreated.WithLabelValues(string(d.Type)).Inc()
	}
	s.logger.Info("disaster created", "id", d.ID, "type", d.Type, "severity", d.Severity)

	s.hub.Publish(string(d.Type), realtime.EventNewDisaster, d)
	s.schedule(ctx, d.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.DisasterEvent, error) {
	d, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: disaster %s", models.ErrNotFound, id)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, filter repository.DisasterFilter) ([]models.DisasterEvent, error) {
	disasters, err := s.store.ListDisasters(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return disasters, nil
}

func (s *Service) Nearby(ctx context.Context, q repository.NearbyQuery) ([]models.DisasterEvent, error) {
	disasters, err := s.store.Nearby(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return disasters, nil
}

// Update applies patch, publishes update-disaster and schedules matching.
// The matching pass is a no-op for disasters already processed.
func (s *Service) Update(ctx context.Context, id string, patch DisasterPatch) (*models.DisasterEvent, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Severity != nil {
		d.Severity = *patch.Severity
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.AffectedArea != nil {
		if *patch.AffectedArea < 0 {
			return nil, fmt.Errorf("%w: affectedArea cannot be negative", models.ErrInvalidInput)
		}
		d.AffectedArea = *patch.AffectedArea
	}
	if patch.EndTime != nil {
		end := patch.EndTime.UTC()
		d.EndTime = &end
	}
	d.UpdatedAt = s.clock.Now().UTC()

	if err := d.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.store.Update(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: disaster %s", models.ErrNotFound, id)
	}

	s.hub.Publish(string(d.Type), realtime.EventUpdateDisaster, d)
	s.schedule(ctx, d.ID)
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if !ok {
		return fmt.Errorf("%w: disaster %s", models.ErrNotFound, id)
	}

	s.logger.Info("disaster deleted", "id", id)
	s.hub.Publish(string(d.Type), realtime.EventDeleteDisaster, DeleteEvent{ID: id})
	return nil
}

// AddReading appends r to the disaster's readings and publishes new-reading.
func (s *Service) AddReading(ctx context.Context, id string, r models.Reading) (*models.DisasterEvent, error) {
	if strings.TrimSpace(r.SensorID) == "" {
		return nil, fmt.Errorf("%w: sensorId is required", models.ErrInvalidInput)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock.Now()
	}
	r.Timestamp = r.Timestamp.UTC()

	ok, err := s.store.AppendReading(ctx, id, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: disaster %s", models.ErrNotFound, id)
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(string(d.Type), realtime.EventNewReading, ReadingEvent{DisasterID: id, Reading: r})
	return d, nil
}

func (s *Service) schedule(ctx context.Context, id string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(ctx, id); err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "error scheduling matching", "disaster_id", id, "error", err)
	}
}

func (s *Service) count(typ, outcome string) {
	if s.metrics != nil {
		s.metrics.ReadingsClassified.WithLabelValues(typ, outcome).Inc()
	}
}
