package repository

import (
	"context"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/geo"
	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type DisasterFilter struct {
	Limit       int
	Offset      int
	Type        *models.DisasterType
	MinSeverity *int
	Status      *models.Status
	Since       *time.Time // start_time >= Since
	Until       *time.Time // start_time <= Until
	AlertsSent  *bool
}

type NearbyQuery struct {
	Longitude float64
	Latitude  float64
	Distance  float64
	Unit      geo.Unit
}

// DisasterRepository stores disaster events. Lookups of a missing id return
// nil, nil; mutations of a missing id return false.
type DisasterRepository interface {
	Add(ctx context.Context, d *models.DisasterEvent) error
	GetByID(ctx context.Context, id string) (*models.DisasterEvent, error)
	ExistsBySourceRef(ctx context.Context, ref string) (bool, error)
	ListDisasters(ctx context.Context, opts DisasterFilter) ([]models.DisasterEvent, error)
	Nearby(ctx context.Context, q NearbyQuery) ([]models.DisasterEvent, error)
	Update(ctx context.Context, d *models.DisasterEvent) (bool, error)
	AppendReading(ctx context.Context, id string, r models.Reading) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// MarkAlertsSent sets alerts_sent unconditionally.
	MarkAlertsSent(ctx context.Context, id string) error
	// ClaimAlertsSent flips alerts_sent from false to true and reports whether
	// this call performed the flip.
	ClaimAlertsSent(ctx context.Context, id string) (bool, error)
}

type ConfigFilter struct {
	DisasterType *models.DisasterType
	IsActive     *bool
}

type AlertConfigRepository interface {
	AddConfig(ctx context.Context, c *models.AlertConfig) error
	GetConfig(ctx context.Context, id string) (*models.AlertConfig, error)
	ListConfigs(ctx context.Context, opts ConfigFilter) ([]models.AlertConfig, error)
	UpdateConfig(ctx context.Context, c *models.AlertConfig) (bool, error)
	DeleteConfig(ctx context.Context, id string) (bool, error)
	// FindMatching returns active configs for t or ALL whose threshold is at
	// or below severity.
	FindMatching(ctx context.Context, t models.DisasterType, severity int) ([]models.AlertConfig, error)
	// SetLastTriggered moves last_triggered forward to at. It never moves it back.
	SetLastTriggered(ctx context.Context, id string, at time.Time) error
	// ClaimCooldown sets last_triggered to at only if the config's cooldown
	// has elapsed, and reports whether it did.
	ClaimCooldown(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseCooldown puts previous back into last_triggered if it still
	// holds claimed, and reports whether it did.
	ReleaseCooldown(ctx context.Context, id string, claimed time.Time, previous *time.Time) (bool, error)
}

type DispatchRepository interface {
	AddDispatch(ctx context.Context, p *models.AlertPayload) error
	ListDispatches(ctx context.Context, disasterID string) ([]models.AlertPayload, error)
}

// Store is the full persistence surface backed by one database.
type Store interface {
	DisasterRepository
	AlertConfigRepository
	DispatchRepository
	Ping(ctx context.Context) error
}
