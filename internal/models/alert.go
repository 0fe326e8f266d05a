package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/geo"
)

const (
	DefaultSeverityThreshold = 5
	DefaultCooldownMinutes   = 30
)

// ParseAlertTarget accepts any event type plus ALL.
func ParseAlertTarget(s string) (DisasterType, bool) {
	if DisasterType(strings.ToUpper(strings.TrimSpace(s))) == DisasterTypeAll {
		return DisasterTypeAll, true
	}
	t, ok := ParseDisasterType(s)
	if !ok || t == DisasterTypeOther {
		return "", false
	}
	return t, true
}

type RegionType string

const (
	RegionPoint   RegionType = "Point"
	RegionPolygon RegionType = "Polygon"
)

// Region is either a center point with a radius or a polygon ring of
// [lon, lat] pairs. The zero value places no constraint.
type Region struct {
	Type     RegionType  `json:"type,omitempty"`
	Center   *Location   `json:"center,omitempty"`
	RadiusKm float64     `json:"radiusKm,omitempty"`
	Polygon  [][]float64 `json:"polygon,omitempty"`
}

func (r Region) IsZero() bool {
	return r.Type == ""
}

func (r Region) Contains(loc Location) bool {
	if r.IsZero() {
		return true
	}
	switch r.Type {
	case RegionPoint:
		if r.Center == nil {
			return false
		}
		return geo.Within(r.Center.Latitude, r.Center.Longitude, loc.Latitude, loc.Longitude, r.RadiusKm, geo.Kilometers)
	case RegionPolygon:
		return geo.InPolygon(loc.Latitude, loc.Longitude, r.Polygon)
	default:
		return false
	}
}

func (r Region) Validate() error {
	if r.IsZero() {
		return nil
	}
	switch r.Type {
	case RegionPoint:
		if r.Center == nil || !r.Center.Valid() {
			return fmt.Errorf("%w: point region needs a valid center", ErrInvalidInput)
		}
		if r.RadiusKm <= 0 {
			return fmt.Errorf("%w: point region needs a positive radiusKm", ErrInvalidInput)
		}
	case RegionPolygon:
		if len(r.Polygon) < 3 {
			return fmt.Errorf("%w: polygon region needs at least 3 vertices", ErrInvalidInput)
		}
		for _, p := range r.Polygon {
			if len(p) != 2 || !geo.ValidCoordinates(p[1], p[0]) {
				return fmt.Errorf("%w: polygon vertex %v is not a [lon, lat] pair", ErrInvalidInput, p)
			}
		}
	default:
		return fmt.Errorf("%w: unknown region type %q", ErrInvalidInput, r.Type)
	}
	return nil
}

type RecipientChannel struct {
	Enabled    bool     `json:"enabled"`
	Recipients []string `json:"recipients,omitempty"`
}

type ServiceChannel struct {
	Enabled    bool     `json:"enabled"`
	ServiceIDs []string `json:"serviceIds,omitempty"`
}

type Channels struct {
	SMS               RecipientChannel `json:"sms"`
	Email             RecipientChannel `json:"email"`
	Push              RecipientChannel `json:"push"`
	EmergencyServices ServiceChannel   `json:"emergencyServices"`
}

// DefaultChannels mirrors a freshly created config: push on, everything else off.
func DefaultChannels() Channels {
	return Channels{Push: RecipientChannel{Enabled: true}}
}

type AlertConfig struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	DisasterType      DisasterType `json:"disasterType"` // event type or ALL
	Region            Region       `json:"region"`
	SeverityThreshold int          `json:"severityThreshold"`
	Channels          Channels     `json:"channels"`
	CooldownPeriod    int          `json:"cooldownPeriod"` // minutes
	LastTriggered     *time.Time   `json:"lastTriggered,omitempty"`
	IsActive          bool         `json:"isActive"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

func (c *AlertConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownPeriod) * time.Minute
}

// Applies reports whether the config targets disasters of type t.
func (c *AlertConfig) Applies(t DisasterType) bool {
	return c.DisasterType == DisasterTypeAll || c.DisasterType == t
}

// Matches is the store-side predicate evaluated in memory: active, type or
// ALL, and threshold at or below the severity.
func (c *AlertConfig) Matches(d *DisasterEvent) bool {
	return c.IsActive && c.Applies(d.Type) && c.SeverityThreshold <= d.Severity
}

// InCooldown reports whether fewer than CooldownPeriod minutes have passed
// since the last trigger. A config that never fired is never in cooldown.
func (c *AlertConfig) InCooldown(now time.Time) bool {
	if c.LastTriggered == nil {
		return false
	}
	return now.Sub(*c.LastTriggered) < c.Cooldown()
}

func (c *AlertConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, ok := ParseAlertTarget(string(c.DisasterType)); !ok {
		return fmt.Errorf("%w: unknown disaster type %q", ErrInvalidInput, c.DisasterType)
	}
	if !ValidSeverity(c.SeverityThreshold) {
		return fmt.Errorf("%w: severityThreshold must be between 1 and 10, got %d", ErrInvalidInput, c.SeverityThreshold)
	}
	if c.CooldownPeriod < 0 {
		return fmt.Errorf("%w: cooldownPeriod cannot be negative", ErrInvalidInput)
	}
	return c.Region.Validate()
}
