// Package classifier turns raw sensor readings into disaster creation
// requests. Classification is a lookup in a rule table followed by pure
// arithmetic; the only input besides the reading is the clock used to stamp it.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported disaster type", models.ErrInvalidInput)
	// ErrNoSeverityFormula is returned when a reading qualifies for a type
	// whose severity formula is not defined (STORM by default).
	ErrNoSeverityFormula = errors.New("severity formula not implemented")
)

const defaultPlace = "Unknown location"

// CreateRequest is everything needed to persist a new disaster.
type CreateRequest struct {
	Type        models.DisasterType
	Location    models.Location
	Severity    int
	Description string
	Reading     models.Reading
	SourceRef   string
}

// Event builds the initial DisasterEvent for a creation request.
func (r *CreateRequest) Event(id string, now time.Time) models.DisasterEvent {
	return models.DisasterEvent{
		ID:          id,
		Type:        r.Type,
		Location:    r.Location,
		Severity:    r.Severity,
		Description: r.Description,
		Status:      models.StatusDetected,
		StartTime:   now,
		Readings:    []models.Reading{r.Reading},
		AlertsSent:  false,
		SourceRef:   r.SourceRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type Classifier struct {
	table Table
	clock clockwork.Clock
}

func New(table Table, clock clockwork.Clock) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Classifier{table: table, clock: clock}
}

// Classify returns a creation request when the reading crosses the type's
// trigger, or nil, nil when it was observed but is not a disaster.
func (c *Classifier) Classify(disasterType string, raw map[string]any) (*CreateRequest, error) {
	t, ok := models.ParseDisasterType(disasterType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, disasterType)
	}
	rule, ok := c.table[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, disasterType)
	}

	lat, err := requireFloat(raw, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := requireFloat(raw, "longitude")
	if err != nil {
		return nil, err
	}
	loc := models.Location{Longitude: lon, Latitude: lat}
	if !loc.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates (%s, %s)", models.ErrInvalidInput, num(lat), num(lon))
	}

	m, err := measure(rule, raw)
	if err != nil {
		return nil, err
	}

	if !rule.Trigger(m) {
		return nil, nil
	}
	if rule.Severity == nil {
		return nil, fmt.Errorf("%s: %w", t, ErrNoSeverityFormula)
	}

	place := stringField(raw, "location", defaultPlace)
	sensorID := stringField(raw, "sensorId", "SIM-"+string(t)+"-1")

	return &CreateRequest{
		Type:        t,
		Location:    loc,
		Severity:    rule.Severity(m),
		Description: rule.Describe(m, place),
		Reading: models.Reading{
			SensorID:  sensorID,
			Value:     m[rule.Primary],
			Timestamp: c.clock.Now(),
		},
		SourceRef: stringField(raw, "sourceRef", ""),
	}, nil
}

func measure(rule Rule, raw map[string]any) (Measurements, error) {
	m := make(Measurements, len(rule.Required)+len(rule.AnyOf)+len(rule.Optional))

	for _, f := range rule.Required {
		v, err := requireFloat(raw, f)
		if err != nil {
			return nil, err
		}
		m[f] = v
	}

	if len(rule.AnyOf) > 0 {
		found := false
		for _, f := range rule.AnyOf {
			v, ok, err := optionalFloat(raw, f)
			if err != nil {
				return nil, err
			}
			if ok {
				m[f] = v
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: one of %s is required", models.ErrInvalidInput, strings.Join(rule.AnyOf, ", "))
		}
	}

	for _, f := range rule.Optional {
		v, ok, err := optionalFloat(raw, f)
		if err != nil {
			return nil, err
		}
		if ok {
			m[f] = v
		}
	}
	return m, nil
}

func requireFloat(raw map[string]any, field string) (float64, error) {
	v, ok, err := optionalFloat(raw, field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", models.ErrInvalidInput, field)
	}
	return v, nil
}

func optionalFloat(raw map[string]any, field string) (float64, bool, error) {
	v, present := raw[field]
	if !present || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = errors.New("not a finite number")
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s must be numeric: %v", models.ErrInvalidInput, field, err)
	}
	return f, true, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, errors.New("empty string")
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func stringField(raw map[string]any, field, fallback string) string {
	if s, ok := raw[field].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
