package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/geo"
)

type DisasterType string

const (
	DisasterTypeEarthquake DisasterType = "EARTHQUAKE"
	DisasterTypeFlood      DisasterType = "FLOOD"
	DisasterTypeFire       DisasterType = "FIRE"
	DisasterTypeStorm      DisasterType = "STORM"
	DisasterTypeOther      DisasterType = "OTHER"

	// DisasterTypeAll is only valid on alert configs and as a fan-out topic.
	DisasterTypeAll DisasterType = "ALL"
)

var eventTypes = []DisasterType{
	DisasterTypeEarthquake,
	DisasterTypeFlood,
	DisasterTypeFire,
	DisasterTypeStorm,
	DisasterTypeOther,
}

// ParseDisasterType is case-insensitive and rejects ALL.
func ParseDisasterType(s string) (DisasterType, bool) {
	t := DisasterType(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range eventTypes {
		if v == t {
			return t, true
		}
	}
	return "", false
}

type Status string

const (
	StatusDetected   Status = "DETECTED"
	StatusMonitoring Status = "MONITORING"
	StatusResponding Status = "RESPONDING"
	StatusContained  Status = "CONTAINED"
	StatusResolved   Status = "RESOLVED"
)

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusDetected, StatusMonitoring, StatusResponding, StatusContained, StatusResolved:
		return st, true
	}
	return "", false
}

// Location is a WGS84 point. It travels as a GeoJSON Point on the wire.
type Location struct {
	Longitude float64
	Latitude  float64
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{
		Type:        "Point",
		Coordinates: []float64{l.Longitude, l.Latitude},
	})
}

func (l *Location) UnmarshalJSON(b []byte) error {
	var p geoJSONPoint
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if len(p.Coordinates) != 2 {
		return fmt.Errorf("%w: location needs [longitude, latitude]", ErrInvalidInput)
	}
	l.Longitude, l.Latitude = p.Coordinates[0], p.Coordinates[1]
	return nil
}

func (l Location) Valid() bool {
	return geo.ValidCoordinates(l.Latitude, l.Longitude)
}

type Reading struct {
	SensorID  string    `json:"sensorId"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type DisasterEvent struct {
	ID           string       `json:"id"`
	Type         DisasterType `json:"type"`
	Location     Location     `json:"location"`
	Severity     int          `json:"severity"` // 1-10
	Description  string       `json:"description"`
	AffectedArea float64      `json:"affectedArea"` // km²
	Status       Status       `json:"status"`
	StartTime    time.Time    `json:"startTime"`
	EndTime      *time.Time   `json:"endTime,omitempty"`
	Readings     []Reading    `json:"readings"`
	AlertsSent   bool         `json:"alertsSent"`
	SourceRef    string       `json:"sourceRef,omitempty"` // external id used to de-duplicate feeds
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func ValidSeverity(s int) bool {
	return s >= 1 && s <= 10
}

// Validate checks the fields required before a disaster can be persisted.
func (d *DisasterEvent) Validate() error {
	if _, ok := ParseDisasterType(string(d.Type)); !ok {
		return fmt.Errorf("%w: unknown disaster type %q", ErrInvalidInput, d.Type)
	}
	if !d.Location.Valid() {
		return fmt.Errorf("%w: invalid location %v", ErrInvalidInput, d.Location)
	}
	if !ValidSeverity(d.Severity) {
		return fmt.Errorf("%w: severity must be between 1 and 10, got %d", ErrInvalidInput, d.Severity)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if d.Status != "" {
		if _, ok := ParseStatus(string(d.Status)); !ok {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
		}
	}
	return nil
}
