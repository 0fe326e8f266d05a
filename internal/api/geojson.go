package api

import (
	"strings"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(disasters []models.DisasterEvent) FeatureCollection {
	features := make([]Feature, 0, len(disasters))

	for _, d := range disasters {
		props := map[string]any{
			"id":           d.ID,
			"type":         strings.ToLower(string(d.Type)),
			"severity":     d.Severity,
			"description":  d.Description,
			"status":       strings.ToLower(string(d.Status)),
			"affectedArea": d.AffectedArea,
			"alertsSent":   d.AlertsSent,
			"startTime":    d.StartTime,
			"readings":     len(d.Readings),
		}
		if d.EndTime != nil {
			props["endTime"] = *d.EndTime
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{d.Location.Longitude, d.Location.Latitude},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
