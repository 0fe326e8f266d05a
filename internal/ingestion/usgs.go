package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  int64    `json:"time"` // unix millis
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

var usgsClient = &http.Client{
	Timeout: 15 * time.Second,
}

// fetchUSGS reads a USGS GeoJSON summary feed and turns each event into an
// earthquake reading keyed by its USGS id.
func fetchUSGS(ctx context.Context, url string) ([]SensorJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := usgsClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data usgsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	jobs := make([]SensorJob, 0, len(data.Features))
	for _, f := range data.Features {
		if f.Properties.Mag == nil || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		raw := map[string]any{
			"magnitude": *f.Properties.Mag,
			"longitude": f.Geometry.Coordinates[0],
			"latitude":  f.Geometry.Coordinates[1],
			"location":  f.Properties.Place,
			"sensorId":  "USGS",
			"sourceRef": "usgs_" + f.ID,
		}
		if len(f.Geometry.Coordinates) > 2 {
			raw["depth"] = f.Geometry.Coordinates[2]
		}
		jobs = append(jobs, SensorJob{Source: "usgs", Type: string(models.DisasterTypeEarthquake), Raw: raw})
	}

	return jobs, nil
}
