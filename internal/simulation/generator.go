// Package simulation produces synthetic sensor readings in the raw shape the
// classifier accepts.
package simulation

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type Site struct {
	Name      string
	Latitude  float64
	Longitude float64
}

var DefaultSites = map[models.DisasterType][]Site{
	models.DisasterTypeEarthquake: {
		{"Tokyo, Japan", 35.68, 139.69},
		{"San Francisco, CA", 37.77, -122.42},
		{"Santiago, Chile", -33.45, -70.67},
		{"Kathmandu, Nepal", 27.72, 85.32},
	},
	models.DisasterTypeFlood: {
		{"Dhaka, Bangladesh", 23.81, 90.41},
		{"New Orleans, LA", 29.95, -90.07},
		{"Jakarta, Indonesia", -6.21, 106.85},
	},
	models.DisasterTypeFire: {
		{"Los Angeles, CA", 34.05, -118.24},
		{"Sydney, Australia", -33.87, 151.21},
		{"Athens, Greece", 37.98, 23.73},
	},
	models.DisasterTypeStorm: {
		{"Miami, FL", 25.76, -80.19},
		{"Manila, Philippines", 14.60, 120.98},
	},
}

type field struct {
	name     string
	min, max float64
}

// Ranges straddle each type's trigger so some readings stay below it.
var profiles = map[models.DisasterType][]field{
	models.DisasterTypeEarthquake: {{"magnitude", 2.5, 8.5}, {"depth", 1, 70}},
	models.DisasterTypeFlood:      {{"waterLevel", 1, 6}, {"flowRate", 0, 500}},
	models.DisasterTypeFire:       {{"temperature", 30, 150}, {"smokeLevel", 0, 100}},
	models.DisasterTypeStorm:      {{"windSpeed", 20, 130}, {"precipitation", 0, 60}},
}

const jitterDegrees = 0.25

// Generator is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sites map[models.DisasterType][]Site
	seq   map[models.DisasterType]int
}

func NewGenerator(seed int64, sites map[models.DisasterType][]Site) *Generator {
	if sites == nil {
		sites = DefaultSites
	}
	return &Generator{
		rng:   rand.New(rand.NewSource(seed)),
		sites: sites,
		seq:   make(map[models.DisasterType]int),
	}
}

// Reading returns one raw reading for t at a jittered known site.
func (g *Generator) Reading(t models.DisasterType) (map[string]any, error) {
	fields, ok := profiles[t]
	sites := g.sites[t]
	if !ok || len(sites) == 0 {
		return nil, fmt.Errorf("%w: no simulation profile for %s", models.ErrInvalidInput, t)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	site := sites[g.rng.Intn(len(sites))]
	g.seq[t]++

	raw := map[string]any{
		"latitude":  round(clampLat(site.Latitude+g.jitter()), 4),
		"longitude": round(wrapLon(site.Longitude+g.jitter()), 4),
		"location":  site.Name,
		"sensorId":  fmt.Sprintf("SIM-%s-%d", t, g.seq[t]),
	}
	for _, f := range fields {
		raw[f.name] = round(f.min+g.rng.Float64()*(f.max-f.min), 1)
	}
	return raw, nil
}

func (g *Generator) jitter() float64 {
	return (g.rng.Float64()*2 - 1) * jitterDegrees
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	switch {
	case lon > 180:
		return lon - 360
	case lon < -180:
		return lon + 360
	}
	return lon
}
