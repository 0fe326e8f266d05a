package classifier

import (
	"fmt"
	"io"
	"math"
	"strconv"

	yaml "gopkg.in/yaml.v2"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

// Measurements holds the numeric fields of one raw reading after coercion.
type Measurements map[string]float64

// Rule is one row of the classification table. Rules are plain data plus
// pure functions; nothing in a Rule is mutated after construction.
type Rule struct {
	// Required fields must be present and numeric.
	Required []string
	// AnyOf needs at least one present field when non-empty.
	AnyOf []string
	// Optional fields are coerced when present but never required.
	Optional []string
	// Primary names the field recorded as the reading value.
	Primary string
	// Trigger decides whether the reading is disaster-worthy.
	Trigger func(m Measurements) bool
	// Severity maps a qualifying reading to 1-10. Nil means no formula is defined.
	Severity func(m Measurements) int
	Describe func(m Measurements, place string) string
}

type Table map[models.DisasterType]Rule

// Thresholds are the tunable constants behind the default table. They can be
// overridden from a YAML file.
type Thresholds struct {
	Earthquake struct {
		Magnitude float64 `yaml:"magnitude"`
	} `yaml:"earthquake"`
	Flood struct {
		WaterLevel float64 `yaml:"waterLevel"`
	} `yaml:"flood"`
	Fire struct {
		Temperature float64 `yaml:"temperature"`
	} `yaml:"fire"`
	Storm struct {
		WindSpeed     float64 `yaml:"windSpeed"`
		Precipitation float64 `yaml:"precipitation"`
		// WindPerLevel enables a STORM severity of ceil(windSpeed / WindPerLevel).
		// Zero leaves STORM severity undefined.
		WindPerLevel float64 `yaml:"windPerLevel"`
	} `yaml:"storm"`
}

func DefaultThresholds() Thresholds {
	var t Thresholds
	t.Earthquake.Magnitude = 4.0
	t.Flood.WaterLevel = 3.0
	t.Fire.Temperature = 60
	t.Storm.WindSpeed = 65
	t.Storm.Precipitation = 25
	return t
}

// LoadThresholds reads YAML overrides on top of DefaultThresholds.
func LoadThresholds(r io.Reader) (Thresholds, error) {
	t := DefaultThresholds()

	buf, err := io.ReadAll(r)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(buf, &t); err != nil {
		return t, fmt.Errorf("error parsing thresholds: %w", err)
	}
	if t.Earthquake.Magnitude <= 0 || t.Flood.WaterLevel <= 0 || t.Fire.Temperature <= 0 {
		return t, fmt.Errorf("thresholds must be positive")
	}
	if t.Storm.WindPerLevel < 0 {
		return t, fmt.Errorf("storm windPerLevel cannot be negative")
	}
	return t, nil
}

// clamp bounds a severity to the 1-10 scale.
func clamp(v float64) int {
	s := int(math.Ceil(v))
	if s > 10 {
		return 10
	}
	if s < 1 {
		return 1
	}
	return s
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func DefaultTable() Table {
	return NewTable(DefaultThresholds())
}

func NewTable(th Thresholds) Table {
	t := Table{
		models.DisasterTypeEarthquake: {
			Required: []string{"magnitude"},
			Optional: []string{"depth"},
			Primary:  "magnitude",
			Trigger: func(m Measurements) bool {
				return m["magnitude"] >= th.Earthquake.Magnitude
			},
			Severity: func(m Measurements) int {
				return clamp(m["magnitude"])
			},
			Describe: func(m Measurements, place string) string {
				return fmt.Sprintf("Earthquake of magnitude %s detected at %s", num(m["magnitude"]), place)
			},
		},
		models.DisasterTypeFlood: {
			Required: []string{"waterLevel"},
			Optional: []string{"flowRate"},
			Primary:  "waterLevel",
			Trigger: func(m Measurements) bool {
				return m["waterLevel"] >= th.Flood.WaterLevel
			},
			Severity: func(m Measurements) int {
				return clamp(m["waterLevel"] * 2)
			},
			Describe: func(m Measurements, place string) string {
				return fmt.Sprintf("Flood with water level %sm detected at %s", num(m["waterLevel"]), place)
			},
		},
		models.DisasterTypeFire: {
			Required: []string{"temperature"},
			Optional: []string{"smokeLevel"},
			Primary:  "temperature",
			Trigger: func(m Measurements) bool {
				return m["temperature"] >= th.Fire.Temperature
			},
			Severity: func(m Measurements) int {
				return clamp((m["temperature"] - 40) / 10)
			},
			Describe: func(m Measurements, place string) string {
				return fmt.Sprintf("Fire with temperature %s°C detected at %s", num(m["temperature"]), place)
			},
		},
	}

	storm := Rule{
		AnyOf:   []string{"windSpeed", "precipitation"},
		Primary: "windSpeed",
		Trigger: func(m Measurements) bool {
			w, hasWind := m["windSpeed"]
			p, hasRain := m["precipitation"]
			return (hasWind && w >= th.Storm.WindSpeed) || (hasRain && p >= th.Storm.Precipitation)
		},
		Describe: func(m Measurements, place string) string {
			return fmt.Sprintf("Storm with wind speed %skm/h and precipitation %smm/h detected at %s",
				num(m["windSpeed"]), num(m["precipitation"]), place)
		},
	}
	if per := th.Storm.WindPerLevel; per > 0 {
		storm.Severity = func(m Measurements) int {
			return clamp(m["windSpeed"] / per)
		}
	}
	t[models.DisasterTypeStorm] = storm

	return t
}
