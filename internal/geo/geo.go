// Package geo holds the spherical helpers behind radius lookups and
// alert region matching.
package geo

import (
	"math"
	"strings"
)

const (
	EarthRadiusKm = 6371.0
	EarthRadiusMi = 3959.0
)

type Unit string

const (
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

// ParseUnit accepts "km", "mi" and their spelled-out forms. An empty string
// means kilometers. ok is false for anything else.
func ParseUnit(s string) (u Unit, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "km", "kilometer", "kilometers", "kilometre", "kilometres":
		return Kilometers, true
	case "mi", "mile", "miles":
		return Miles, true
	default:
		return "", false
	}
}

// EarthRadius returns Earth's mean radius expressed in u.
func EarthRadius(u Unit) float64 {
	if u == Miles {
		return EarthRadiusMi
	}
	return EarthRadiusKm
}

// RadiusInRadians converts a surface distance into the angular radius used by
// center-sphere searches.
func RadiusInRadians(distance float64, u Unit) float64 {
	return distance / EarthRadius(u)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance is the haversine great-circle distance between two points, in u.
func Distance(lat1, lon1, lat2, lon2 float64, u Unit) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius(u) * c
}

// Within reports whether (lat, lon) lies inside the spherical cap of the
// given distance around the center.
func Within(centerLat, centerLon, lat, lon, distance float64, u Unit) bool {
	return Distance(centerLat, centerLon, lat, lon, u) <= distance
}

// Box is a lat/lon rectangle used to prefilter candidates before the exact
// great-circle check.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a box that contains every point within distance of the
// center. Near the poles or across the antimeridian the longitude range
// widens to the full circle.
func BoundingBox(lat, lon, distance float64, u Unit) Box {
	angular := RadiusInRadians(distance, u)
	dLat := toDeg(angular)

	b := Box{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLon: -180,
		MaxLon: 180,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		return b
	}

	dLon := toDeg(math.Asin(math.Sin(angular) / math.Cos(toRad(lat))))
	if lon-dLon >= -180 && lon+dLon <= 180 {
		b.MinLon = lon - dLon
		b.MaxLon = lon + dLon
	}
	return b
}

// InPolygon runs an even-odd ray cast against a ring of [lon, lat] pairs.
// The ring may or may not repeat its first vertex.
func InPolygon(lat, lon float64, ring [][]float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			return false
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// ValidCoordinates reports whether lat/lon form a valid WGS84 pair.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
