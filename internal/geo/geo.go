// Package geo holds the coordinate type shared by the tracker, the shift
// store and the admin views.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6371e3

// Coordinate is a single position fix.
type Coordinate struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Distance returns the great-circle distance in meters between a and b
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Offset moves c by the given distances in meters towards north and east.
// It is accurate enough for the short hops used by the simulator and tests.
func Offset(c Coordinate, northMeters, eastMeters float64) Coordinate {
	out := c
	out.Latitude += northMeters / EarthRadiusMeters * 180 / math.Pi
	out.Longitude += eastMeters / (EarthRadiusMeters * math.Cos(radians(c.Latitude))) * 180 / math.Pi
	return out
}
