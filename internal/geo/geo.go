// Package geo provides great-circle distance calculations between
// geographic coordinates.
package geo

import (
	"math"

	"github.com/banshee-data/stride/internal/activity"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance in metres between two
// coordinates given in decimal degrees.
//
//	a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
//	c = 2 ⋅ atan2(√a, √(1−a))
//	d = R ⋅ c
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a fractionally outside [0,1] for antipodal points
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c * 1000
}

// Between returns the distance in metres between two samples.
func Between(a, b activity.GeoSample) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PathLength sums the distance between consecutive track points.
func PathLength(track []activity.TrackPoint) float64 {
	var total float64
	for i := 1; i < len(track); i++ {
		total += Distance(track[i-1].Lat, track[i-1].Lng, track[i].Lat, track[i].Lng)
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
