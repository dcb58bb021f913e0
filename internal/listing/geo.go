package listing

import (
	"fmt"
	"math"

	"github.com/tastemap/listing-service/internal/keyset"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine distance.
	EarthRadiusKm = 6371.0

	// KmPerDegLat approximates the length of one degree of latitude.
	KmPerDegLat = 111.045

	// DistancePrecision is the number of decimals kept on distance_km.
	DistancePrecision = 6

	minKmPerDegLng = 1e-6
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// BoundingBox is a cheap rectangular pre-filter around a search disk.
//
// When WrapsAntimeridian is set the longitude range is MinLng..180 plus
// -180..MaxLng. When FullLongitude is set every longitude is accepted, which
// happens when the disk reaches a pole.
type BoundingBox struct {
	MinLat            float64
	MaxLat            float64
	MinLng            float64
	MaxLng            float64
	WrapsAntimeridian bool
	FullLongitude     bool
}

// NewBoundingBox returns a box that contains every point whose haversine
// distance from center is at most radiusKm.
//
// Latitude spans radiusKm/KmPerDegLat degrees each way. Longitude spans
// radiusKm/(KmPerDegLat*cos(lat)) evaluated at the poleward edge of the box,
// widened when needed to the exact spherical cap width, so the box stays a
// superset of the disk at every latitude it covers.
func NewBoundingBox(center Point, radiusKm float64) BoundingBox {
	dLat := radiusKm / KmPerDegLat
	box := BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: -180,
		MaxLng: 180,
	}

	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		box.FullLongitude = true
		return box
	}

	poleward := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat)) * math.Pi / 180
	kmPerDegLng := KmPerDegLat * math.Cos(poleward)
	if kmPerDegLng < minKmPerDegLng {
		box.FullLongitude = true
		return box
	}
	dLng := radiusKm / kmPerDegLng

	capRatio := math.Sin(radiusKm/EarthRadiusKm/2) / math.Cos(poleward)
	if capRatio >= 1 {
		box.FullLongitude = true
		return box
	}
	if exact := 2 * math.Asin(capRatio) * 180 / math.Pi; exact > dLng {
		dLng = exact
	}
	if dLng >= 180 {
		box.FullLongitude = true
		return box
	}

	box.MinLng = center.Lng - dLng
	box.MaxLng = center.Lng + dLng
	switch {
	case box.MinLng < -180:
		box.MinLng += 360
		box.WrapsAntimeridian = true
	case box.MaxLng > 180:
		box.MaxLng -= 360
		box.WrapsAntimeridian = true
	}
	return box
}

// Contains reports whether p lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	switch {
	case b.FullLongitude:
		return true
	case b.WrapsAntimeridian:
		return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
	default:
		return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
	}
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	const rad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad
	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Pow(math.Sin(dLng/2), 2)
	return EarthRadiusKm * 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceKm is HaversineKm rounded the same way as the distance_km column.
func DistanceKm(a, b Point) float64 {
	return keyset.Round(HaversineKm(a, b), DistancePrecision)
}

// haversineSQL renders the haversine distance from (latParam, lngParam) to the
// restaurant row. It mirrors HaversineKm.
func haversineSQL(latParam, lngParam string) string {
	lat := latParam + "::double precision"
	lng := lngParam + "::double precision"
	return fmt.Sprintf(
		"%g * 2 * ASIN(LEAST(1, SQRT(POWER(SIN(RADIANS(r.lat - %s) / 2), 2) + "+
			"COS(RADIANS(%s)) * COS(RADIANS(r.lat)) * POWER(SIN(RADIANS(r.lng - %s) / 2), 2))))",
		EarthRadiusKm, lat, lat, lng)
}
