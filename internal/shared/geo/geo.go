package geo

import "math"

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SquaredDistance is the sum of squared coordinate deltas in raw degree space.
// Only meaningful for relative comparisons and threshold tests, never display.
func SquaredDistance(p, q Point) float64 {
	dLat := p.Lat - q.Lat
	dLng := p.Lng - q.Lng
	return dLat*dLat + dLng*dLng
}

// ClosestPointOnSegment projects p onto the segment a-b and clamps the result
// to the segment's extent. The projection is planar in degree space; the
// deviation threshold used by the route matcher is calibrated to this
// approximation, so it must not be swapped for a geodesic one.
func ClosestPointOnSegment(p, a, b Point) Point {
	abLat := b.Lat - a.Lat
	abLng := b.Lng - a.Lng

	lenSq := abLat*abLat + abLng*abLng
	if lenSq == 0 {
		return a
	}

	t := ((p.Lat-a.Lat)*abLat + (p.Lng-a.Lng)*abLng) / lenSq
	if t < 0 {
		return a
	}
	if t > 1 {
		return b
	}
	return Point{Lat: a.Lat + t*abLat, Lng: a.Lng + t*abLng}
}

// BearingDegrees is the forward azimuth from one point to another, in [0, 360).
func BearingDegrees(from, to Point) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// HaversineKm is the great-circle distance in kilometres, used for
// user-facing distances only.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0

	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
