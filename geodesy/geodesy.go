// Package geodesy computes great-circle distances between microphone sites
// and launch pads.
//
// Distances use the haversine formula on a sphere of radius [EarthRadiusKm].
// The radius matches the value used for the launch acoustics survey data
// rather than the IUGG mean radius, so distances are reproducible against
// the published tables.
package geodesy

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the sphere radius used for all distance computations.
const EarthRadiusKm = 6369.920155

// MaxDistanceKm is half the great-circle circumference, the largest value
// [Distance] can return.
const MaxDistanceKm = math.Pi * EarthRadiusKm

// ErrOutOfRange is returned by [Coordinate.Validate] for latitudes outside
// [-90, 90] or longitudes outside [-180, 180].
var ErrOutOfRange = errors.New("geodesy: coordinate out of range")

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// String formats c as "lat,lon" with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Validate reports whether c lies on the globe.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrOutOfRange, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrOutOfRange, c.Lon)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in kilometers.
//
// The result is zero for coincident points, symmetric in its arguments and
// never exceeds [MaxDistanceKm].
func Distance(a, b Coordinate) float64 {
	return EarthRadiusKm * CentralAngle(a, b)
}

// CentralAngle returns the angle subtended at the sphere's center by a and b,
// in radians.
func CentralAngle(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat1 - lat2
	dLon := radians(a.Lon) - radians(b.Lon)

	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(lat1)*math.Cos(lat2)*sLon*sLon

	// Rounding can push h slightly outside [0, 1] for coincident or
	// antipodal points; asin is undefined there.
	return 2 * math.Asin(math.Sqrt(clamp01(h)))
}

// Destination returns the point reached by travelling distanceKm from origin
// along the given initial bearing (degrees clockwise from north).
func Destination(origin Coordinate, bearingDeg, distanceKm float64) Coordinate {
	delta := distanceKm / EarthRadiusKm
	theta := radians(bearingDeg)
	lat1 := radians(origin.Lat)
	lon1 := radians(origin.Lon)

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta)
	lat2 := math.Asin(clamp(sinLat2, -1, 1))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalize longitude to [-180, 180).
	lon := math.Mod(degrees(lon2)+540, 360) - 180
	return Coordinate{Lat: degrees(lat2), Lon: lon}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func clamp01(x float64) float64 { return clamp(x, 0, 1) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
