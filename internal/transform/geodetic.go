package transform

import "math"

// Ellipsoid is a reference ellipsoid of revolution.
type Ellipsoid struct {
	SemiMajorAxis float64 // meters
	Flattening    float64
}

// WGS84 is the World Geodetic System 1984 ellipsoid.
var WGS84 = Ellipsoid{
	SemiMajorAxis: 6378137.0,
	Flattening:    1.0 / 298.257223563,
}

// E2 returns the first eccentricity squared.
func (e Ellipsoid) E2() float64 {
	return e.Flattening * (2 - e.Flattening)
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg, LonDeg, AltM float64
}

// ToECEF converts geodetic coordinates (radians, meters above the ellipsoid)
// to ECEF meters.
func (e Ellipsoid) ToECEF(lat, lon, altM float64) [3]float64 {
	e2 := e.E2()
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	N := e.SemiMajorAxis / math.Sqrt(1-e2*sinLat*sinLat)

	return [3]float64{
		(N + altM) * cosLat * math.Cos(lon),
		(N + altM) * cosLat * math.Sin(lon),
		(N*(1-e2) + altM) * sinLat,
	}
}

// ToGeodetic converts ECEF coordinates (meters) to geodetic coordinates
// using the iterative Bowring method. Converges in 2-3 iterations for Earth orbits.
// On the polar axis the longitude is reported as 0.
func (e Ellipsoid) ToGeodetic(x, y, z float64) GeodeticPoint {
	e2 := e.E2()
	a := e.SemiMajorAxis

	p := math.Sqrt(x*x + y*y)
	lon := 0.0
	if p > 0 {
		lon = math.Atan2(y, x)
	}

	lat := math.Atan2(z, p*(1-e2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		N := a / math.Sqrt(1-e2*sinLat*sinLat)
		lat = math.Atan2(z+e2*N*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	N := a / math.Sqrt(1-e2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - N*(1-e2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}
