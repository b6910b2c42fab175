package transform

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Transform failures. Error wraps one of these.
var (
	ErrInvalidObserver = errors.New("invalid observer position")
	ErrNonFinite       = errors.New("non-finite state vector")
	ErrZeroRange       = errors.New("satellite coincides with observer")
)

// Error is a failed transform for one satellite state or observer.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Observer is a ground position. Latitude and longitude are geodetic degrees
// (east positive), altitude is meters above the ellipsoid.
type Observer struct {
	LatitudeDeg  float64 `json:"lat_deg"`
	LongitudeDeg float64 `json:"lon_deg"`
	AltitudeM    float64 `json:"alt_m"`
}

// Validate reports whether the observer can be placed on the ellipsoid.
// Any finite longitude is accepted; it wraps naturally.
func (o Observer) Validate() error {
	if !finite([3]float64{o.LatitudeDeg, o.LongitudeDeg, o.AltitudeM}) {
		return &Error{Op: "observer", Err: fmt.Errorf("%w: non-finite coordinate", ErrInvalidObserver)}
	}
	if o.LatitudeDeg < -90 || o.LatitudeDeg > 90 {
		return &Error{Op: "observer", Err: fmt.Errorf("%w: latitude %.6f outside [-90, 90]", ErrInvalidObserver, o.LatitudeDeg)}
	}
	return nil
}

// Site is an observer with its ECEF position and horizon basis precomputed,
// so it can be reused across every satellite of a query.
type Site struct {
	Observer Observer
	ECEF     [3]float64 // meters

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// toSEZ rotates an ECEF vector into the site's South-East-Zenith basis
// (Vallado Section 4.4).
func (s Site) toSEZ(r [3]float64) (south, east, zenith float64) {
	south = s.sinLat*s.cosLon*r[0] + s.sinLat*s.sinLon*r[1] - s.cosLat*r[2]
	east = -s.sinLon*r[0] + s.cosLon*r[1]
	zenith = s.cosLat*s.cosLon*r[0] + s.cosLat*s.sinLon*r[1] + s.sinLat*r[2]
	return south, east, zenith
}

// Topocentric is a satellite position relative to an observer, in meters
// along the local South, East and Zenith axes.
type Topocentric struct {
	South  float64
	East   float64
	Zenith float64
	Time   time.Time
}

// Config holds the Earth model used by a Transformer.
type Config struct {
	Ellipsoid         Ellipsoid
	EarthRotationRate float64       // rad/s
	UT1Offset         time.Duration // UT1-UTC; zero treats UT1 as UTC
}

// DefaultConfig returns the WGS-84 ellipsoid with the IAU rotation rate.
func DefaultConfig() Config {
	return Config{
		Ellipsoid:         WGS84,
		EarthRotationRate: EarthRotationRate,
	}
}

// Transformer converts propagated states into observer-relative vectors.
// It holds only immutable configuration and is safe for concurrent use.
type Transformer struct {
	cfg Config
}

// NewTransformer creates a Transformer. Zero-valued fields of cfg fall back
// to DefaultConfig.
func NewTransformer(cfg Config) *Transformer {
	def := DefaultConfig()
	if cfg.Ellipsoid.SemiMajorAxis <= 0 {
		cfg.Ellipsoid = def.Ellipsoid
	}
	if cfg.EarthRotationRate == 0 {
		cfg.EarthRotationRate = def.EarthRotationRate
	}
	cfg.UT1Offset = max(-MaxUT1Offset, min(cfg.UT1Offset, MaxUT1Offset))
	return &Transformer{cfg: cfg}
}

// Config returns the transformer's configuration.
func (t *Transformer) Config() Config {
	return t.cfg
}

// Site validates obs and precomputes its ECEF position and horizon basis.
func (t *Transformer) Site(obs Observer) (Site, error) {
	if err := obs.Validate(); err != nil {
		return Site{}, err
	}

	lat := obs.LatitudeDeg * math.Pi / 180.0
	lon := obs.LongitudeDeg * math.Pi / 180.0

	return Site{
		Observer: obs,
		ECEF:     t.cfg.Ellipsoid.ToECEF(lat, lon, obs.AltitudeM),
		sinLat:   math.Sin(lat),
		cosLat:   math.Cos(lat),
		sinLon:   math.Sin(lon),
		cosLon:   math.Cos(lon),
	}, nil
}

// ECEFToGeodetic converts ECEF meters to a geodetic point on the
// transformer's ellipsoid.
func (t *Transformer) ECEFToGeodetic(x, y, z float64) GeodeticPoint {
	return t.cfg.Ellipsoid.ToGeodetic(x, y, z)
}

// ToECEF rotates sv into ECEF with the given GMST angle and the
// transformer's rotation rate.
func (t *Transformer) ToECEF(sv StateVector, gmst float64) StateVector {
	return rotateToECEF(sv, gmst, t.cfg.EarthRotationRate)
}

// Topocentric places sv relative to site, computing GMST at sv.Time.
func (t *Transformer) Topocentric(sv StateVector, site Site) (Topocentric, error) {
	return t.TopocentricWithGMST(sv, site, t.SiderealAngle(sv.Time))
}

// TopocentricWithGMST places sv relative to site using a precomputed GMST
// angle (radians). The angle is ignored for states already in ECEF.
func (t *Transformer) TopocentricWithGMST(sv StateVector, site Site, gmst float64) (Topocentric, error) {
	if !finite(sv.Position) {
		return Topocentric{}, &Error{Op: "topocentric", Err: ErrNonFinite}
	}

	ecef := t.ToECEF(sv, gmst)
	r := [3]float64{
		ecef.Position[0] - site.ECEF[0],
		ecef.Position[1] - site.ECEF[1],
		ecef.Position[2] - site.ECEF[2],
	}
	if norm(r) == 0 {
		return Topocentric{}, &Error{Op: "topocentric", Err: ErrZeroRange}
	}

	south, east, zenith := site.toSEZ(r)
	return Topocentric{
		South:  south,
		East:   east,
		Zenith: zenith,
		Time:   sv.Time,
	}, nil
}

// Range returns the slant range in meters.
func (tv Topocentric) Range() float64 {
	return norm([3]float64{tv.South, tv.East, tv.Zenith})
}
