package propagation

import (
	"fmt"
	"math"

	"github.com/star/satvis/internal/tle"
)

// deepSpacePeriod is the orbital period (minutes) at and above which SGP4
// switches to the deep-space branch.
const deepSpacePeriod = 225.0

type gravityConstants struct {
	radiusEarthKm float64
	xke           float64 // sqrt(mu) in earth radii^1.5 per minute
	j2            float64
}

func constantsFor(g Gravity) gravityConstants {
	mu, re, j2 := 398600.8, 6378.135, 0.001082616
	if g == GravityWGS84 {
		mu, re, j2 = 398600.5, 6378.137, 0.00108262998905
	}
	return gravityConstants{
		radiusEarthKm: re,
		xke:           60.0 / math.Sqrt(re*re*re/mu),
		j2:            j2,
	}
}

// SelectModel returns the branch SGP4 will take for rec. The published mean
// motion is Kozai mean motion; it is converted to Brouwer mean motion the
// way the SGP4 initializer does before the period test, so objects near the
// 225-minute boundary are classified exactly as the propagator treats them.
func SelectModel(rec tle.Record, g Gravity) (Model, error) {
	if err := validateElements(rec); err != nil {
		return NearEarth, err
	}

	c := constantsFor(g)
	no := rec.MeanMotion * 2 * math.Pi / 1440.0 // rad/min
	e2 := rec.Eccentricity * rec.Eccentricity
	cosi := math.Cos(rec.Inclination * math.Pi / 180.0)

	ak := math.Pow(c.xke/no, 2.0/3.0)
	d1 := 0.75 * c.j2 * (3.0*cosi*cosi - 1.0) / (math.Sqrt(1.0-e2) * (1.0 - e2))
	del := d1 / (ak * ak)
	adel := ak * (1.0 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	no /= 1.0 + del

	if math.IsNaN(no) || no <= 0 {
		return NearEarth, fmt.Errorf("%w: mean motion does not convert", ErrDegenerateElements)
	}
	if 2*math.Pi/no >= deepSpacePeriod {
		return DeepSpace, nil
	}
	return NearEarth, nil
}

func validateElements(rec tle.Record) error {
	if math.IsNaN(rec.Eccentricity) || rec.Eccentricity < 0 || rec.Eccentricity >= 1 {
		return fmt.Errorf("%w: eccentricity %v outside [0, 1)", ErrDegenerateElements, rec.Eccentricity)
	}
	if math.IsNaN(rec.MeanMotion) || math.IsInf(rec.MeanMotion, 0) || rec.MeanMotion <= 0 {
		return fmt.Errorf("%w: mean motion %v rev/day is not positive", ErrDegenerateElements, rec.MeanMotion)
	}
	if math.IsNaN(rec.Inclination) || math.IsInf(rec.Inclination, 0) {
		return fmt.Errorf("%w: inclination %v", ErrDegenerateElements, rec.Inclination)
	}
	return nil
}
