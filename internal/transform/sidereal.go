package transform

import (
	"math"
	"time"
)

// EarthRotationRate is Earth's rotation rate in rad/s (IAU value).
const EarthRotationRate = 7.292115146706979e-5

// MaxUT1Offset bounds |UT1-UTC|; IERS inserts leap seconds to keep it there.
const MaxUT1Offset = 900 * time.Millisecond

const (
	jdJ2000        = 2451545.0
	j2000Unix      = 946728000 // 2000-01-01T12:00:00Z
	secondsPerDay  = 86400.0
	daysPerCentury = 36525.0
)

// gmstPoly holds the IAU-82 GMST polynomial (Vallado eq. 3-47) in seconds of
// time, constant term first, for T in Julian centuries of UT1 from J2000.
// The linear term folds 876600 hours into seconds.
var gmstPoly = [4]float64{
	67310.54841,
	876600*3600 + 8640184.812866,
	0.093104,
	-6.2e-6,
}

// daysSinceJ2000 counts days from J2000.0 without passing through a full
// Julian Date, which keeps sub-second resolution.
func daysSinceJ2000(t time.Time) float64 {
	return (float64(t.Unix()-j2000Unix) + float64(t.Nanosecond())*1e-9) / secondsPerDay
}

// JulianDate returns the Julian Date of t on the UTC scale.
func JulianDate(t time.Time) float64 {
	return jdJ2000 + daysSinceJ2000(t)
}

// siderealAngle evaluates GMST in radians, in [0, 2π), at a UT1 instant.
func siderealAngle(ut1 time.Time) float64 {
	T := daysSinceJ2000(ut1) / daysPerCentury

	sec := gmstPoly[3]
	for i := 2; i >= 0; i-- {
		sec = sec*T + gmstPoly[i]
	}

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}

// SiderealAngle returns Greenwich mean sidereal time in radians for the UTC
// instant at, shifted onto UT1 by the configured offset. Callers evaluating
// many states at one instant compute it once and pass it to ToECEF or
// TopocentricWithGMST.
func (t *Transformer) SiderealAngle(at time.Time) float64 {
	return siderealAngle(at.Add(t.cfg.UT1Offset))
}
