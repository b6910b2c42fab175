package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TestJulianDate verifies our Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "J2000.0 in a fixed zone",
			time:     time.Date(2000, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600)),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			diff := math.Abs(got - tt.expected)
			if diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestSiderealAngle validates GMST against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestSiderealAngle(t *testing.T) {
	tr := NewTransformer(DefaultConfig())
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := tr.SiderealAngle(tt.time)
			// go-satellite's GSTimeFromDate returns GMST in radians.
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			diff := math.Abs(our - ref)
			// Allow small difference for float precision; 1e-8 radians ≈ 0.06 arcsec.
			if diff > 1e-8 {
				t.Errorf("SiderealAngle(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

func TestSiderealAngleUT1Offset(t *testing.T) {
	at := time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)
	base := NewTransformer(DefaultConfig()).SiderealAngle(at)

	cfg := DefaultConfig()
	cfg.UT1Offset = 500 * time.Millisecond
	shifted := NewTransformer(cfg).SiderealAngle(at)

	// Half a second of UT1 turns the Earth by half a second of rotation.
	got := math.Remainder(shifted-base, 2*math.Pi)
	if want := EarthRotationRate * 0.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("offset moved GMST by %.12e rad, want %.12e", got, want)
	}
}

func TestUT1OffsetClamped(t *testing.T) {
	for _, tt := range []struct {
		in, want time.Duration
	}{
		{5 * time.Second, MaxUT1Offset},
		{-5 * time.Second, -MaxUT1Offset},
		{-300 * time.Millisecond, -300 * time.Millisecond},
	} {
		cfg := DefaultConfig()
		cfg.UT1Offset = tt.in
		if got := NewTransformer(cfg).Config().UT1Offset; got != tt.want {
			t.Errorf("UT1Offset %v: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestTEMEToECEF validates our TEME->ECEF transform against the go-satellite
// library's ECIToECEF function using the same GMST. Both use a GMST-only
// rotation (no nutation or polar motion), so they should agree to floating
// point precision. The library is unit agnostic, so meters go in directly.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name string
		pos  [3]float64 // m
		vel  [3]float64 // m/s
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			pos:  [3]float64{5094180.16, 6127644.65, 6380344.53},
			vel:  [3]float64{-4746.131487, 786.598499, 5531.931288},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			pos:  [3]float64{6778000, 0, 0},
			vel:  [3]float64{0, 7500, 0},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			pos:  [3]float64{0, 0, 6978000},
			vel:  [3]float64{7400, 0, 0},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			sv := StateVector{Frame: FrameTEME, Time: tt.time, Position: tt.pos, Velocity: tt.vel}
			ours := TEMEToECEFWithGMST(sv, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.pos[0], Y: tt.pos[1], Z: tt.pos[2]}, gmst)

			if ours.Frame != FrameECEF {
				t.Errorf("Frame = %v, want ECEF", ours.Frame)
			}

			const tolerance = 1.0 // meter
			refPos := [3]float64{ref.X, ref.Y, ref.Z}
			for i := range refPos {
				if d := math.Abs(ours.Position[i] - refPos[i]); d > tolerance {
					t.Errorf("position mismatch (tolerance=%.0fm):\n  ours: %v\n  ref:  %v", tolerance, ours.Position, refPos)
					break
				}
			}

			// The rotation preserves the radius.
			if d := math.Abs(ours.Radius() - sv.Radius()); d > 1e-6 {
				t.Errorf("radius changed by %.9f m", d)
			}
		})
	}
}

// TestTEMEToECEFVelocity verifies the velocity transform includes Earth rotation correction.
func TestTEMEToECEFVelocity(t *testing.T) {
	// Prograde equatorial satellite at longitude 0.
	sv := StateVector{
		Frame:    FrameTEME,
		Position: [3]float64{6778000, 0, 0},
		Velocity: [3]float64{0, 7500, 0},
	}

	// GMST = 0 aligns the TEME X-axis with the ECEF X-axis.
	ecef := TEMEToECEFWithGMST(sv, 0)

	if math.Abs(ecef.Position[0]-6778000.0) > 0.1 {
		t.Errorf("X position: got %.1f, want 6778000.0", ecef.Position[0])
	}

	// Earth rotation velocity at this radius: ω*R = 494.3 m/s.
	expectedVY := 7500 - EarthRotationRate*6778000.0
	if math.Abs(ecef.Velocity[1]-expectedVY) > 0.1 {
		t.Errorf("VY: got %.1f m/s, want %.1f m/s", ecef.Velocity[1], expectedVY)
	}
}

func TestTEMEToECEFLeavesECEFAlone(t *testing.T) {
	sv := StateVector{
		Frame:    FrameECEF,
		Time:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Position: [3]float64{1, 2, 3},
		Velocity: [3]float64{4, 5, 6},
	}
	if got := TEMEToECEF(sv); got != sv {
		t.Errorf("TEMEToECEF(ECEF state) = %+v, want unchanged", got)
	}
}
