// Package transform moves propagated satellite states from the TEME frame
// (True Equator Mean Equinox, the frame SGP4 produces) into an observer's
// local South-East-Zenith horizon frame.
//
// Method: Vallado-style rotation using GMST only (TEME -> PEF ~ ECEF).
// Polar motion and the equation of the equinoxes are ignored, which costs
// tens of meters at most and is far below what a horizon test can resolve.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"fmt"
	"math"
	"time"
)

// Frame names the reference frame of a StateVector.
type Frame int

const (
	// FrameTEME is the inertial True Equator Mean Equinox frame.
	FrameTEME Frame = iota
	// FrameECEF is the Earth-fixed frame (PEF, treated as ECEF).
	FrameECEF
)

func (f Frame) String() string {
	switch f {
	case FrameTEME:
		return "TEME"
	case FrameECEF:
		return "ECEF"
	default:
		return fmt.Sprintf("Frame(%d)", int(f))
	}
}

// StateVector is a position (m) and velocity (m/s) in Frame at Time.
type StateVector struct {
	Frame    Frame
	Time     time.Time
	Position [3]float64
	Velocity [3]float64
}

// Radius returns the distance from the Earth's center in meters.
func (sv StateVector) Radius() float64 {
	return norm(sv.Position)
}

// TEMEToECEF rotates a TEME state into ECEF at the state's own instant,
// taking UT1 as UTC. States already in ECEF are returned unchanged.
func TEMEToECEF(sv StateVector) StateVector {
	return TEMEToECEFWithGMST(sv, siderealAngle(sv.Time))
}

// TEMEToECEFWithGMST rotates a TEME state into ECEF using a precomputed GMST
// angle (radians). Useful when many satellites share one instant.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where R3(θ) is a rotation about the Z-axis by angle θ (GMST),
// and ω = [0, 0, ω_earth] is Earth's angular velocity vector.
func TEMEToECEFWithGMST(sv StateVector, gmst float64) StateVector {
	return rotateToECEF(sv, gmst, EarthRotationRate)
}

func rotateToECEF(sv StateVector, gmst, omega float64) StateVector {
	if sv.Frame == FrameECEF {
		return sv
	}

	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)
	p, v := sv.Position, sv.Velocity

	x := p[0]*cosG + p[1]*sinG
	y := -p[0]*sinG + p[1]*cosG
	z := p[2]

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vx := v[0]*cosG + v[1]*sinG + omega*y
	vy := -v[0]*sinG + v[1]*cosG - omega*x
	vz := v[2]

	return StateVector{
		Frame:    FrameECEF,
		Time:     sv.Time,
		Position: [3]float64{x, y, z},
		Velocity: [3]float64{vx, vy, vz},
	}
}

func finite(v [3]float64) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
