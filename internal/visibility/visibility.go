// Package visibility turns observer-relative satellite vectors into look
// angles and decides whether each satellite clears the horizon mask.
package visibility

import (
	"math"
	"time"

	"github.com/star/satvis/internal/transform"
)

// DefaultThresholdDeg is the elevation a satellite must exceed to count as visible.
const DefaultThresholdDeg = 10.0

// LookAngles describes where a satellite appears from the observer.
type LookAngles struct {
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	AzimuthDeg   float64 // 0 = North, clockwise, [0, 360)
	RangeM       float64
}

// Result is the visibility of one satellite at one instant.
type Result struct {
	NoradID      int       `json:"norad_id"`
	Name         string    `json:"name"`
	Time         time.Time `json:"time"`
	ElevationDeg float64   `json:"elevation_deg"`
	AzimuthDeg   float64   `json:"azimuth_deg"`
	RangeM       float64   `json:"range_m"`
	Visible      bool      `json:"visible"`
}

// ComputeLookAngles derives elevation, azimuth and slant range from a
// South-East-Zenith vector. Elevation uses atan2 against the horizontal
// magnitude, so it stays well conditioned straight overhead. Azimuth is
// reported as 0 when the satellite has no horizontal offset.
func ComputeLookAngles(topo transform.Topocentric) LookAngles {
	horizontal := math.Hypot(topo.South, topo.East)

	el := math.Atan2(topo.Zenith, horizontal)

	// North is -South, so az = atan2(east, -south).
	var az float64
	if horizontal > 0 {
		az = math.Atan2(topo.East, -topo.South)
		if az < 0 {
			az += 2 * math.Pi
		}
	}
	azDeg := az * 180.0 / math.Pi
	if azDeg >= 360 {
		azDeg = 0
	}

	return LookAngles{
		ElevationDeg: el * 180.0 / math.Pi,
		AzimuthDeg:   azDeg,
		RangeM:       math.Hypot(horizontal, topo.Zenith),
	}
}

// Evaluator classifies satellites against an elevation threshold.
type Evaluator struct {
	thresholdDeg float64
}

// NewEvaluator creates an Evaluator with the given threshold in degrees.
func NewEvaluator(thresholdDeg float64) *Evaluator {
	return &Evaluator{thresholdDeg: thresholdDeg}
}

// ThresholdDeg returns the configured elevation threshold.
func (e *Evaluator) ThresholdDeg() float64 {
	return e.thresholdDeg
}

// Evaluate computes the look angles of topo and marks the satellite
// visible when its elevation is strictly above the threshold.
func (e *Evaluator) Evaluate(noradID int, name string, topo transform.Topocentric) Result {
	la := ComputeLookAngles(topo)
	return Result{
		NoradID:      noradID,
		Name:         name,
		Time:         topo.Time,
		ElevationDeg: la.ElevationDeg,
		AzimuthDeg:   la.AzimuthDeg,
		RangeM:       la.RangeM,
		Visible:      la.ElevationDeg > e.thresholdDeg,
	}
}
