package propagation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output, and its GSTimeFromDate/ECIToECEF give the
// transform package an independent reference to test against.
//
// Library constraints this wrapper absorbs:
//   - Propagate takes Satellite by value, so SGP4 error codes set during a
//     propagation never reach the caller. Failures are detected from the
//     output instead (NaN/Inf, zero vector, radius below the Earth).
//   - The element epoch and query instants resolve to whole seconds.
//   - The library's column parser calls log.Fatal on the first field strconv
//     rejects, so lines are re-validated before init and never reach it
//     unreadable. The catalog number is read as a plain integer, so Alpha-5
//     numbers are masked before init.

// Propagator prepares element sets for SGP4. It holds only configuration
// plus a cache of prepared catalogs and is safe for concurrent use.
type Propagator struct {
	cfg   Config
	cache catalogCache
}

// Satellite is one initialized SGP4 element set. The initialized state is
// never modified after Prepare returns; every Propagate call works on a copy.
type Satellite struct {
	NoradID int
	Name    string
	Model   Model

	sat           satellite.Satellite
	radiusEarthKm float64
}

// Prepare validates rec and initializes the SGP4 state for it.
func (p *Propagator) Prepare(rec tle.Record) (s *Satellite, err error) {
	fail := func(cause error) (*Satellite, error) {
		return nil, &Error{NoradID: rec.NoradID, Name: rec.Name, Err: cause}
	}

	model, err := SelectModel(rec, p.cfg.Gravity)
	if err != nil {
		return fail(err)
	}
	line1, line2, err := libraryLines(rec)
	if err != nil {
		return fail(err)
	}

	// sgp4init indexes into its own tables; a panic there is a bad element
	// set, not a bug in the caller.
	defer func() {
		if r := recover(); r != nil {
			s, err = fail(fmt.Errorf("%w: sgp4 init panicked: %v", ErrDegenerateElements, r))
		}
	}()

	sat := satellite.TLEToSat(line1, line2, p.cfg.Gravity.library())
	if sat.Error != 0 {
		return fail(fmt.Errorf("%w: sgp4 init code %d: %s", initErrorCause(sat.Error), sat.Error, sat.ErrorStr))
	}

	return &Satellite{
		NoradID:       rec.NoradID,
		Name:          rec.Name,
		Model:         model,
		sat:           sat,
		radiusEarthKm: constantsFor(p.cfg.Gravity).radiusEarthKm,
	}, nil
}

// initErrorCause maps an SGP4 error code to a failure kind.
//
//	1 mean elements out of range   2 mean motion negative
//	3 perturbed elements invalid   4 semi-latus rectum negative
//	6 satellite has decayed
func initErrorCause(code int64) error {
	switch code {
	case 1, 2, 3, 4:
		return ErrDegenerateElements
	case 6:
		return ErrDecayed
	default:
		return ErrPropagationFailed
	}
}

// libraryLines returns the record's lines in the form the library can read.
// Lines that would not survive the library's parser are rejected here.
func libraryLines(rec tle.Record) (string, string, error) {
	l1, l2 := rec.Line1, rec.Line2
	if len(l1) != tle.LineLength || len(l2) != tle.LineLength || l1[0] != '1' || l2[0] != '2' {
		return "", "", fmt.Errorf("%w: element lines missing or malformed", ErrDegenerateElements)
	}
	if _, err := tle.ParseRecord(rec.Name, l1, l2); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDegenerateElements, err)
	}

	// The catalog number does not enter the computation.
	m1, m2 := l1[:2]+"00000"+l1[7:], l2[:2]+"00000"+l2[7:]
	if err := checkLibraryColumns(m1, m2); err != nil {
		return "", "", err
	}
	return m1, m2, nil
}

// checkLibraryColumns repeats the exact column reads of satellite.ParseTLE.
func checkLibraryColumns(l1, l2 string) error {
	squeeze := func(s string) string { return strings.Replace(s, " ", "", 2) }

	ints := []string{
		strings.TrimSpace(l1[2:7]),
		l1[18:20],
	}
	floats := []string{
		l1[20:32],
		squeeze(l1[33:43]),
		squeeze(l1[44:45] + "." + l1[45:50] + "e" + l1[50:52]),
		squeeze(l1[53:54] + "." + l1[54:59] + "e" + l1[59:61]),
		squeeze(l2[8:16]),
		squeeze(l2[17:25]),
		"." + l2[26:33],
		squeeze(l2[34:42]),
		squeeze(l2[43:51]),
		squeeze(l2[52:63]),
	}

	for _, v := range ints {
		if _, err := strconv.ParseInt(v, 10, 0); err != nil {
			return fmt.Errorf("%w: column %q unreadable", ErrDegenerateElements, v)
		}
	}
	for _, v := range floats {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%w: column %q unreadable", ErrDegenerateElements, v)
		}
	}
	return nil
}

// Propagate computes the TEME state (m, m/s) at the given instant, truncated
// to whole UTC seconds. Calls with the same instant return identical states.
func (s *Satellite) Propagate(at time.Time) (sv transform.StateVector, err error) {
	at = at.UTC().Truncate(time.Second)

	defer func() {
		if r := recover(); r != nil {
			err = s.fail(fmt.Errorf("%w: sgp4 panicked: %v", ErrPropagationFailed, r))
		}
	}()

	pos, vel := satellite.Propagate(s.sat,
		at.Year(), int(at.Month()), at.Day(),
		at.Hour(), at.Minute(), at.Second(),
	)

	p := [3]float64{pos.X, pos.Y, pos.Z}
	v := [3]float64{vel.X, vel.Y, vel.Z}
	for i := range p {
		if math.IsNaN(p[i]) || math.IsInf(p[i], 0) || math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return transform.StateVector{}, s.fail(fmt.Errorf("%w: output is NaN/Inf", ErrPropagationFailed))
		}
	}

	// SGP4 returns a zero vector when the elements diverge and keeps going
	// below the surface when drag has pulled the orbit down.
	if r := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2]); r < s.radiusEarthKm {
		return transform.StateVector{}, s.fail(fmt.Errorf("%w: radius %.1f km at %s", ErrDecayed, r, at.Format(time.RFC3339)))
	}

	return transform.StateVector{
		Frame:    transform.FrameTEME,
		Time:     at,
		Position: [3]float64{p[0] * 1000, p[1] * 1000, p[2] * 1000},
		Velocity: [3]float64{v[0] * 1000, v[1] * 1000, v[2] * 1000},
	}, nil
}

func (s *Satellite) fail(cause error) error {
	return &Error{NoradID: s.NoradID, Name: s.Name, Err: cause}
}
