package tle

import (
	"errors"
	"fmt"
	"time"
)

// Record is one satellite's parsed two-line element set.
// Angles are in degrees, mean motion in revolutions per day.
type Record struct {
	NoradID        int
	Name           string
	Classification byte
	IntlDesignator string
	Epoch          time.Time

	MeanMotionDot    float64 // rev/day^2 (first derivative / 2, as published)
	MeanMotionDDot   float64 // rev/day^3 (second derivative / 6, as published)
	BStar            float64 // 1/earth radii
	EphemerisType    int
	ElementSetNumber int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64
	RevolutionNumber int

	Checksum1 int
	Checksum2 int
	Line1     string
	Line2     string
}

// PeriodMinutes returns the orbital period implied by the published mean motion.
func (r Record) PeriodMinutes() float64 {
	if r.MeanMotion <= 0 {
		return 0
	}
	return 1440.0 / r.MeanMotion
}

// String identifies the record in logs and errors.
func (r Record) String() string {
	if r.Name == "" {
		return fmt.Sprintf("NORAD %d", r.NoradID)
	}
	return fmt.Sprintf("%s (NORAD %d)", r.Name, r.NoradID)
}

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is an immutable snapshot of parsed records from one source.
// Records keep the order they had in the source text.
type Catalog struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Records    []Record
	Skipped    []*ParseError
}

// Len returns the number of records in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

func epochRange(records []Record) EpochRange {
	if len(records) == 0 {
		return EpochRange{}
	}
	er := EpochRange{Min: records[0].Epoch, Max: records[0].Epoch}
	for _, r := range records[1:] {
		if r.Epoch.Before(er.Min) {
			er.Min = r.Epoch
		}
		if r.Epoch.After(er.Max) {
			er.Max = r.Epoch
		}
	}
	return er
}

// Parse errors. ParseError wraps one of these.
var (
	ErrLineLength        = errors.New("TLE line has wrong length")
	ErrLineNumber        = errors.New("TLE line has wrong line number")
	ErrChecksum          = errors.New("TLE checksum mismatch")
	ErrField             = errors.New("TLE field unreadable")
	ErrSatelliteMismatch = errors.New("TLE catalog number differs between lines")
	ErrUnrecognizedLines = errors.New("lines do not form a TLE record")
)

// ParseError describes one skipped region of catalog text.
// Line is the 1-based index of the first non-blank line involved.
type ParseError struct {
	Line  int
	Lines int
	Name  string
	Err   error
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Lines > 1 {
		where = fmt.Sprintf("lines %d-%d", e.Line, e.Line+e.Lines-1)
	}
	if e.Name != "" {
		return fmt.Sprintf("%s (%s): %v", where, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
