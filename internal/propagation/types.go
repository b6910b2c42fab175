package propagation

import (
	"errors"
	"fmt"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Gravity selects the geopotential constants SGP4 runs with.
type Gravity string

const (
	// GravityWGS72 is the constant set element sets are fitted with.
	GravityWGS72 Gravity = "wgs72"
	GravityWGS84 Gravity = "wgs84"
)

// ParseGravity reads a gravity model name, case-insensitively.
func ParseGravity(s string) (Gravity, error) {
	switch g := Gravity(strings.ToLower(strings.TrimSpace(s))); g {
	case GravityWGS72, GravityWGS84:
		return g, nil
	default:
		return "", fmt.Errorf("unknown gravity model %q (want wgs72 or wgs84)", s)
	}
}

func (g Gravity) library() satellite.Gravity {
	if g == GravityWGS84 {
		return satellite.GravityWGS84
	}
	return satellite.GravityWGS72
}

// Model is the analytic branch SGP4 uses for an element set.
type Model int

const (
	// NearEarth is SGP4 proper, for periods under 225 minutes.
	NearEarth Model = iota
	// DeepSpace is SDP4, which adds lunar-solar and resonance terms.
	DeepSpace
)

func (m Model) String() string {
	if m == DeepSpace {
		return "deep-space"
	}
	return "near-earth"
}

// Config is the explicit propagator configuration.
type Config struct {
	Gravity Gravity
}

// DefaultConfig returns WGS-72, matching how published TLEs are generated.
func DefaultConfig() Config {
	return Config{Gravity: GravityWGS72}
}

// Propagation failures. Error wraps one of these.
var (
	ErrDegenerateElements = errors.New("degenerate orbital elements")
	ErrDecayed            = errors.New("orbit has decayed")
	ErrPropagationFailed  = errors.New("propagation failed")
)

// Error is a propagation failure for one satellite.
type Error struct {
	NoradID int
	Name    string
	Err     error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("propagating %s (NORAD %d): %v", e.Name, e.NoradID, e.Err)
	}
	return fmt.Sprintf("propagating NORAD %d: %v", e.NoradID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
