package tle

import "fmt"

// LineLength is the fixed width of TLE line 1 and line 2, checksum included.
const LineLength = 69

// Checksum computes the modulo-10 checksum over the first 68 columns of a
// TLE line: digits count their value, '-' counts one, everything else zero.
func Checksum(line string) (int, error) {
	if len(line) < LineLength-1 {
		return 0, fmt.Errorf("%w: %d columns, need at least %d", ErrLineLength, len(line), LineLength-1)
	}
	sum := 0
	for i := 0; i < LineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10, nil
}

// ValidateChecksum reports whether column 69 of line holds the checksum of
// columns 1-68.
func ValidateChecksum(line string) error {
	if len(line) != LineLength {
		return fmt.Errorf("%w: %d columns, want %d", ErrLineLength, len(line), LineLength)
	}
	want, err := Checksum(line)
	if err != nil {
		return err
	}
	c := line[LineLength-1]
	if c < '0' || c > '9' {
		return fmt.Errorf("%w: checksum column holds %q", ErrChecksum, c)
	}
	if got := int(c - '0'); got != want {
		return fmt.Errorf("%w: computed %d, line says %d", ErrChecksum, want, got)
	}
	return nil
}
