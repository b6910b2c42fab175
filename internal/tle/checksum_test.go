package tle

import (
	"errors"
	"testing"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"

	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000  1008"

	gpsLine1 = "1 24876U 97035A   24100.50000000 -.00000023  00000-0  00000-0 0  9999"
	gpsLine2 = "2 24876  55.5000 120.0000 0050000  60.0000 300.0000  2.00560000 10005"

	// Vanguard 1 from the SGP4 verification set.
	vanguardLine1 = "1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753"
	vanguardLine2 = "2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667"
)

// withChecksum replaces column 69 of line with the correct checksum digit.
func withChecksum(t *testing.T, line string) string {
	t.Helper()
	sum, err := Checksum(line)
	if err != nil {
		t.Fatalf("Checksum(%q): %v", line, err)
	}
	return line[:LineLength-1] + string(rune('0'+sum))
}

func TestValidateChecksum(t *testing.T) {
	for _, line := range []string{issLine1, issLine2, starlinkLine1, starlinkLine2, gpsLine1, gpsLine2, vanguardLine1, vanguardLine2} {
		if err := ValidateChecksum(line); err != nil {
			t.Errorf("ValidateChecksum(%q) = %v, want nil", line, err)
		}
	}
}

func TestChecksumCountsMinusAsOne(t *testing.T) {
	plus := "1 00000U 00000A   00001.00000000 +.00000000  00000+0  00000+0 0    0"
	minus := "1 00000U 00000A   00001.00000000 -.00000000  00000-0  00000-0 0    0"

	a, err := Checksum(plus)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Checksum(minus)
	if err != nil {
		t.Fatal(err)
	}
	if (b-a+10)%10 != 3 {
		t.Errorf("checksum with three minus signs = %d, without = %d, want difference 3", b, a)
	}
}

// TestChecksumDetectsDigitMutation mutates every digit of a valid line in
// turn. Bumping a digit by one shifts the sum by 1 or -9, both non-zero
// modulo 10, so every mutation must be caught.
func TestChecksumDetectsDigitMutation(t *testing.T) {
	for _, line := range []string{issLine1, issLine2} {
		for i := 0; i < LineLength-1; i++ {
			c := line[i]
			if c < '0' || c > '9' {
				continue
			}
			mutated := line[:i] + string(rune('0'+(c-'0'+1)%10)) + line[i+1:]
			err := ValidateChecksum(mutated)
			if !errors.Is(err, ErrChecksum) {
				t.Errorf("column %d mutated %q -> %q: err = %v, want ErrChecksum", i+1, c, mutated[i], err)
			}
		}
	}
}

func TestValidateChecksumRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"short", issLine1[:60], ErrLineLength},
		{"long", issLine1 + "0", ErrLineLength},
		{"wrong digit", issLine1[:68] + "0", ErrChecksum},
		{"non-digit checksum", issLine1[:68] + "X", ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateChecksum(tt.line); !errors.Is(err, tt.want) {
				t.Errorf("ValidateChecksum() = %v, want %v", err, tt.want)
			}
		})
	}
}
