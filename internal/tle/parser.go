package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type sourceLine struct {
	text string
	num  int // 1-based line number in the input
}

// Parse reads NORAD TLE text from r and returns the records it could read.
//
// The input is a sequence of name/line1/line2 triples with no separator
// other than the 3-line cadence. A triple is only taken when its second
// line starts with '1' and its third with '2'; otherwise the scan moves
// forward one line until it finds the cadence again, so a missing or stray
// line costs at most the record it belongs to. A bare line1/line2 pair
// without a name is also accepted. Records that fail validation are skipped
// and reported in Catalog.Skipped. Only read failures are returned as errors.
func Parse(r io.Reader, logger *slog.Logger) (*Catalog, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []sourceLine
	num := 0
	for scanner.Scan() {
		num++
		line := strings.TrimRight(scanner.Text(), "\r\n\t ")
		if line != "" {
			lines = append(lines, sourceLine{text: line, num: num})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var (
		records []Record
		skipped []*ParseError
		pending *ParseError // run of lines skipped while resynchronizing
	)

	flush := func() {
		if pending == nil {
			return
		}
		logger.Warn("skipping unrecognized TLE lines",
			"line", pending.Line,
			"count", pending.Lines,
		)
		skipped = append(skipped, pending)
		pending = nil
	}
	skipLine := func(l sourceLine) {
		if pending == nil {
			pending = &ParseError{Line: l.num, Err: ErrUnrecognizedLines}
		}
		pending.Lines = l.num - pending.Line + 1
	}

	i := 0
	for i < len(lines) {
		switch {
		case i+2 < len(lines) && isTriple(lines[i].text, lines[i+1].text, lines[i+2].text):
			flush()
			name := cleanName(lines[i].text)
			rec, err := ParseRecord(name, lines[i+1].text, lines[i+2].text)
			if err != nil {
				logger.Warn("skipping malformed TLE entry", "line", lines[i].num, "name", name, "error", err)
				skipped = append(skipped, &ParseError{Line: lines[i].num, Lines: lines[i+2].num - lines[i].num + 1, Name: name, Err: err})
			} else {
				records = append(records, rec)
			}
			i += 3

		case i+1 < len(lines) && isDataLine(lines[i].text, '1') && strings.HasPrefix(lines[i+1].text, "2"):
			flush()
			rec, err := ParseRecord("", lines[i].text, lines[i+1].text)
			if err != nil {
				logger.Warn("skipping malformed TLE entry", "line", lines[i].num, "error", err)
				skipped = append(skipped, &ParseError{Line: lines[i].num, Lines: lines[i+1].num - lines[i].num + 1, Err: err})
			} else {
				records = append(records, rec)
			}
			i += 2

		default:
			skipLine(lines[i])
			i++
		}
	}
	flush()

	return &Catalog{
		EpochRange: epochRange(records),
		Records:    records,
		Skipped:    skipped,
	}, nil
}

// isTriple reports whether name/line1/line2 have the shape of one record.
// A name slot holding a full data line means the cadence is broken.
func isTriple(name, line1, line2 string) bool {
	if isDataLine(name, '1') || isDataLine(name, '2') {
		return false
	}
	return strings.HasPrefix(line1, "1") && strings.HasPrefix(line2, "2")
}

func isDataLine(s string, lineNo byte) bool {
	return len(s) == LineLength && s[0] == lineNo && s[1] == ' '
}

// cleanName strips the "0 " prefix used by the 3LE catalog format.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

// ParseRecord validates and decodes one element set.
// Both lines must be exactly 69 columns, carry their line number in column 1
// and pass the modulo-10 checksum.
func ParseRecord(name, line1, line2 string) (Record, error) {
	line1 = strings.TrimRight(line1, "\r\n\t ")
	line2 = strings.TrimRight(line2, "\r\n\t ")

	for i, line := range []string{line1, line2} {
		if len(line) != LineLength {
			return Record{}, fmt.Errorf("%w: line %d has %d columns, want %d", ErrLineLength, i+1, len(line), LineLength)
		}
		if line[0] != byte('1'+i) || line[1] != ' ' {
			return Record{}, fmt.Errorf("%w: line %d starts with %q", ErrLineNumber, i+1, line[:2])
		}
		if err := ValidateChecksum(line); err != nil {
			return Record{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	rec := Record{
		Name:      name,
		Line1:     line1,
		Line2:     line2,
		Checksum1: int(line1[68] - '0'),
		Checksum2: int(line2[68] - '0'),
	}
	if err := parseLine1(&rec, line1); err != nil {
		return Record{}, fmt.Errorf("line 1: %w", err)
	}
	if err := parseLine2(&rec, line2); err != nil {
		return Record{}, fmt.Errorf("line 2: %w", err)
	}
	return rec, nil
}

// parseLine1 decodes line 1:
//
//	cols  3-7   catalog number (Alpha-5 allowed)
//	col   8     classification
//	cols 10-17  international designator
//	cols 19-32  epoch YYDDD.DDDDDDDD
//	cols 34-43  first derivative of mean motion
//	cols 45-52  second derivative of mean motion (implied decimal)
//	cols 54-61  BSTAR (implied decimal)
//	col  63     ephemeris type
//	cols 65-68  element set number
func parseLine1(rec *Record, line string) error {
	var err error

	if rec.NoradID, err = parseCatalogNumber(line[2:7]); err != nil {
		return err
	}
	rec.Classification = line[7]
	rec.IntlDesignator = strings.TrimSpace(line[9:17])

	if rec.Epoch, err = parseEpoch(line[18:32]); err != nil {
		return err
	}
	if rec.MeanMotionDot, err = parseDecimal("mean motion dot", line[33:43]); err != nil {
		return err
	}
	if rec.MeanMotionDDot, err = parseImpliedDecimal("mean motion ddot", line[44:52]); err != nil {
		return err
	}
	if rec.BStar, err = parseImpliedDecimal("bstar", line[53:61]); err != nil {
		return err
	}
	if rec.EphemerisType, err = parseOptionalInt("ephemeris type", line[62:63]); err != nil {
		return err
	}
	if rec.ElementSetNumber, err = parseOptionalInt("element set number", line[64:68]); err != nil {
		return err
	}
	return nil
}

// parseLine2 decodes line 2:
//
//	cols  3-7   catalog number
//	cols  9-16  inclination (deg)
//	cols 18-25  right ascension of the ascending node (deg)
//	cols 27-33  eccentricity (leading decimal point implied)
//	cols 35-42  argument of perigee (deg)
//	cols 44-51  mean anomaly (deg)
//	cols 53-63  mean motion (rev/day)
//	cols 64-68  revolution number at epoch
func parseLine2(rec *Record, line string) error {
	id, err := parseCatalogNumber(line[2:7])
	if err != nil {
		return err
	}
	if id != rec.NoradID {
		return fmt.Errorf("%w: %d vs %d", ErrSatelliteMismatch, rec.NoradID, id)
	}

	if rec.Inclination, err = parseDecimal("inclination", line[8:16]); err != nil {
		return err
	}
	if rec.RAAN, err = parseDecimal("raan", line[17:25]); err != nil {
		return err
	}
	if rec.Eccentricity, err = strconv.ParseFloat("."+line[26:33], 64); err != nil {
		return fmt.Errorf("%w: eccentricity %q", ErrField, line[26:33])
	}
	if rec.ArgPerigee, err = parseDecimal("argument of perigee", line[34:42]); err != nil {
		return err
	}
	if rec.MeanAnomaly, err = parseDecimal("mean anomaly", line[43:51]); err != nil {
		return err
	}
	if rec.MeanMotion, err = parseDecimal("mean motion", line[52:63]); err != nil {
		return err
	}
	if rec.RevolutionNumber, err = parseOptionalInt("revolution number", line[63:68]); err != nil {
		return err
	}
	if rec.Inclination < 0 || rec.Inclination > 180 {
		return fmt.Errorf("%w: inclination %.4f out of range", ErrField, rec.Inclination)
	}
	return nil
}

// parseDecimal reads a right-aligned decimal field. At most two padding
// blanks are tolerated, the same allowance SGP4 readers make, so every
// record accepted here is also readable by the propagator.
func parseDecimal(what, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, " ", "", 2), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrField, what, s)
	}
	return v, nil
}

// parseImpliedDecimal reads the 8-column "SMMMMMSE" notation where
// " 12345-3" means 0.12345e-3.
func parseImpliedDecimal(what, s string) (float64, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("%w: %s %q", ErrField, what, s)
	}
	v, err := strconv.ParseFloat(strings.Replace(s[0:1]+"."+s[1:6]+"e"+s[6:8], " ", "", 2), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrField, what, s)
	}
	return v, nil
}

func parseOptionalInt(what, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrField, what, s)
	}
	return n, nil
}

// parseCatalogNumber reads a 5-column catalog number. Numbers above 99999
// use the Alpha-5 scheme: a leading letter (I and O excluded) replaces the
// ten-thousands digit, A=10 through Z=33.
func parseCatalogNumber(s string) (int, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("%w: empty catalog number", ErrField)
	}
	if c := t[0]; c >= 'A' && c <= 'Z' {
		if len(t) != 5 || c == 'I' || c == 'O' {
			return 0, fmt.Errorf("%w: catalog number %q", ErrField, s)
		}
		rest, err := strconv.Atoi(t[1:])
		if err != nil || rest < 0 {
			return 0, fmt.Errorf("%w: catalog number %q", ErrField, s)
		}
		return alpha5Value(c)*10000 + rest, nil
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: catalog number %q", ErrField, s)
	}
	return n, nil
}

func alpha5Value(c byte) int {
	v := int(c-'A') + 10
	if c > 'I' {
		v--
	}
	if c > 'O' {
		v--
	}
	return v
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) != 14 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrField, s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 0 {
		return time.Time{}, fmt.Errorf("%w: epoch year %q", ErrField, yearStr)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil || dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrField, dayStr)
	}

	// dayOfYear is 1-based: day 1.0 = Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	t = t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour)))

	return t, nil
}
