package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotNMEA      = errors.New("not an nmea sentence")
	ErrNMEAChecksum = errors.New("nmea checksum mismatch")
	ErrNMEASentence = errors.New("unsupported nmea sentence")
	errInvalidCoord = errors.New("invalid nmea coord")
)

const knotsToMetersSec = 0.514444

// GGA holds the fields of a GGA sentence the logger uses.
type GGA struct {
	Time    time.Duration // since UTC midnight
	Lat     float64
	Lon     float64
	Quality int
	Sats    int
	AltM    float64
}

// FixType maps GGA quality and satellite count onto 0 (none), 2 (2D) or 3 (3D).
func (g GGA) FixType() uint8 {
	switch {
	case g.Quality == 0:
		return 0
	case g.Sats >= 4:
		return 3
	default:
		return 2
	}
}

// RMC holds the fields of an RMC sentence the logger uses.
type RMC struct {
	Time       time.Time
	Valid      bool
	Lat        float64
	Lon        float64
	SpeedMps   float64
	HeadingDeg float64
}

// NMEAChecksum returns the xor of every byte between '$' and '*'.
func NMEAChecksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// FormatNMEA wraps a sentence body in '$' and '*hh'.
func FormatNMEA(body string) string {
	return fmt.Sprintf("$%s*%02X", body, NMEAChecksum(body))
}

// splitNMEA validates framing and checksum and returns the comma-separated fields.
func splitNMEA(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotNMEA
	}
	body := line[1:]
	if i := strings.IndexByte(body, '*'); i >= 0 {
		want, err := strconv.ParseUint(body[i+1:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("parse nmea checksum: %w", err)
		}
		body = body[:i]
		if NMEAChecksum(body) != byte(want) {
			return nil, ErrNMEAChecksum
		}
	}
	parts := strings.Split(body, ",")
	if len(parts[0]) < 5 {
		return nil, ErrNotNMEA
	}
	return parts, nil
}

// SentenceType returns the three-letter type ("GGA", "RMC") ignoring the talker id.
func SentenceType(line string) string {
	line = strings.TrimSpace(line)
	if len(line) < 6 || line[0] != '$' {
		return ""
	}
	return line[3:6]
}

// ParseGGA decodes a GGA sentence from any talker.
func ParseGGA(line string) (GGA, error) {
	parts, err := splitNMEA(line)
	if err != nil {
		return GGA{}, err
	}
	if parts[0][2:] != "GGA" || len(parts) < 10 {
		return GGA{}, ErrNMEASentence
	}
	var g GGA
	if g.Time, err = parseClock(parts[1]); err != nil {
		return GGA{}, err
	}
	if g.Quality, err = atoiOrZero(parts[6]); err != nil {
		return GGA{}, fmt.Errorf("gga quality: %w", err)
	}
	if g.Sats, err = atoiOrZero(parts[7]); err != nil {
		return GGA{}, fmt.Errorf("gga sats: %w", err)
	}
	if g.Quality == 0 {
		return g, nil
	}
	if g.Lat, err = ParseNMEACoord(parts[2], parts[3]); err != nil {
		return GGA{}, err
	}
	if g.Lon, err = ParseNMEACoord(parts[4], parts[5]); err != nil {
		return GGA{}, err
	}
	if parts[9] != "" {
		if g.AltM, err = strconv.ParseFloat(parts[9], 64); err != nil {
			return GGA{}, fmt.Errorf("gga altitude: %w", err)
		}
	}
	return g, nil
}

// ParseRMC decodes an RMC sentence from any talker.
func ParseRMC(line string) (RMC, error) {
	parts, err := splitNMEA(line)
	if err != nil {
		return RMC{}, err
	}
	if parts[0][2:] != "RMC" || len(parts) < 10 {
		return RMC{}, ErrNMEASentence
	}
	r := RMC{Valid: parts[2] == "A"}
	if !r.Valid {
		return r, nil
	}
	clock, err := parseClock(parts[1])
	if err != nil {
		return RMC{}, err
	}
	if len(parts[9]) == 6 {
		day, err := time.Parse("020106", parts[9])
		if err != nil {
			return RMC{}, fmt.Errorf("rmc date: %w", err)
		}
		r.Time = day.Add(clock)
	}
	if r.Lat, err = ParseNMEACoord(parts[3], parts[4]); err != nil {
		return RMC{}, err
	}
	if r.Lon, err = ParseNMEACoord(parts[5], parts[6]); err != nil {
		return RMC{}, err
	}
	if parts[7] != "" {
		knots, err := strconv.ParseFloat(parts[7], 64)
		if err != nil {
			return RMC{}, fmt.Errorf("rmc speed: %w", err)
		}
		r.SpeedMps = knots * knotsToMetersSec
	}
	if parts[8] != "" {
		if r.HeadingDeg, err = strconv.ParseFloat(parts[8], 64); err != nil {
			return RMC{}, fmt.Errorf("rmc course: %w", err)
		}
	}
	return r, nil
}

// parseClock turns hhmmss(.ss) into a duration since midnight.
func parseClock(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if len(s) < 6 {
		return 0, fmt.Errorf("invalid nmea time %q", s)
	}
	h, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	sec, err3 := strconv.ParseFloat(s[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("invalid nmea time %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ParseNMEACoord converts NMEA ddmm.mmmm to decimal degrees.
func ParseNMEACoord(value string, dir string) (float64, error) {
	if len(value) < 4 {
		return 0, errInvalidCoord
	}
	var degPart, minPart string
	// latitude has 2 digit degrees vs lon 3 digits; detect by dir
	switch dir {
	case "N", "S":
		degPart, minPart = value[:2], value[2:]
	case "E", "W":
		degPart, minPart = value[:3], value[3:]
	default:
		return 0, errInvalidCoord
	}
	deg, err := strconv.ParseFloat(degPart, 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(minPart, 64)
	if err != nil {
		return 0, err
	}
	dec := deg + min/60.0
	if dir == "S" || dir == "W" {
		dec = -dec
	}
	return dec, nil
}

// ToNMEACoord converts decimal degrees to ddmm.mmmm and a hemisphere letter.
func ToNMEACoord(dec float64, isLat bool) (string, string) {
	dir := "N"
	if !isLat {
		dir = "E"
	}
	if dec < 0 {
		dec = -dec
		if isLat {
			dir = "S"
		} else {
			dir = "W"
		}
	}
	deg := int(dec)
	min := (dec - float64(deg)) * 60
	if isLat {
		return fmt.Sprintf("%02d%07.4f", deg, min), dir
	}
	return fmt.Sprintf("%03d%07.4f", deg, min), dir
}
