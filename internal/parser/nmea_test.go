package parser

import (
	"errors"
	"math"
	"testing"
	"time"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestParseGGA(t *testing.T) {
	g, err := ParseGGA("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	if err != nil {
		t.Fatalf("ParseGGA() error = %v", err)
	}
	if !near(g.Lat, 48.1173) || !near(g.Lon, 11.0+31.0/60.0) {
		t.Errorf("lat/lon = %v/%v", g.Lat, g.Lon)
	}
	if g.Sats != 8 || g.Quality != 1 || g.AltM != 545.4 {
		t.Errorf("sats/quality/alt = %d/%d/%v", g.Sats, g.Quality, g.AltM)
	}
	want := 12*time.Hour + 35*time.Minute + 19*time.Second
	if g.Time != want {
		t.Errorf("time = %v, want %v", g.Time, want)
	}
	if g.FixType() != 3 {
		t.Errorf("FixType() = %d, want 3", g.FixType())
	}
}

func TestParseGGANoFix(t *testing.T) {
	g, err := ParseGGA("$GNGGA,000000.00,,,,,0,00,99.99,,,,,,*78")
	if err != nil {
		t.Fatalf("ParseGGA() error = %v", err)
	}
	if g.FixType() != 0 {
		t.Errorf("FixType() = %d, want 0", g.FixType())
	}
}

func TestGGAFixType(t *testing.T) {
	tests := []struct {
		quality, sats int
		want          uint8
	}{
		{0, 12, 0},
		{1, 3, 2},
		{1, 4, 3},
		{2, 10, 3},
	}
	for _, tt := range tests {
		if got := (GGA{Quality: tt.quality, Sats: tt.sats}).FixType(); got != tt.want {
			t.Errorf("FixType(q=%d, sats=%d) = %d, want %d", tt.quality, tt.sats, got, tt.want)
		}
	}
}

func TestParseRMC(t *testing.T) {
	r, err := ParseRMC("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	if err != nil {
		t.Fatalf("ParseRMC() error = %v", err)
	}
	if !r.Valid {
		t.Fatal("Valid = false")
	}
	want := time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC)
	if !r.Time.Equal(want) {
		t.Errorf("time = %v, want %v", r.Time, want)
	}
	if !near(r.SpeedMps, 22.4*0.514444) || r.HeadingDeg != 84.4 {
		t.Errorf("speed/heading = %v/%v", r.SpeedMps, r.HeadingDeg)
	}
}

func TestNMEAErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"bad checksum", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48", ErrNMEAChecksum},
		{"not nmea", "hello", ErrNotNMEA},
		{"wrong sentence", FormatNMEA("GPGSV,1,1,00"), ErrNMEASentence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGGA(tt.line); !errors.Is(err, tt.want) {
				t.Errorf("ParseGGA() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCoordRoundTrip(t *testing.T) {
	for _, dec := range []float64{21.0285, -33.8688} {
		s, dir := ToNMEACoord(dec, true)
		got, err := ParseNMEACoord(s, dir)
		if err != nil {
			t.Fatalf("ParseNMEACoord(%s,%s) error = %v", s, dir, err)
		}
		if math.Abs(got-dec) > 1e-5 {
			t.Errorf("round trip %v -> %s%s -> %v", dec, s, dir, got)
		}
	}
	s, dir := ToNMEACoord(-105.8048, false)
	if dir != "W" || s[:3] != "105" {
		t.Errorf("ToNMEACoord(lon) = %s %s", s, dir)
	}
}

func TestFormatNMEA(t *testing.T) {
	got := FormatNMEA("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	if got[len(got)-3:] != "*6A" {
		t.Errorf("FormatNMEA() = %s", got)
	}
	if SentenceType(got) != "RMC" {
		t.Errorf("SentenceType() = %q", SentenceType(got))
	}
}
