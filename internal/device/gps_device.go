// Package device implements a GPS device reader using NMEA protocol.
// It supports both real GPS serial reading and simulated output generation.
package device

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"GpsLogger/internal/model"
	"GpsLogger/internal/parser"
)

// GpsDevice reads NMEA data from a serial GNSS receiver or writes simulated sentences to a port.
type GpsDevice struct {
	Device string
	Baud   int
	Serial Device

	skipCounter
}

// NewGpsDevice creates a new GPS device based on serial communication.
func NewGpsDevice(dev string, baud int) *GpsDevice {
	return &GpsDevice{Device: dev, Baud: baud}
}

// Open opens the GPS serial port.
func (g *GpsDevice) Open() error {
	if g.Serial != nil {
		return nil
	}
	sd, err := NewSerialDevice(g.Device, g.Baud)
	if err != nil {
		return fmt.Errorf("open gps serial failed: %w", err)
	}
	g.Serial = sd
	return nil
}

// Close closes the GPS serial port safely.
func (g *GpsDevice) Close() error {
	if g.Serial == nil {
		return nil
	}
	err := g.Serial.Close()
	g.Serial = nil
	return err
}

// Read streams merged fixes to out until the returned stop function is called.
// out is closed when the reader exits.
func (g *GpsDevice) Read(out chan<- model.GpsData) (func(), error) {
	if err := g.Open(); err != nil {
		return nil, err
	}
	sd := g.Serial

	stop := make(chan struct{})
	go func() {
		defer close(out)
		var m NMEAMerger
		for {
			select {
			case <-stop:
				return
			default:
			}

			line, err := sd.ReadLine(500 * time.Millisecond)
			if err != nil {
				if !errors.Is(err, ErrReadTimeout) {
					time.Sleep(200 * time.Millisecond)
				}
				continue
			}
			fix, ok := m.Feed(line)
			if !ok {
				continue
			}
			g.offer(out, fix)
		}
	}()
	return func() {
		close(stop)
		if err := g.Close(); err != nil {
			log.Printf("[gps] warning: close %s: %v", g.Device, err)
		}
	}, nil
}

// NMEAMerger combines RMC (date, speed, course) and GGA (quality, altitude)
// into one fix. A fix is emitted on every GGA.
type NMEAMerger struct {
	cur model.GpsData
	day time.Time
}

// Feed consumes one sentence and returns a fix when one is complete.
func (m *NMEAMerger) Feed(line string) (model.GpsData, bool) {
	line = strings.TrimSpace(line)
	switch parser.SentenceType(line) {
	case "RMC":
		r, err := parser.ParseRMC(line)
		if err != nil || !r.Valid {
			return model.GpsData{}, false
		}
		if !r.Time.IsZero() {
			y, mo, d := r.Time.Date()
			m.day = time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
		}
		m.cur.SpeedMps = r.SpeedMps
		m.cur.HeadingDeg = r.HeadingDeg
		return model.GpsData{}, false
	case "GGA":
		gga, err := parser.ParseGGA(line)
		if err != nil {
			return model.GpsData{}, false
		}
		m.cur.FixType = gga.FixType()
		m.cur.Sats = uint8(min(gga.Sats, math.MaxUint8))
		if m.cur.FixType > 0 {
			m.cur.Lat, m.cur.Lon, m.cur.AltM = gga.Lat, gga.Lon, gga.AltM
		}
		if !m.day.IsZero() {
			m.cur.Time = m.day.Add(gga.Time)
		}
		return m.cur, true
	}
	return model.GpsData{}, false
}

// Simulate writes GGA and RMC sentences tracing a slow circle until stop is closed.
func (g *GpsDevice) Simulate(stop <-chan struct{}, interval time.Duration) error {
	if err := g.Open(); err != nil {
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			log.Printf("warning: failed to close gps device: %v", err)
		}
	}()

	log.Printf("[gps] simulator started on %s (baud %d)", g.Device, g.Baud)
	track := NewTrack(21.0285, 105.8048)
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			log.Println("[gps] simulation stopped")
			return nil
		case now := <-tick.C:
			for _, s := range track.Sentences(now.UTC()) {
				if err := g.Serial.WriteLine(s); err != nil {
					log.Printf("[gps] simulate write error: %v", err)
				}
			}
		}
	}
}

// Track generates positions around a centre point.
type Track struct {
	lat, lon float64
	step     int
}

// NewTrack centres a simulated track on lat/lon.
func NewTrack(lat, lon float64) *Track {
	return &Track{lat: lat, lon: lon}
}

// Next advances the track and returns the next fix at t.
func (t *Track) Next(at time.Time) model.GpsData {
	t.step++
	a := float64(t.step%3600) * 2 * math.Pi / 3600
	return model.GpsData{
		Time:       at.Truncate(10 * time.Millisecond),
		Lat:        t.lat + 0.001*math.Sin(a),
		Lon:        t.lon + 0.001*math.Cos(a),
		AltM:       12 + 2*math.Sin(a*4),
		SpeedMps:   1.5,
		HeadingDeg: math.Mod(360-a*180/math.Pi, 360),
		FixType:    3,
		Sats:       9,
	}
}

// Sentences renders the next fix as an RMC and GGA pair.
func (t *Track) Sentences(at time.Time) []string {
	f := t.Next(at)
	latStr, latDir := parser.ToNMEACoord(f.Lat, true)
	lonStr, lonDir := parser.ToNMEACoord(f.Lon, false)
	clock := f.Time.Format("150405.00")
	rmc := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.2f,%.2f,%s,,,A",
		clock, latStr, latDir, lonStr, lonDir, f.SpeedMps/0.514444, f.HeadingDeg, f.Time.Format("020106"))
	gga := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,%02d,0.9,%.1f,M,0.0,M,,",
		clock, latStr, latDir, lonStr, lonDir, f.Sats, f.AltM)
	return []string{parser.FormatNMEA(rmc), parser.FormatNMEA(gga)}
}
