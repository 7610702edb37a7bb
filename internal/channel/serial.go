package channel

import (
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"GpsLogger/internal/device"
)

// TelemetryPrefix marks telemetry lines on the serial link.
const TelemetryPrefix = "TLM:"

// Serial runs the control protocol over a line-oriented port. Each response
// fragment is one line; telemetry is sent as TelemetryPrefix plus hex.
type Serial struct {
	dev  device.Device
	mtu  int
	open atomic.Bool

	wmu  sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSerial wraps an opened line device.
func NewSerial(dev device.Device, mtu int) *Serial {
	return &Serial{dev: dev, mtu: mtu}
}

// Start treats the port as a connected client and reads commands until Close.
func (s *Serial) Start(h Handler) error {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.open.Store(true)
	safeCall("serial", h.HandleConnect)
	if s.mtu > 0 {
		safeCall("serial", func() { h.HandleMTU(s.mtu) })
	}

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			line, err := s.dev.ReadLine(500 * time.Millisecond)
			if err != nil {
				if errors.Is(err, device.ErrReadTimeout) {
					continue
				}
				if !s.open.Load() {
					return
				}
				time.Sleep(200 * time.Millisecond)
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			safeCall("serial", func() { h.HandleWrite([]byte(line)) })
		}
	}()
	return nil
}

// Ready reports whether the port is open.
func (s *Serial) Ready() bool { return s.open.Load() }

// Notify writes one fragment as a line.
func (s *Serial) Notify(b []byte) error {
	if !s.open.Load() {
		return ErrNotConnected
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.dev.WriteLine(string(b))
}

// Publish writes one telemetry packet as a hex line.
func (s *Serial) Publish(b []byte) error {
	if !s.open.Load() {
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.dev.WriteLine(TelemetryPrefix + hex.EncodeToString(b))
}

// Close stops the reader and closes the port.
func (s *Serial) Close() error {
	if !s.open.Swap(false) {
		return nil
	}
	close(s.stop)
	err := s.dev.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
		log.Printf("[serial] reader did not exit")
	}
	return err
}
