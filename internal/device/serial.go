package device

import (
	"bufio"
	"errors"
	"fmt"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// ErrReadTimeout is returned by ReadLine when no full line arrived in time.
var ErrReadTimeout = errors.New("read timeout")

var errNotOpen = errors.New("serial port not open")

type lineResult struct {
	line string
	err  error
}

// SerialDevice implements Device using go.bug.st/serial.
type SerialDevice struct {
	port serial.Port
	r    *bufio.Reader
	dev  string
	baud int

	mu      sync.Mutex
	pending chan lineResult // read still in flight after a timeout
}

// NewSerialDevice opens dev at baud, 8N1.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	s := &SerialDevice{dev: dev, baud: baud}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open (re)opens the port if it is closed.
func (s *SerialDevice) Open() error {
	if s.port != nil {
		return nil
	}
	p, err := serial.Open(s.dev, &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open serial %s@%d: %w", s.dev, s.baud, err)
	}
	s.port = p
	s.r = bufio.NewReaderSize(p, 512)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// Close closes the port. A read still in flight ends with the port's error.
func (s *SerialDevice) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// ReadLine reads a single line from the serial port, blocking until newline or timeout.
// A read interrupted by the timeout keeps running and its line is returned by the next call.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	if s.port == nil {
		return "", errNotOpen
	}

	s.mu.Lock()
	ch := s.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		r := s.r
		go func() {
			line, err := r.ReadString('\n')
			ch <- lineResult{line, err}
		}()
	}
	s.pending = nil
	s.mu.Unlock()

	if timeout <= 0 {
		res := <-ch
		return res.line, res.err
	}

	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		s.mu.Lock()
		s.pending = ch
		s.mu.Unlock()
		return "", ErrReadTimeout
	}
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	if s.port == nil {
		return errNotOpen
	}
	_, err := s.port.Write(append([]byte(line), '\n'))
	return err
}
