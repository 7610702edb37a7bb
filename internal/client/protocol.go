package client

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrCancelled = errors.New("transfer cancelled")
	ErrProtocol  = errors.New("protocol error")
)

// Entry is one file in a FILES listing.
type Entry struct {
	Name string
	Size int64
}

// ParseFiles decodes "FILES:<name>:<size>;...COUNT:<n>".
func ParseFiles(msg string) ([]Entry, error) {
	body, ok := strings.CutPrefix(msg, "FILES:")
	if !ok {
		return nil, fmt.Errorf("%w: not a file list: %.20q", ErrProtocol, msg)
	}
	parts := strings.Split(body, ";")
	last := parts[len(parts)-1]
	countStr, ok := strings.CutPrefix(last, "COUNT:")
	if !ok {
		return nil, fmt.Errorf("%w: file list without count", ErrProtocol)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad count %q", ErrProtocol, countStr)
	}
	var out []Entry
	for _, p := range parts[:len(parts)-1] {
		name, size, err := splitNameSize(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: name, Size: size})
	}
	if len(out) != count {
		return nil, fmt.Errorf("%w: listed %d files, count says %d", ErrProtocol, len(out), count)
	}
	return out, nil
}

func splitNameSize(s string) (string, int64, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: bad entry %q", ErrProtocol, s)
	}
	size, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad size in %q", ErrProtocol, s)
	}
	return s[:i], size, nil
}

// DeviceError wraps an ERROR:<code>[:<name>] response.
type DeviceError struct {
	Code string
	Name string
}

func (e *DeviceError) Error() string {
	if e.Name == "" {
		return "device error " + e.Code
	}
	return "device error " + e.Code + " for " + e.Name
}

// ParseError decodes an ERROR response.
func ParseError(msg string) (*DeviceError, bool) {
	body, ok := strings.CutPrefix(msg, "ERROR:")
	if !ok {
		return nil, false
	}
	code, name, _ := strings.Cut(body, ":")
	return &DeviceError{Code: code, Name: name}, true
}

// Download accumulates one file from START, CHUNK and COMPLETE responses.
type Download struct {
	Name     string
	Size     int64
	Data     bytes.Buffer
	Chunks   int64
	TimeMs   int64
	started  bool
	finished bool
}

// Done reports whether COMPLETE was received and verified.
func (d *Download) Done() bool { return d.finished }

// Handle applies one response. It returns true once the download finished.
// Unrelated responses such as telemetry or STATUS are ignored.
func (d *Download) Handle(msg string) (bool, error) {
	switch {
	case strings.HasPrefix(msg, "START:"):
		name, size, err := splitNameSize(strings.TrimPrefix(msg, "START:"))
		if err != nil {
			return false, err
		}
		d.Name, d.Size, d.started = name, size, true
		d.Data.Reset()
		d.Chunks = 0
		return false, nil

	case strings.HasPrefix(msg, "CHUNK:"):
		if !d.started {
			return false, fmt.Errorf("%w: chunk before start", ErrProtocol)
		}
		body := strings.TrimPrefix(msg, "CHUNK:")
		i := strings.LastIndex(body, ":SEQ:")
		if i < 0 {
			return false, fmt.Errorf("%w: chunk without sequence", ErrProtocol)
		}
		seq, err := strconv.ParseInt(body[i+len(":SEQ:"):], 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: bad sequence: %v", ErrProtocol, err)
		}
		if seq != d.Chunks {
			return false, fmt.Errorf("%w: sequence %d, expected %d", ErrProtocol, seq, d.Chunks)
		}
		b, err := hex.DecodeString(body[:i])
		if err != nil {
			return false, fmt.Errorf("%w: bad chunk hex: %v", ErrProtocol, err)
		}
		d.Data.Write(b)
		d.Chunks++
		return false, nil

	case strings.HasPrefix(msg, "COMPLETE:"):
		var n, ms int64
		if _, err := fmt.Sscanf(msg, "COMPLETE:%d:TIME:%d", &n, &ms); err != nil {
			return false, fmt.Errorf("%w: bad completion %q", ErrProtocol, msg)
		}
		if n != int64(d.Data.Len()) || n != d.Size {
			return false, fmt.Errorf("%w: completed with %d bytes, received %d of %d",
				ErrProtocol, n, d.Data.Len(), d.Size)
		}
		d.TimeMs = ms
		d.finished = true
		return true, nil

	case strings.HasPrefix(msg, "CANCELLED:"):
		return false, ErrCancelled

	case strings.HasPrefix(msg, "ERROR:"):
		e, _ := ParseError(msg)
		return false, e
	}
	return false, nil
}
