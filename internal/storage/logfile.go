package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"GpsLogger/internal/parser"
)

// ErrBadHeader is returned by ReadLog when the file does not start with LogHeader.
var ErrBadHeader = errors.New("not a gps log")

// LogHeader starts every log file.
const LogHeader = "GPS_LOG_V1.0\n"

// maxLogSuffix bounds the collision suffixes CreateLog tries.
const maxLogSuffix = 99

// LogName returns the file name for a log started at t.
func LogName(t time.Time) string {
	return "gps_" + t.UTC().Format("20060102_150405") + ".bin"
}

// logNameN returns LogName(t) with a "_n" suffix for n > 0.
func logNameN(t time.Time, n int) string {
	if n == 0 {
		return LogName(t)
	}
	return fmt.Sprintf("gps_%s_%d.bin", t.UTC().Format("20060102_150405"), n)
}

// LogWriter appends fixed-size records to one log file.
type LogWriter struct {
	name    string
	w       io.WriteCloser
	records uint64
	dropped uint64
}

// CreateLog opens a new log file under d named from t and writes the header.
// An existing log with the same name is kept; the new one gets a "_n" suffix.
func CreateLog(d *Dir, t time.Time) (*LogWriter, error) {
	var (
		name string
		f    *os.File
		err  error
	)
	for n := 0; n <= maxLogSuffix; n++ {
		name = logNameN(t, n)
		f, err = d.Create(name)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create log %s: %w", name, err)
	}
	lw := &LogWriter{name: name, w: f}
	if _, err := io.WriteString(f, LogHeader); err != nil {
		if cerr := f.Close(); cerr != nil {
			log.Printf("[storage] warning: close %s: %v", name, cerr)
		}
		return nil, fmt.Errorf("write header %s: %w", name, err)
	}
	return lw, nil
}

// Name returns the file name.
func (l *LogWriter) Name() string { return l.name }

// Append writes one record. Short or failed writes count as dropped and
// are not returned as errors.
func (l *LogWriter) Append(rec []byte) bool {
	n, err := l.w.Write(rec)
	if err != nil || n != len(rec) {
		l.dropped++
		return false
	}
	l.records++
	return true
}

// Records returns how many records were written in full.
func (l *LogWriter) Records() uint64 { return l.records }

// Dropped returns how many records were lost.
func (l *LogWriter) Dropped() uint64 { return l.dropped }

// Close flushes and closes the file.
func (l *LogWriter) Close() error {
	if f, ok := l.w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			log.Printf("[storage] warning: sync %s: %v", l.name, err)
		}
	}
	return l.w.Close()
}

// LogSummary counts what ReadLog saw.
type LogSummary struct {
	Records  int // records passed to the callback
	BadCRC   int // records skipped on checksum mismatch
	Trailing int // bytes after the last whole record
}

// ReadLog checks the header of r and calls fn for every record whose
// checksum verifies. A callback error stops the scan.
func ReadLog(r io.Reader, fn func(parser.Packet) error) (LogSummary, error) {
	var sum LogSummary
	br := bufio.NewReader(r)
	head := make([]byte, len(LogHeader))
	if _, err := io.ReadFull(br, head); err != nil || string(head) != LogHeader {
		return sum, ErrBadHeader
	}
	rec := make([]byte, parser.PacketSize)
	for {
		n, err := io.ReadFull(br, rec)
		if err == io.EOF {
			return sum, nil
		}
		if err == io.ErrUnexpectedEOF {
			sum.Trailing = n
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		p, err := parser.DecodePacket(rec)
		if err != nil {
			sum.BadCRC++
			continue
		}
		sum.Records++
		if err := fn(p); err != nil {
			return sum, err
		}
	}
}
