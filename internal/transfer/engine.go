// Package transfer implements the chunked file download engine.
//
// An Engine serves one download at a time. Start opens the file and announces
// it, each Tick sends at most one hex-encoded chunk once the pacing interval
// has elapsed, and the transfer ends with COMPLETE, CANCELLED or a read error.
// All methods except the MTU accessors belong to the main loop.
package transfer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"GpsLogger/internal/storage"
)

const (
	// DefaultMTU is the ATT MTU every link starts with.
	DefaultMTU = 23
	// MTUHeaderSize is the ATT notification overhead.
	MTUHeaderSize = 3

	// MaxHexChars bounds the hex payload of one CHUNK message.
	MaxHexChars = 800
	// MaxChunkSize is the largest raw chunk whose hex fits MaxHexChars.
	MaxChunkSize = MaxHexChars / 2
	MinChunkSize = 16
	// ChunkOverhead covers "CHUNK:", ":SEQ:" and a 32-bit sequence number.
	ChunkOverhead   = len("CHUNK:") + len(":SEQ:") + 10
	MaxChunkMessage = MaxHexChars + ChunkOverhead

	DefaultChunkSize   = MaxChunkSize
	DefaultMinInterval = 100 * time.Millisecond

	// etaWarmup is how long a transfer runs before an ETA is estimated.
	etaWarmup = 2 * time.Second
)

// Responder delivers protocol responses to the client.
type Responder interface {
	Send(msg string)
}

// State of the engine.
type State int

const (
	Idle State = iota
	Active
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	return [...]string{"idle", "active", "completed", "cancelled", "failed"}[s]
}

// Config tunes chunk size and pacing.
type Config struct {
	ChunkSize   int
	MinInterval time.Duration
}

// Progress is a snapshot of the current or last transfer.
type Progress struct {
	State     State
	Name      string
	Total     int64
	Sent      int64
	Seq       int64
	Percent   float64
	EtaMillis int64
	Elapsed   time.Duration
}

// Engine owns the single transfer slot and its open file handle.
type Engine struct {
	store       storage.Accessor
	out         Responder
	chunkSize   int
	minInterval time.Duration
	mtu         atomic.Int32
	negotiated  atomic.Bool

	state     State
	handle    storage.File
	name      string
	total     int64
	sent      int64
	started   time.Time
	lastChunk time.Time
	percent   float64
	etaMs     int64
	elapsed   time.Duration
	buf       []byte
}

// NewEngine builds an idle engine. The chunk size is clamped to
// [MinChunkSize, MaxChunkSize] so every CHUNK message stays within
// MaxChunkMessage.
func NewEngine(store storage.Accessor, out Responder, cfg Config) *Engine {
	cs := cfg.ChunkSize
	switch {
	case cs <= 0:
		cs = DefaultChunkSize
	case cs < MinChunkSize:
		cs = MinChunkSize
	case cs > MaxChunkSize:
		log.Printf("[transfer] chunk size %d exceeds %d, clamping", cs, MaxChunkSize)
		cs = MaxChunkSize
	}
	iv := cfg.MinInterval
	if iv <= 0 {
		iv = DefaultMinInterval
	}
	e := &Engine{
		store:       store,
		out:         out,
		chunkSize:   cs,
		minInterval: iv,
		buf:         make([]byte, cs),
	}
	e.mtu.Store(DefaultMTU)
	return e
}

// ChunkSize returns the effective raw chunk size.
func (e *Engine) ChunkSize() int { return e.chunkSize }

// ResetMTU restores the default MTU and forgets any negotiated value;
// called on every new connection.
func (e *Engine) ResetMTU() {
	e.negotiated.Store(false)
	e.mtu.Store(DefaultMTU)
}

// SetMTU records a negotiated MTU. Values below the default are ignored.
func (e *Engine) SetMTU(n int) {
	if n < DefaultMTU {
		return
	}
	e.mtu.Store(int32(n))
	e.negotiated.Store(true)
}

// MTU returns the current MTU, DefaultMTU until one is negotiated.
func (e *Engine) MTU() int { return int(e.mtu.Load()) }

// NegotiatedMTU returns the MTU and whether the channel reported it.
func (e *Engine) NegotiatedMTU() (int, bool) {
	return int(e.mtu.Load()), e.negotiated.Load()
}

// Active reports whether a transfer is in progress.
func (e *Engine) Active() bool { return e.state == Active }

// ActiveName returns the file being sent, or "" when idle.
func (e *Engine) ActiveName() string {
	if e.state != Active {
		return ""
	}
	return e.name
}

// Start begins sending name. A transfer already in progress is closed first.
func (e *Engine) Start(name string, now time.Time) {
	if !e.store.Available() {
		e.out.Send("ERROR:NO_SD_CARD")
		return
	}
	if !e.store.Exists(name) {
		e.out.Send("ERROR:FILE_NOT_FOUND:" + name)
		return
	}
	if e.state == Active {
		log.Printf("[transfer] replacing %s with %s", e.name, name)
		e.release()
		e.state = Idle
	}

	f, err := e.store.Open(name)
	if err != nil {
		log.Printf("[transfer] open %s: %v", name, err)
		if errors.Is(err, storage.ErrNotFound) {
			e.out.Send("ERROR:FILE_NOT_FOUND:" + name)
		} else {
			e.out.Send("ERROR:CANT_OPEN_FILE:" + name)
		}
		return
	}

	e.state = Active
	e.handle = f
	e.name = name
	e.total = f.Size()
	e.sent = 0
	e.started = now
	e.lastChunk = now
	e.elapsed = 0
	e.resetProgress()

	log.Printf("[transfer] start %s (%d bytes, chunk %d)", name, e.total, e.chunkSize)
	e.out.Send(fmt.Sprintf("START:%s:%d", name, e.total))
}

// Tick sends at most one chunk. It does nothing when idle or when the
// pacing interval since the previous chunk has not elapsed.
func (e *Engine) Tick(now time.Time) {
	if e.state != Active || now.Sub(e.lastChunk) < e.minInterval {
		return
	}

	remaining := e.total - e.sent
	if remaining <= 0 {
		e.complete(now)
		return
	}
	want := int64(e.chunkSize)
	if remaining < want {
		want = remaining
	}

	n, err := e.handle.Read(e.buf[:want])
	if n > 0 {
		seq := e.sent / int64(e.chunkSize)
		e.out.Send("CHUNK:" + hex.EncodeToString(e.buf[:n]) + ":SEQ:" + strconv.FormatInt(seq, 10))
		e.sent += int64(n)
		e.lastChunk = now
		e.updateProgress(now)
	}

	switch {
	case err == nil && n > 0:
	case err == nil || errors.Is(err, io.EOF):
		if n == 0 {
			e.complete(now)
		}
	default:
		e.fail(err)
	}
}

// Cancel aborts the active transfer. It is a no-op when idle.
func (e *Engine) Cancel() {
	if e.state != Active {
		return
	}
	log.Printf("[transfer] cancel %s at %d/%d bytes", e.name, e.sent, e.total)
	e.release()
	e.state = Cancelled
	e.resetProgress()
	e.out.Send("CANCELLED:" + e.name)
}

// Status returns "ACTIVE:<name>:<percent>" or "IDLE".
func (e *Engine) Status() string {
	if e.state != Active {
		return "IDLE"
	}
	return fmt.Sprintf("ACTIVE:%s:%d", e.name, int(e.percent))
}

// Progress returns a snapshot of the engine.
func (e *Engine) Progress() Progress {
	return Progress{
		State:     e.state,
		Name:      e.name,
		Total:     e.total,
		Sent:      e.sent,
		Seq:       e.sent / int64(e.chunkSize),
		Percent:   e.percent,
		EtaMillis: e.etaMs,
		Elapsed:   e.elapsed,
	}
}

// Close releases any open handle without notifying the client.
func (e *Engine) Close() {
	if e.state == Active {
		e.release()
		e.state = Idle
	}
}

func (e *Engine) updateProgress(now time.Time) {
	if e.total > 0 {
		e.percent = float64(e.sent) * 100 / float64(e.total)
	}
	e.elapsed = now.Sub(e.started)
	elapsedMs := e.elapsed.Milliseconds()
	if e.elapsed > etaWarmup && e.sent > 0 && elapsedMs > 0 {
		rate := float64(e.sent) / float64(elapsedMs)
		e.etaMs = int64(float64(e.total-e.sent) / rate)
	}
}

func (e *Engine) complete(now time.Time) {
	e.release()
	e.state = Completed
	e.elapsed = now.Sub(e.started)
	ms := e.elapsed.Milliseconds()
	if ms > 0 {
		log.Printf("[transfer] complete %s: %d bytes in %dms (%.1f B/s)",
			e.name, e.sent, ms, float64(e.sent)*1000/float64(ms))
	}
	e.resetProgress()
	e.out.Send(fmt.Sprintf("COMPLETE:%d:TIME:%d", e.sent, ms))
}

func (e *Engine) fail(err error) {
	log.Printf("[transfer] read %s failed at %d/%d bytes: %v", e.name, e.sent, e.total, err)
	e.release()
	e.state = Failed
	e.resetProgress()
	e.out.Send("ERROR:READ_FAILED:" + e.name)
}

func (e *Engine) resetProgress() {
	e.percent = 0
	e.etaMs = 0
}

func (e *Engine) release() {
	if e.handle == nil {
		return
	}
	if err := e.handle.Close(); err != nil {
		log.Printf("[transfer] warning: close %s: %v", e.name, err)
	}
	e.handle = nil
}
