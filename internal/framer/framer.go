// Package framer splits protocol responses into MTU-sized notifications.
package framer

import (
	"log"
	"time"
)

// DefaultMaxFragment caps a fragment regardless of MTU.
const DefaultMaxFragment = 400

// headerSize is the ATT notification overhead subtracted from the MTU.
const headerSize = 3

// Notifier is the outbound half of a channel.
type Notifier interface {
	Ready() bool
	Notify(b []byte) error
}

// MTUSource reports the MTU a channel negotiated, if any.
type MTUSource interface {
	NegotiatedMTU() (int, bool)
}

// Framer emits responses fragment by fragment with a pause after each one.
type Framer struct {
	out         Notifier
	mtu         MTUSource
	maxFragment int
	delay       time.Duration

	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

// New builds a Framer. A non-positive maxFragment uses DefaultMaxFragment.
func New(out Notifier, mtu MTUSource, maxFragment int, delay time.Duration) *Framer {
	if maxFragment <= 0 {
		maxFragment = DefaultMaxFragment
	}
	return &Framer{out: out, mtu: mtu, maxFragment: maxFragment, delay: delay, Sleep: time.Sleep}
}

// FragmentSize returns maxFragment, capped at mtu-3 once the channel has
// reported an MTU. It is never less than 1.
func (f *Framer) FragmentSize() int {
	size := f.maxFragment
	if f.mtu != nil {
		if mtu, ok := f.mtu.NegotiatedMTU(); ok && mtu-headerSize < size {
			size = mtu - headerSize
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Send delivers text in order, pausing between fragments. Nothing is sent
// when no client is connected. A failed notification drops the rest of the
// response.
func (f *Framer) Send(text string) {
	if !f.out.Ready() {
		return
	}
	size := f.FragmentSize()
	for off := 0; off < len(text); off += size {
		if off > 0 && f.delay > 0 {
			f.Sleep(f.delay)
		}
		end := off + size
		if end > len(text) {
			end = len(text)
		}
		if err := f.out.Notify([]byte(text[off:end])); err != nil {
			log.Printf("[framer] notify failed at %d/%d: %v", off, len(text), err)
			return
		}
	}
}
