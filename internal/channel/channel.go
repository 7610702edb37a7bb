// Package channel implements the control links a client talks to the logger
// over: a BLE GATT peripheral, a websocket endpoint and a serial line.
//
// Every adapter accepts commands as writes, returns responses as
// notifications and carries binary telemetry on a separate path. Handler
// methods run on the adapter's own goroutines.
package channel

import (
	"errors"
	"log"
)

// ErrNotConnected is returned by Notify when no client is attached.
var ErrNotConnected = errors.New("no client connected")

// Handler receives link events. Implementations must not block.
type Handler interface {
	HandleWrite(b []byte)
	HandleConnect()
	HandleDisconnect()
	HandleMTU(n int)
}

// Channel is a single-client control link.
type Channel interface {
	Start(h Handler) error
	Ready() bool
	// Notify sends one response fragment.
	Notify(b []byte) error
	// Publish sends one encoded telemetry packet; dropped when no client is attached.
	Publish(b []byte) error
	Close() error
}

func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] recovered from handler panic: %v", name, r)
		}
	}()
	fn()
}
