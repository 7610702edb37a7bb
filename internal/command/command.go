// Package command parses control-channel writes and routes them either to an
// immediate logging toggle or to the deferred queue.
package command

import (
	"strings"

	"GpsLogger/internal/queue"
	"GpsLogger/internal/util"
)

// Kind of a parsed command.
type Kind int

const (
	StartLog Kind = iota
	StopLog
	List
	Download
	Delete
	Cancel
	Status
)

// Command is one parsed control message.
type Command struct {
	Kind Kind
	Arg  string
}

var exact = map[string]Kind{
	"START_LOG":       StartLog,
	"STOP_LOG":        StopLog,
	"LIST_FILES":      List,
	"LIST":            List,
	"CANCEL_TRANSFER": Cancel,
	"CANCEL":          Cancel,
	"STOP":            Cancel,
	"STATUS":          Status,
}

var prefixed = []struct {
	prefix string
	kind   Kind
}{
	{"DOWNLOAD:", Download},
	{"GET:", Download},
	{"DELETE:", Delete},
	{"DEL:", Delete},
}

// Parse decodes a control message. Matching is case-sensitive; trailing CR
// and LF are ignored. Unknown commands and commands with an empty file name
// are rejected.
func Parse(msg string) (Command, bool) {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return Command{}, false
	}
	if k, ok := exact[msg]; ok {
		return Command{Kind: k}, true
	}
	for _, p := range prefixed {
		if name, ok := strings.CutPrefix(msg, p.prefix); ok {
			if name == "" {
				return Command{}, false
			}
			return Command{Kind: p.kind, Arg: name}, true
		}
	}
	return Command{}, false
}

// LogControl is the logging state the dispatcher may flip directly.
type LogControl interface {
	StorageAvailable() bool
	FixType() uint8
	SetLogging(on bool)
}

// Link tracks per-connection state.
type Link interface {
	ResetMTU()
	SetMTU(n int)
}

// Dispatcher implements channel.Handler. Every method runs in the channel's
// callback goroutine and must return without doing storage I/O.
type Dispatcher struct {
	q          *queue.Queue
	link       Link
	logs       LogControl
	requireFix bool
	minFix     uint8
}

// NewDispatcher wires a dispatcher. When requireFix is set START_LOG is
// refused until the fix type reaches minFix.
func NewDispatcher(q *queue.Queue, link Link, logs LogControl, requireFix bool, minFix uint8) *Dispatcher {
	return &Dispatcher{q: q, link: link, logs: logs, requireFix: requireFix, minFix: minFix}
}

// HandleWrite processes one inbound control write.
func (d *Dispatcher) HandleWrite(b []byte) {
	cmd, ok := Parse(string(b))
	if !ok {
		util.Debug("[command] ignoring %q", b)
		return
	}
	switch cmd.Kind {
	case StartLog:
		if !d.logs.StorageAvailable() {
			util.Info("[command] START_LOG refused: no card")
			return
		}
		if fix := d.logs.FixType(); d.requireFix && fix < d.minFix {
			util.Info("[command] START_LOG refused: fix type %d < %d", fix, d.minFix)
			return
		}
		d.logs.SetLogging(true)
	case StopLog:
		d.logs.SetLogging(false)
	case List:
		d.q.Raise(queue.List, "")
	case Download:
		d.q.Raise(queue.Start, cmd.Arg)
	case Delete:
		d.q.Raise(queue.Delete, cmd.Arg)
	case Cancel:
		d.q.Raise(queue.Cancel, "")
	case Status:
		d.q.Raise(queue.Status, "")
	}
}

// HandleConnect resets per-link state for a new client.
func (d *Dispatcher) HandleConnect() {
	d.link.ResetMTU()
	util.Info("[command] client connected")
}

// HandleDisconnect cancels any transfer on the main loop.
func (d *Dispatcher) HandleDisconnect() {
	d.q.RaiseUrgentCancel()
	util.Info("[command] client disconnected")
}

// HandleMTU records a negotiated MTU.
func (d *Dispatcher) HandleMTU(n int) {
	d.link.SetMTU(n)
}
