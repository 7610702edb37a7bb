// Package queue implements the deferred command queue that hands requests
// from channel callbacks to the main loop.
//
// Raise is safe from any goroutine and never blocks. DrainOne must only be
// called from the main loop. Each kind has one flag and one argument slot, so
// a second request of the same kind before a drain overwrites the first.
package queue

import "sync/atomic"

// Kind identifies a deferred request. Lower values drain first.
type Kind int

const (
	List Kind = iota
	Start
	Delete
	Cancel
	Status
	numKinds
)

func (k Kind) String() string {
	switch k {
	case List:
		return "list"
	case Start:
		return "start"
	case Delete:
		return "delete"
	case Cancel:
		return "cancel"
	case Status:
		return "status"
	}
	return "unknown"
}

// Request is one drained command.
type Request struct {
	Kind Kind
	Arg  string
}

type slot struct {
	pending atomic.Bool
	arg     atomic.Pointer[string]
}

// Queue holds one slot per kind plus the urgent-cancel bit raised on disconnect.
type Queue struct {
	slots  [numKinds]slot
	urgent atomic.Bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Raise records a request of kind k. The argument is published before the
// flag so a drain that observes the flag also observes the argument.
func (q *Queue) Raise(k Kind, arg string) {
	if k < 0 || k >= numKinds {
		return
	}
	s := &q.slots[k]
	s.arg.Store(&arg)
	s.pending.Store(true)
}

// RaiseUrgentCancel requests a cancel that drains ahead of every other kind.
func (q *Queue) RaiseUrgentCancel() {
	q.urgent.Store(true)
}

// DrainOne clears and returns the highest priority pending request.
func (q *Queue) DrainOne() (Request, bool) {
	if q.urgent.CompareAndSwap(true, false) {
		// an ordinary cancel raised alongside is now redundant
		q.slots[Cancel].pending.Store(false)
		return Request{Kind: Cancel}, true
	}
	for k := Kind(0); k < numKinds; k++ {
		s := &q.slots[k]
		if !s.pending.CompareAndSwap(true, false) {
			continue
		}
		var arg string
		if p := s.arg.Load(); p != nil {
			arg = *p
		}
		return Request{Kind: k, Arg: arg}, true
	}
	return Request{}, false
}

// Pending returns the kinds currently raised, in drain order.
func (q *Queue) Pending() []Kind {
	var out []Kind
	if q.urgent.Load() {
		out = append(out, Cancel)
	}
	for k := Kind(0); k < numKinds; k++ {
		if q.slots[k].pending.Load() {
			if k == Cancel && q.urgent.Load() {
				continue
			}
			out = append(out, k)
		}
	}
	return out
}
