package framer

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeNotifier struct {
	ready  bool
	failAt int
	frags  []string
}

func (n *fakeNotifier) Ready() bool { return n.ready }

func (n *fakeNotifier) Notify(b []byte) error {
	if n.failAt > 0 && len(n.frags)+1 == n.failAt {
		return errors.New("link lost")
	}
	n.frags = append(n.frags, string(b))
	return nil
}

// fixedMTU reports m as negotiated; zero means nothing was reported.
type fixedMTU int

func (m fixedMTU) NegotiatedMTU() (int, bool) { return int(m), m > 0 }

func TestSendFragments(t *testing.T) {
	tests := []struct {
		name      string
		mtu       int
		max       int
		text      string
		wantFrags []string
	}{
		{
			name:      "default mtu",
			mtu:       23,
			max:       400,
			text:      "FILES:gps_20250101_000000.bin:1234;COUNT:1",
			wantFrags: []string{"FILES:gps_20250101_0", "00000.bin:1234;COUNT", ":1"},
		},
		{
			name:      "large mtu capped by max fragment",
			mtu:       517,
			max:       10,
			text:      "START:a.bin:123456",
			wantFrags: []string{"START:a.bi", "n:123456"},
		},
		{
			name:      "no mtu reported uses max fragment",
			mtu:       0,
			max:       8,
			text:      "COMPLETE:1120:TIME:400",
			wantFrags: []string{"COMPLETE", ":1120:TI", "ME:400"},
		},
		{
			name:      "fits in one",
			mtu:       185,
			max:       400,
			text:      "STATUS:IDLE",
			wantFrags: []string{"STATUS:IDLE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{ready: true}
			var sleeps []time.Duration
			f := New(n, fixedMTU(tt.mtu), tt.max, 50*time.Millisecond)
			f.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

			f.Send(tt.text)

			if strings.Join(n.frags, "|") != strings.Join(tt.wantFrags, "|") {
				t.Errorf("fragments = %q, want %q", n.frags, tt.wantFrags)
			}
			if len(sleeps) != len(tt.wantFrags)-1 {
				t.Errorf("sleeps = %d, want one between each fragment (%d)", len(sleeps), len(tt.wantFrags)-1)
			}
			if strings.Join(n.frags, "") != tt.text {
				t.Error("fragments do not concatenate to the input")
			}
		})
	}
}

func TestSendNotReady(t *testing.T) {
	n := &fakeNotifier{}
	f := New(n, fixedMTU(23), 0, 0)
	f.Send("STATUS:IDLE")
	if len(n.frags) != 0 {
		t.Errorf("sent %q while not ready", n.frags)
	}
}

func TestSendStopsOnError(t *testing.T) {
	n := &fakeNotifier{ready: true, failAt: 2}
	f := New(n, fixedMTU(13), 0, 0)
	f.Send(strings.Repeat("x", 35))
	if len(n.frags) != 1 {
		t.Errorf("fragments after failure = %d, want 1", len(n.frags))
	}
}

func TestFragmentSize(t *testing.T) {
	if got := New(nil, fixedMTU(3), 400, 0).FragmentSize(); got != 1 {
		t.Errorf("FragmentSize() with tiny mtu = %d, want 1", got)
	}
	if got := New(nil, nil, 0, 0).FragmentSize(); got != DefaultMaxFragment {
		t.Errorf("FragmentSize() without mtu = %d", got)
	}
	if got := New(nil, fixedMTU(0), 0, 0).FragmentSize(); got != DefaultMaxFragment {
		t.Errorf("FragmentSize() before negotiation = %d, want %d", got, DefaultMaxFragment)
	}
}
