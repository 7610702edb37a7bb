package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"GpsLogger/internal/channel"
	"GpsLogger/internal/client"
	"GpsLogger/internal/model"
	"GpsLogger/internal/parser"
	"GpsLogger/internal/stats"
	"GpsLogger/internal/storage"
)

type fakeChannel struct {
	mu      sync.Mutex
	ready   bool
	frags   []string
	packets [][]byte
}

func (c *fakeChannel) Start(channel.Handler) error { return nil }
func (c *fakeChannel) Close() error                { return nil }

func (c *fakeChannel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeChannel) Notify(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frags = append(c.frags, string(b))
	return nil
}

func (c *fakeChannel) Publish(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), b...))
	return nil
}

// messages reassembles and clears everything notified so far.
func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	frags := c.frags
	c.frags = nil
	c.mu.Unlock()

	var r client.Reassembler
	var out []string
	for _, f := range frags {
		if m, ok := r.Feed(f); ok {
			out = append(out, m)
		}
	}
	if m, ok := r.Flush(); ok {
		out = append(out, m)
	}
	return out
}

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func newTestLogger(t *testing.T, root string) (*Logger, *fakeChannel) {
	t.Helper()
	cfg := &model.Config{}
	cfg.Storage.Root = root
	cfg.Logging.RequireFix = true
	cfg.ApplyDefaults()
	ch := &fakeChannel{ready: true}
	l := NewLogger(cfg, storage.NewDir(root), ch, Sources{})
	l.Framer.Sleep = func(time.Duration) {}
	return l, ch
}

func write(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", []byte("abc"))
	write(t, root, "b.txt", []byte("hello"))
	write(t, root, "skip.jpg", []byte("x"))
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("LIST_FILES"))
	l.Step(t0)

	got := ch.messages()
	if len(got) != 1 || got[0] != "FILES:a.bin:3;b.txt:5;COUNT:2" {
		t.Fatalf("messages = %q", got)
	}
	files, err := client.ParseFiles(got[0])
	if err != nil || len(files) != 2 {
		t.Errorf("ParseFiles() = %v, %v", files, err)
	}
}

func TestNoCard(t *testing.T) {
	l, ch := newTestLogger(t, filepath.Join(t.TempDir(), "unmounted"))
	for _, cmd := range []string{"LIST", "GET:a.bin", "DEL:a.bin"} {
		l.Dispatch.HandleWrite([]byte(cmd))
		l.Step(t0)
	}
	got := ch.messages()
	want := []string{"ERROR:NO_SD_CARD", "ERROR:NO_SD_CARD", "ERROR:NO_SD_CARD"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %q, want %q", got, want)
	}
}

func TestDownloadEndToEnd(t *testing.T) {
	root := t.TempDir()
	data := bytes.Repeat([]byte("0123456789abcdef"), 70) // 1120 bytes
	write(t, root, "gps_20250601_100000.bin", data)
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("DOWNLOAD:gps_20250601_100000.bin"))
	var dl client.Download
	for ms := 0; ms <= 1000 && !dl.Done(); ms += 5 {
		l.Step(at(ms))
		for _, m := range ch.messages() {
			if _, err := dl.Handle(m); err != nil {
				t.Fatalf("Handle(%.30q) error = %v", m, err)
			}
		}
	}
	if !dl.Done() {
		t.Fatal("download did not complete")
	}
	if !bytes.Equal(dl.Data.Bytes(), data) {
		t.Error("downloaded bytes differ")
	}
	if dl.Chunks != 3 || dl.TimeMs != 400 {
		t.Errorf("chunks = %d time = %dms, want 3 and 400", dl.Chunks, dl.TimeMs)
	}
	if l.Engine.Active() {
		t.Error("engine still active")
	}
}

func TestStatusDuringTransfer(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", make([]byte, 1000))
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("STATUS"))
	l.Step(t0)
	l.Dispatch.HandleWrite([]byte("GET:a.bin"))
	l.Step(t0)
	l.Step(at(100))
	ch.messages()

	l.Dispatch.HandleWrite([]byte("STATUS"))
	l.Step(at(150))
	got := ch.messages()
	if len(got) != 1 || got[0] != "STATUS:ACTIVE:a.bin:40" {
		t.Errorf("messages = %q", got)
	}
}

func TestDisconnectCancelsTransfer(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", make([]byte, 5000))
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("GET:a.bin"))
	l.Step(t0)
	l.Step(at(100))
	ch.messages()

	ch.mu.Lock()
	ch.ready = false
	ch.mu.Unlock()
	l.Dispatch.HandleDisconnect()
	l.Step(at(150))

	if l.Engine.Active() {
		t.Fatal("transfer still active after disconnect")
	}
	if got := ch.messages(); len(got) != 0 {
		t.Errorf("sent %q to a disconnected client", got)
	}

	ch.mu.Lock()
	ch.ready = true
	ch.mu.Unlock()
	l.Dispatch.HandleConnect()
	if l.Engine.MTU() != 23 {
		t.Errorf("MTU after reconnect = %d", l.Engine.MTU())
	}
}

func TestCancelCommand(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", make([]byte, 5000))
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("GET:a.bin"))
	l.Step(t0)
	l.Dispatch.HandleWrite([]byte("CANCEL_TRANSFER"))
	l.Step(at(10))

	got := ch.messages()
	if len(got) != 2 || got[1] != "CANCELLED:a.bin" {
		t.Errorf("messages = %q", got)
	}
}

func TestDeleteFile(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", make([]byte, 5000))
	write(t, root, "b.bin", []byte{1})
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("DELETE:b.bin"))
	l.Step(t0)
	l.Dispatch.HandleWrite([]byte("DEL:b.bin"))
	l.Step(at(1))
	if got := ch.messages(); strings.Join(got, "|") != "DELETED:b.bin|ERROR:FILE_NOT_FOUND:b.bin" {
		t.Errorf("messages = %q", got)
	}

	l.Dispatch.HandleWrite([]byte("GET:a.bin"))
	l.Step(at(2))
	l.Dispatch.HandleWrite([]byte("DEL:a.bin"))
	l.Step(at(3))
	got := ch.messages()
	want := []string{"START:a.bin:5000", "CANCELLED:a.bin", "DELETED:a.bin"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(root, "a.bin")); !os.IsNotExist(err) {
		t.Errorf("a.bin still present: %v", err)
	}
}

func fix(sec int, fixType uint8) model.GpsData {
	return model.GpsData{
		Time:    t0.Add(time.Duration(sec) * time.Second),
		Lat:     21.0285,
		Lon:     105.8048,
		FixType: fixType,
		Sats:    8,
	}
}

func TestLoggingLifecycle(t *testing.T) {
	root := t.TempDir()
	l, ch := newTestLogger(t, root)

	l.Dispatch.HandleWrite([]byte("START_LOG"))
	if l.Logging() {
		t.Fatal("logging started without a fix")
	}

	l.fixes <- fix(0, 3)
	l.Step(at(0))
	if len(ch.packets) != 1 || len(ch.packets[0]) != parser.PacketSize {
		t.Fatalf("published %d packets", len(ch.packets))
	}

	l.Dispatch.HandleWrite([]byte("START_LOG"))
	if !l.Logging() {
		t.Fatal("START_LOG refused with a 3D fix")
	}
	l.fixes <- fix(1, 3)
	l.Step(at(1000))
	l.fixes <- fix(2, 3)
	l.Step(at(2000))

	name := storage.LogName(t0)
	if l.logFile == nil || l.logFile.Name() != name {
		t.Fatalf("log file = %v, want %s", l.logFile, name)
	}

	l.Dispatch.HandleWrite([]byte("DEL:" + name))
	l.Step(at(2001))
	if got := ch.messages(); len(got) != 1 || got[0] != "ERROR:DELETE_FAILED:"+name {
		t.Errorf("delete of live log = %q", got)
	}

	l.Dispatch.HandleWrite([]byte("STOP_LOG"))
	l.Step(at(2500))
	if l.logFile != nil {
		t.Fatal("log file still open after STOP_LOG")
	}

	b, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte(storage.LogHeader)) {
		t.Fatalf("missing header: %q", b[:min(len(b), 16)])
	}
	recs := b[len(storage.LogHeader):]
	if len(recs) != 2*parser.PacketSize {
		t.Fatalf("record bytes = %d, want %d", len(recs), 2*parser.PacketSize)
	}
	for i := 0; i < 2; i++ {
		p, err := parser.DecodePacket(recs[i*parser.PacketSize:])
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if want := uint32(t0.Unix()) + uint32(i+1); p.Timestamp != want {
			t.Errorf("record %d timestamp = %d, want %d", i, p.Timestamp, want)
		}
	}
}

func TestStatsRoll(t *testing.T) {
	root := t.TempDir()
	l, _ := newTestLogger(t, root)
	st, err := stats.OpenStore(filepath.Join(root, "perf.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	l.Stats = st
	l.resetInterval = time.Second

	l.Step(at(0))
	l.fixes <- fix(0, 3)
	l.Step(at(100))
	l.fixes <- fix(1, 3)
	l.Step(at(300))
	l.Step(at(1000))

	snap, ok, err := st.Latest()
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if snap.Packets != 2 || snap.MinDeltaMs != 200 {
		t.Errorf("snapshot = %+v", snap)
	}
	if l.perf.Packets() != 0 {
		t.Errorf("window not reset: %d packets", l.perf.Packets())
	}
}

func TestStorageAvailableIsCachedByStep(t *testing.T) {
	root := filepath.Join(t.TempDir(), "card")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	l, _ := newTestLogger(t, root)
	if !l.StorageAvailable() {
		t.Fatal("StorageAvailable() = false with the card mounted")
	}

	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if !l.StorageAvailable() {
		t.Error("StorageAvailable() changed without a main loop step")
	}
	l.Step(t0)
	if l.StorageAvailable() {
		t.Error("StorageAvailable() = true after the card was removed")
	}

	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	l.Step(at(5))
	if !l.StorageAvailable() {
		t.Error("StorageAvailable() = false after the card came back")
	}
}

func TestChunkStepPacing(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", bytes.Repeat([]byte{0xab}, 400))
	l, ch := newTestLogger(t, root)
	var slept time.Duration
	l.Framer.Sleep = func(d time.Duration) { slept += d }
	l.Dispatch.HandleConnect()

	l.Dispatch.HandleWrite([]byte("DOWNLOAD:a.bin"))
	l.Step(t0)
	ch.messages()
	slept = 0

	l.Step(at(100))
	ch.mu.Lock()
	n := len(ch.frags)
	ch.mu.Unlock()
	got := ch.messages()
	if len(got) != 1 || !strings.HasPrefix(got[0], "CHUNK:") {
		t.Fatalf("messages = %.40q", got)
	}
	if n != 3 {
		t.Errorf("chunk sent as %d notifications, want 3", n)
	}
	if slept > 100*time.Millisecond {
		t.Errorf("step slept %v, want at most 100ms", slept)
	}
}

type countingGps struct{ skipped uint64 }

func (g *countingGps) Read(chan<- model.GpsData) (func(), error) { return func() {}, nil }
func (g *countingGps) Skipped() uint64                           { return g.skipped }

func TestSkippedFixesReachPerf(t *testing.T) {
	root := t.TempDir()
	cfg := &model.Config{}
	cfg.Storage.Root = root
	cfg.ApplyDefaults()
	gps := &countingGps{skipped: 2}
	l := NewLogger(cfg, storage.NewDir(root), &fakeChannel{ready: true}, Sources{Gps: gps})

	l.Step(t0)
	if s := l.perf.Snapshot(t0); s.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", s.Skipped)
	}
	l.Step(at(5))
	gps.skipped = 5
	l.Step(at(10))
	if s := l.perf.Snapshot(at(10)); s.Skipped != 5 {
		t.Errorf("skipped = %d, want 5", s.Skipped)
	}
}
