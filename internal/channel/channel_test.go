package channel

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"GpsLogger/internal/device"
)

type event struct {
	kind string
	data string
	n    int
}

type chanHandler struct{ ev chan event }

func newHandler() *chanHandler { return &chanHandler{ev: make(chan event, 16)} }

func (h *chanHandler) HandleWrite(b []byte) { h.ev <- event{kind: "write", data: string(b)} }
func (h *chanHandler) HandleConnect()       { h.ev <- event{kind: "connect"} }
func (h *chanHandler) HandleDisconnect()    { h.ev <- event{kind: "disconnect"} }
func (h *chanHandler) HandleMTU(n int)      { h.ev <- event{kind: "mtu", n: n} }

func (h *chanHandler) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-h.ev:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler event")
	}
	return event{}
}

func TestWebSocketSession(t *testing.T) {
	ws := NewWebSocket("127.0.0.1:0", 0)
	h := newHandler()
	if err := ws.Start(h); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer ws.Close()

	if ws.Ready() {
		t.Fatal("Ready() before any client")
	}
	if err := ws.Notify([]byte("x")); err != ErrNotConnected {
		t.Errorf("Notify() without client = %v", err)
	}
	if err := ws.Publish([]byte{1}); err != nil {
		t.Errorf("Publish() without client = %v", err)
	}

	url := "ws://" + ws.ListenAddr() + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if e := h.next(t); e.kind != "connect" {
		t.Fatalf("first event = %v", e)
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte("LIST")); err != nil {
		t.Fatal(err)
	}
	if e := h.next(t); e.kind != "write" || e.data != "LIST" {
		t.Fatalf("event = %v, want write LIST", e)
	}

	if err := ws.Notify([]byte("FILES:COUNT:0")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if err := ws.Publish([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	mt, msg, err := c.ReadMessage()
	if err != nil || mt != websocket.TextMessage || string(msg) != "FILES:COUNT:0" {
		t.Errorf("ReadMessage() = %d %q %v", mt, msg, err)
	}
	mt, msg, err = c.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || len(msg) != 2 {
		t.Errorf("ReadMessage() = %d %x %v", mt, msg, err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second client accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second client response = %v", resp)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if e := h.next(t); e.kind != "disconnect" {
		t.Fatalf("event = %v, want disconnect", e)
	}
	if ws.Ready() {
		t.Error("Ready() after disconnect")
	}
}

func TestWebSocketReportsMTU(t *testing.T) {
	ws := NewWebSocket("127.0.0.1:0", 247)
	h := newHandler()
	if err := ws.Start(h); err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws://"+ws.ListenAddr()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	h.next(t)
	if e := h.next(t); e.kind != "mtu" || e.n != 247 {
		t.Errorf("event = %+v, want mtu 247", e)
	}
}

type pipeDevice struct {
	mu      sync.Mutex
	in      chan string
	written []string
	closed  chan struct{}
}

func newPipeDevice() *pipeDevice {
	return &pipeDevice{in: make(chan string, 4), closed: make(chan struct{})}
}

func (p *pipeDevice) ReadLine(timeout time.Duration) (string, error) {
	select {
	case l := <-p.in:
		return l, nil
	case <-p.closed:
		return "", device.ErrReadTimeout
	case <-time.After(timeout):
		return "", device.ErrReadTimeout
	}
}

func (p *pipeDevice) WriteLine(s string) error {
	p.mu.Lock()
	p.written = append(p.written, s)
	p.mu.Unlock()
	return nil
}

func (p *pipeDevice) Close() error { close(p.closed); return nil }

func TestSerialChannel(t *testing.T) {
	dev := newPipeDevice()
	s := NewSerial(dev, 0)
	h := newHandler()
	if err := s.Start(h); err != nil {
		t.Fatal(err)
	}
	if e := h.next(t); e.kind != "connect" {
		t.Fatalf("event = %v", e)
	}
	if !s.Ready() {
		t.Fatal("Ready() = false")
	}

	dev.in <- "STATUS\r\n"
	dev.in <- "   \n"
	dev.in <- "LIST\n"
	if e := h.next(t); e.data != "STATUS" {
		t.Errorf("write = %q", e.data)
	}
	if e := h.next(t); e.data != "LIST" {
		t.Errorf("write = %q", e.data)
	}

	if err := s.Notify([]byte("STATUS:IDLE")); err != nil {
		t.Fatal(err)
	}
	if err := s.Publish([]byte{0x01, 0xfe}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Ready() {
		t.Error("Ready() after Close")
	}
	if err := s.Notify([]byte("x")); err != ErrNotConnected {
		t.Errorf("Notify() after Close = %v", err)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	want := []string{"STATUS:IDLE", "TLM:01fe"}
	if strings.Join(dev.written, "|") != strings.Join(want, "|") {
		t.Errorf("written = %q, want %q", dev.written, want)
	}
}

func TestParseUUIDs(t *testing.T) {
	svc, cfg, tlm, file, err := ParseUUIDs()
	if err != nil {
		t.Fatalf("ParseUUIDs() error = %v", err)
	}
	got := []string{svc.String(), cfg.String(), tlm.String(), file.String()}
	want := []string{ServiceUUID, ConfigCharUUID, TelemetryUUID, FileTransferUUID}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("uuid %d = %s, want %s", i, got[i], want[i])
		}
	}
}
