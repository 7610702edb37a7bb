package channel

import (
	"errors"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// WebSocket serves one client at /ws. Text frames carry commands and
// responses, binary frames carry telemetry.
type WebSocket struct {
	Addr string
	MTU  int // reported to the handler on connect, 0 keeps the default

	mu      sync.Mutex
	conn    *websocket.Conn
	server  *http.Server
	ln      net.Listener
	handler Handler
}

// NewWebSocket returns a channel listening on addr once started.
func NewWebSocket(addr string, mtu int) *WebSocket {
	return &WebSocket{Addr: addr, MTU: mtu}
}

// Start binds the listener and serves in the background.
func (w *WebSocket) Start(h Handler) error {
	ln, err := net.Listen("tcp", w.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleWS)
	w.handler = h
	w.ln = ln
	w.server = &http.Server{Handler: mux}
	log.Printf("[ws] listening on %s", ln.Addr())
	go func() {
		if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ws] serve: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address, useful when Addr used port 0.
func (w *WebSocket) ListenAddr() string {
	if w.ln == nil {
		return w.Addr
	}
	return w.ln.Addr().String()
}

func (w *WebSocket) handleWS(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		http.Error(rw, "client already connected", http.StatusConflict)
		return
	}
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.mu.Unlock()
		log.Printf("[ws] upgrade: %v", err)
		return
	}
	w.conn = conn
	w.mu.Unlock()

	log.Printf("[ws] client %s connected", r.RemoteAddr)
	safeCall("ws", w.handler.HandleConnect)
	if w.MTU > 0 {
		safeCall("ws", func() { w.handler.HandleMTU(w.MTU) })
	}

	go func() {
		defer func() {
			w.mu.Lock()
			w.conn = nil
			w.mu.Unlock()
			if err := conn.Close(); err != nil {
				log.Printf("warning: failed to close websocket: %v", err)
			}
			safeCall("ws", w.handler.HandleDisconnect)
		}()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				safeCall("ws", func() { w.handler.HandleWrite(data) })
			}
		}
	}()
}

// Ready reports whether a client is attached.
func (w *WebSocket) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Notify sends one text frame.
func (w *WebSocket) Notify(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// Publish sends one binary telemetry frame.
func (w *WebSocket) Publish(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Close stops the server and drops the client.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.mu.Unlock()
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}
