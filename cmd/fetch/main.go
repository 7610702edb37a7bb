// Fetch tool: lists, downloads and deletes log files over the websocket
// control channel. It speaks the same text protocol a phone app uses over BLE.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"GpsLogger/internal/client"
)

// session turns websocket text frames into whole responses.
type session struct {
	conn  *websocket.Conn
	frags chan string
	errc  chan error
	asm   client.Reassembler
	quiet time.Duration
}

func dial(addr string, quiet time.Duration) (*session, error) {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		return nil, err
	}
	s := &session{conn: conn, frags: make(chan string, 64), errc: make(chan error, 1), quiet: quiet}
	go s.readLoop()
	return s, nil
}

func (s *session) readLoop() {
	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.errc <- err
			return
		}
		// binary frames carry live telemetry
		if mt != websocket.TextMessage {
			continue
		}
		s.frags <- string(msg)
	}
}

func (s *session) send(cmd string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(cmd))
}

// next returns the next whole response. A response ends when another one
// starts or the link stays quiet for s.quiet.
func (s *session) next(timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-s.frags:
			if msg, ok := s.asm.Feed(f); ok {
				return msg, nil
			}
		case <-time.After(s.quiet):
			if msg, ok := s.asm.Flush(); ok {
				return msg, nil
			}
		case err := <-s.errc:
			return "", err
		case <-deadline:
			return "", errors.New("timed out waiting for device")
		}
	}
}

func (s *session) close() {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:10000", "device websocket address")
	list := flag.Bool("list", false, "list log files")
	get := flag.String("get", "", "download the named file")
	out := flag.String("o", "", "output path for -get (default: file name)")
	del := flag.String("delete", "", "delete the named file")
	status := flag.Bool("status", false, "query transfer status")
	timeout := flag.Duration("timeout", 10*time.Second, "max wait for each response")
	flag.Parse()

	s, err := dial(*addr, 300*time.Millisecond)
	if err != nil {
		log.Fatalf("connect %s: %v", *addr, err)
	}
	defer s.close()

	switch {
	case *list:
		err = runList(s, *timeout)
	case *get != "":
		path := *out
		if path == "" {
			path = *get
		}
		err = runGet(s, *get, path, *timeout)
	case *del != "":
		err = runDelete(s, *del, *timeout)
	case *status:
		err = runStatus(s, *timeout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[fetch] %v", err)
	}
}

func runList(s *session, timeout time.Duration) error {
	if err := s.send("LIST_FILES"); err != nil {
		return err
	}
	msg, err := s.next(timeout)
	if err != nil {
		return err
	}
	if e, ok := client.ParseError(msg); ok {
		return e
	}
	files, err := client.ParseFiles(msg)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%-32s %10d\n", f.Name, f.Size)
	}
	fmt.Printf("%d file(s)\n", len(files))
	return nil
}

func runGet(s *session, name, path string, timeout time.Duration) error {
	if err := s.send("DOWNLOAD:" + name); err != nil {
		return err
	}
	var d client.Download
	for !d.Done() {
		msg, err := s.next(timeout)
		if err != nil {
			return err
		}
		if _, err := d.Handle(msg); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, d.Data.Bytes(), 0o644); err != nil {
		return err
	}
	log.Printf("[fetch] %s: %d bytes in %d chunks, %d ms", d.Name, d.Size, d.Chunks, d.TimeMs)
	return nil
}

func runDelete(s *session, name string, timeout time.Duration) error {
	if err := s.send("DELETE:" + name); err != nil {
		return err
	}
	for {
		msg, err := s.next(timeout)
		if err != nil {
			return err
		}
		if e, ok := client.ParseError(msg); ok {
			return e
		}
		if msg == "DELETED:"+name {
			log.Printf("[fetch] deleted %s", name)
			return nil
		}
	}
}

func runStatus(s *session, timeout time.Duration) error {
	if err := s.send("STATUS"); err != nil {
		return err
	}
	msg, err := s.next(timeout)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
