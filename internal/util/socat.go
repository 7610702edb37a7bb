// Package util provides helpers for virtual serial management using socat.
package util

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
)

// VirtualSerial manages socat processes that link PTY pairs, so simulators
// and the logger can talk without hardware.
type VirtualSerial struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool
}

// NewVirtualSerial initializes an empty manager.
func NewVirtualSerial() *VirtualSerial {
	return &VirtualSerial{}
}

// PairArgs returns the socat arguments linking left and right.
func PairArgs(left, right string) []string {
	return []string{
		"-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	}
}

// CreatePair starts a socat process that links two PTYs (bidirectional).
func (m *VirtualSerial) CreatePair(left, right string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("virtual serial manager closed")
	}

	cmd := exec.Command("socat", PairArgs(left, right)...)
	cmd.Stdout = log.Writer()
	cmd.Stderr = log.Writer()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	log.Printf("[virt-serial] socat pid=%d: %s <-> %s", cmd.Process.Pid, left, right)

	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)
	return nil
}

// Cleanup stops all socat processes and removes created links.
func (m *VirtualSerial) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			log.Printf("[virt-serial] warning: kill pid=%d: %v", cmd.Process.Pid, err)
		}
		_ = cmd.Wait()
	}
	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			if err := os.Remove(path); err != nil {
				log.Printf("[virt-serial] warning: remove %s: %v", path, err)
			}
		}
	}
	if len(m.cmds) > 0 {
		log.Printf("[virt-serial] cleanup complete (%d pairs)", len(m.cmds))
	}
}
