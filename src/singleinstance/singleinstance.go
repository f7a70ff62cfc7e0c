// Package singleinstance keeps two autopilots from driving the same
// keyboard at once.
package singleinstance

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

const (
	defaultPort  = 49560
	residentHost = "127.0.0.1"
)

var ErrAlreadyRunning = errors.New("another autopilot is already running")

// Lock is held for as long as the run lasts.
type Lock struct {
	ln net.Listener
}

// Port returns the configured lock port. SINGLEINSTANCE_PORT overrides the
// default and is clamped to [1024, 65535].
func Port() int {
	port := defaultPort
	if v := os.Getenv("SINGLEINSTANCE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	if port < 1024 {
		port = 1024
	}
	if port > 65535 {
		port = 65535
	}
	return port
}

// Acquire claims the loopback port. A busy port means a resident exists.
func Acquire(port int) (*Lock, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(residentHost, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w (port %d busy): %v", ErrAlreadyRunning, port, err)
	}
	return &Lock{ln: ln}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
