// Package controller talks to the lighting controller that drives fixtures.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"webdmx/internal/dmx"
	"webdmx/internal/logger"
)

// ErrTransport wraps every network failure towards the controller.
var ErrTransport = errors.New("controller: transport error")

// fetchCommand asks the sequencer to dump its current universe.
const fetchCommand = "X"

// LightingController accepts frames for transmission and reports the
// controller's current output.
type LightingController interface {
	Commit(ctx context.Context, frame dmx.Frame) error
	Fetch(ctx context.Context) (dmx.Frame, error)
}

// TCP drives a DMX sequencer reachable over TCP. Each operation uses its own
// short-lived connection.
type TCP struct {
	log     logger.Logger
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCP конструктор.
func NewTCP(log logger.Logger, address string, timeout time.Duration) *TCP {
	return &TCP{
		log:     log,
		address: address,
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

func (c *TCP) dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, c.address, err)
	}
	if c.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}
	return conn, nil
}

// Commit sends the raw universe.
func (c *TCP) Commit(ctx context.Context, frame dmx.Frame) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(frame[:]); err != nil {
		return fmt.Errorf("%w: send frame: %v", ErrTransport, err)
	}
	c.log.With(logger.Fields{"module": "controller"}).Debug("frame sent")
	return nil
}

// Fetch reads the sequencer's universe. The sequencer may keep the socket
// open after answering, so whatever the first read returns is the state;
// short answers are zero padded.
func (c *TCP) Fetch(ctx context.Context) (dmx.Frame, error) {
	var frame dmx.Frame

	conn, err := c.dial(ctx)
	if err != nil {
		return frame, err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, fetchCommand); err != nil {
		return frame, fmt.Errorf("%w: request state: %v", ErrTransport, err)
	}

	n, err := conn.Read(frame[:])
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		return frame, fmt.Errorf("%w: read state: %v", ErrTransport, err)
	}
	c.log.With(logger.Fields{"module": "controller"}).Debugf("state fetched (%d bytes)", n)
	return frame, nil
}

// Cached remembers the last committed frame so Fetch works for drivers that
// cannot read the universe back.
type Cached struct {
	next LightingController

	mu   sync.RWMutex
	last dmx.Frame
}

// NewCached wraps next. A nil next only records frames.
func NewCached(next LightingController) *Cached {
	return &Cached{next: next}
}

func (c *Cached) Commit(ctx context.Context, frame dmx.Frame) error {
	if c.next != nil {
		if err := c.next.Commit(ctx, frame); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.last = frame
	c.mu.Unlock()
	return nil
}

func (c *Cached) Fetch(_ context.Context) (dmx.Frame, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, nil
}
