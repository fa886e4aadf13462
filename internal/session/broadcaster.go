// Package session tracks connected control clients and fans messages out to
// them.
package session

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"webdmx/internal/logger"
)

var (
	// ErrClosed is returned by Send on a session that has gone away.
	ErrClosed = errors.New("session: closed")
	// ErrQueueFull is returned when a slow session cannot take more messages.
	ErrQueueFull = errors.New("session: send queue full")
)

// Session is one connected client. Send must preserve call order.
type Session interface {
	ID() string
	Send(data []byte) error
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// Broadcaster owns the membership set.
type Broadcaster struct {
	log logger.Logger

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewBroadcaster конструктор.
func NewBroadcaster(log logger.Logger) *Broadcaster {
	return &Broadcaster{
		log:      log,
		sessions: make(map[string]Session),
	}
}

// Register adds s to the membership set.
func (b *Broadcaster) Register(s Session) {
	b.mu.Lock()
	b.sessions[s.ID()] = s
	n := len(b.sessions)
	b.mu.Unlock()
	b.log.With(logger.Fields{"module": "session", "session": s.ID()}).Infof("client connected (%d clients)", n)
}

// Unregister removes s. Calling it more than once is harmless.
func (b *Broadcaster) Unregister(s Session) {
	b.mu.Lock()
	current, ok := b.sessions[s.ID()]
	if ok && current == s {
		delete(b.sessions, s.ID())
	}
	n := len(b.sessions)
	b.mu.Unlock()
	if ok {
		b.log.With(logger.Fields{"module": "session", "session": s.ID()}).Infof("discarding client (%d clients)", n)
	}
}

// Count returns the number of registered sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Broadcast sends msg to every member except the one with ID exclude. A
// failing member never stops delivery to the others; failed members are
// removed once the iteration is done and their IDs are returned.
func (b *Broadcaster) Broadcast(msg interface{}, exclude string) []string {
	log := b.log.With(logger.Fields{"module": "session"})

	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("failed to marshal broadcast message: %v", err)
		return nil
	}

	b.mu.RLock()
	members := make([]Session, 0, len(b.sessions))
	for id, s := range b.sessions {
		if id != exclude {
			members = append(members, s)
		}
	}
	b.mu.RUnlock()

	var failed []Session
	for _, s := range members {
		log.Debugf("broadcasting frame to: %s", s.ID())
		if err := s.Send(data); err != nil {
			log.Warnf("broadcast to %s failed: %v", s.ID(), err)
			failed = append(failed, s)
		}
	}

	ids := make([]string, 0, len(failed))
	for _, s := range failed {
		b.Unregister(s)
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
		ids = append(ids, s.ID())
	}
	return ids
}

// SendTo delivers msg to a single session.
func (b *Broadcaster) SendTo(s Session, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Send(data)
}
