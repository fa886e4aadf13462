package fader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"webdmx/internal/logger"
)

const (
	DefaultReconnectDelay = time.Second
	DefaultPollInterval   = 10 * time.Second
)

// Transport is the pub/sub connection the source drives. Lost fires when the
// connection established by the last Connect drops.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error
	Lost() <-chan error
	Close()
}

// Source keeps a subscription to the fader topic alive forever, reconnecting
// from scratch after any failure.
type Source struct {
	log            logger.Logger
	transport      Transport
	topic          string
	reconnectDelay time.Duration
	pollInterval   time.Duration

	restarts atomic.Int64
	dropped  atomic.Int64

	// Handlers deliver under RLock; a connection retires its generation
	// under Lock, so once listen returns nothing from it reaches the sink.
	live       sync.RWMutex
	generation uint64
}

// NewSource конструктор. Zero durations fall back to the defaults.
func NewSource(log logger.Logger, transport Transport, topic string, reconnectDelay, pollInterval time.Duration) *Source {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Source{
		log:            log,
		transport:      transport,
		topic:          topic,
		reconnectDelay: reconnectDelay,
		pollInterval:   pollInterval,
	}
}

// Restarts is the number of times the subscription had to be rebuilt.
func (s *Source) Restarts() int64 {
	return s.restarts.Load()
}

// Dropped is the number of events discarded as malformed.
func (s *Source) Dropped() int64 {
	return s.dropped.Load()
}

// Run delivers decoded events to sink until ctx is done. It never gives up on
// transport errors.
func (s *Source) Run(ctx context.Context, sink func(Event)) error {
	log := s.log.With(logger.Fields{"module": "fader"})
	defer s.transport.Close()

	for {
		err := s.listen(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.restarts.Add(1)
		log.Errorf("subscription to %q lost (%v), reconnecting in %v", s.topic, err, s.reconnectDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// nextGeneration waits for in-flight deliveries and starts a new generation.
func (s *Source) nextGeneration() uint64 {
	s.live.Lock()
	defer s.live.Unlock()
	s.generation++
	return s.generation
}

// listen runs one connection lifetime.
func (s *Source) listen(ctx context.Context, sink func(Event)) error {
	log := s.log.With(logger.Fields{"module": "fader"})

	gen := s.nextGeneration()
	// Anything delivered by an older connection is stale.
	defer s.nextGeneration()

	if err := s.transport.Connect(ctx); err != nil {
		return err
	}
	defer s.transport.Close()
	lost := s.transport.Lost()

	handler := func(payload []byte) {
		s.live.RLock()
		defer s.live.RUnlock()
		if s.generation != gen {
			log.Debug("dropping event from a stale subscription")
			return
		}
		ev, err := Decode(payload)
		if err != nil {
			s.dropped.Add(1)
			log.Errorf("event dropped: %v", err)
			return
		}
		sink(ev)
	}

	if err := s.transport.Subscribe(ctx, s.topic, handler); err != nil {
		return err
	}
	log.Infof("listening on %q", s.topic)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-lost:
			if err == nil {
				err = errors.New("connection closed")
			}
			return err
		case <-ticker.C:
			log.Debug("subscription idle")
		}
	}
}
