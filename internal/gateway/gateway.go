// Package gateway owns the live lighting state and applies every mutation,
// whatever its source, through a single goroutine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webdmx/internal/controller"
	"webdmx/internal/dmx"
	"webdmx/internal/fader"
	"webdmx/internal/logger"
	"webdmx/internal/presets"
	"webdmx/internal/session"
)

// ErrStopped is returned for requests submitted after Run has returned.
var ErrStopped = errors.New("gateway: stopped")

const (
	DefaultFadeStages   = 50
	DefaultFadeInterval = 30 * time.Millisecond
)

// PresetStore is the preset persistence the core reads and writes.
type PresetStore interface {
	List(ctx context.Context) ([]presets.Preset, error)
	Load(ctx context.Context, name string) ([]int, bool, error)
	Save(ctx context.Context, name string, value []int) error
}

// Hub fans messages out to sessions.
type Hub interface {
	Register(s session.Session)
	Unregister(s session.Session)
	Broadcast(msg interface{}, exclude string) []string
	SendTo(s session.Session, msg interface{}) error
}

// Options tunes the core. Zero values fall back to the defaults.
type Options struct {
	Mask         dmx.DimmerMask
	FadeStages   int
	FadeInterval time.Duration
}

type request struct {
	name string
	fn   func(ctx context.Context) error
	err  error
	done chan struct{}
}

// Core is the single writer of the channel state. Requests are executed one
// at a time in arrival order: apply, commit to the controller, broadcast. A
// fade occupies the writer for its whole duration, so requests arriving
// meanwhile queue behind it.
type Core struct {
	log   logger.Logger
	ctrl  controller.LightingController
	store PresetStore
	hub   Hub
	opts  Options

	requests chan *request
	stopped  chan struct{}

	// owned by the Run goroutine
	state dmx.ChannelState
}

// New конструктор.
func New(log logger.Logger, ctrl controller.LightingController, store PresetStore, hub Hub, opts Options) *Core {
	if opts.Mask == nil {
		opts.Mask = dmx.DefaultDimmerMask()
	}
	if opts.FadeStages <= 0 {
		opts.FadeStages = DefaultFadeStages
	}
	if opts.FadeInterval <= 0 {
		opts.FadeInterval = DefaultFadeInterval
	}
	return &Core{
		log:      log,
		ctrl:     ctrl,
		store:    store,
		hub:      hub,
		opts:     opts,
		requests: make(chan *request),
		stopped:  make(chan struct{}),
		state:    dmx.NewState(),
	}
}

func (c *Core) logger() *logger.Log {
	return c.log.With(logger.Fields{"module": "gateway"})
}

// Run initialises the state from the controller and then serves requests
// until ctx is done.
func (c *Core) Run(ctx context.Context) error {
	defer close(c.stopped)

	if frame, err := c.ctrl.Fetch(ctx); err != nil {
		c.logger().Warnf("controller state unavailable, starting dark: %v", err)
	} else {
		c.state = dmx.FromFrame(frame, dmx.MaxValue)
	}
	c.logger().Info("gateway ready")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-c.requests:
			r.err = r.fn(ctx)
			if r.err != nil {
				c.logger().Warnf("%s: %v", r.name, r.err)
			}
			close(r.done)
		}
	}
}

// do hands fn to the writer goroutine and waits for it to finish.
func (c *Core) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r := &request{name: name, fn: fn, done: make(chan struct{})}

	select {
	case c.requests <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}

	select {
	case <-r.done:
		return r.err
	case <-c.stopped:
		// Run may have finished r right before stopping.
		select {
		case <-r.done:
			return r.err
		default:
			return ErrStopped
		}
	}
}

// commit renders the current state and sends it to the controller. A
// controller failure is logged; the state still stands.
func (c *Core) commit(ctx context.Context) {
	if err := c.ctrl.Commit(ctx, dmx.Render(c.state, c.opts.Mask)); err != nil {
		c.logger().Errorf("commit failed: %v", err)
	}
}

func (c *Core) broadcastState(exclude string) {
	c.hub.Broadcast(stateMessage(c.state.Channels, c.state.Master), exclude)
}

// Join registers s and sends it the current state, ahead of any later
// broadcast.
func (c *Core) Join(ctx context.Context, s session.Session) error {
	return c.do(ctx, "join", func(context.Context) error {
		c.hub.Register(s)
		return c.hub.SendTo(s, stateMessage(c.state.Channels, c.state.Master))
	})
}

// Leave unregisters s. It does not go through the writer so it works even
// after Run has stopped.
func (c *Core) Leave(s session.Session) {
	c.hub.Unregister(s)
}

// Snapshot returns a deep copy of the live state.
func (c *Core) Snapshot(ctx context.Context) (dmx.ChannelState, error) {
	var out dmx.ChannelState
	err := c.do(ctx, "snapshot", func(context.Context) error {
		out = c.state.Clone()
		return nil
	})
	return out, err
}

// Change replaces the whole vector and master and notifies every session
// but the origin.
func (c *Core) Change(ctx context.Context, origin string, values []int, master int) error {
	return c.do(ctx, "change", func(ctx context.Context) error {
		c.state = dmx.ChannelState{Channels: dmx.Normalize(values), Master: clampMaster(master)}
		c.commit(ctx)
		c.broadcastState(origin)
		return nil
	})
}

// Fader applies a panel event: mapped channels and the master are replaced.
func (c *Core) Fader(ctx context.Context, ev fader.Event) error {
	return c.do(ctx, "fader", func(ctx context.Context) error {
		c.state.Channels = dmx.ApplyPartial(c.state.Channels, ev.Updates())
		c.state.Master = clampMaster(ev.Master())
		c.commit(ctx)
		c.broadcastState("")
		return nil
	})
}

// Load combines the named preset with the live state. Presets carry no
// master, so the master is reset to full. A missing preset leaves the state
// untouched and reports found == false.
func (c *Core) Load(ctx context.Context, name string, mode dmx.Mode) (found bool, err error) {
	if !mode.Valid() {
		return false, fmt.Errorf("unknown preset mode %q", mode)
	}
	err = c.do(ctx, string(mode), func(ctx context.Context) error {
		value, ok, err := c.store.Load(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			c.logger().Warnf("preset %q not found", name)
			return nil
		}
		found = true

		c.state = dmx.ChannelState{
			Channels: dmx.Merge(mode, c.state.Channels, value),
			Master:   dmx.MaxValue,
		}
		c.commit(ctx)
		c.broadcastState("")
		return nil
	})
	return found, err
}

// Save stores the controller's current output under name and answers the
// requester with the outcome.
func (c *Core) Save(ctx context.Context, origin session.Session, name string) (bool, error) {
	var ok bool
	err := c.do(ctx, "save", func(ctx context.Context) error {
		err := c.save(ctx, name)
		ok = err == nil
		if sendErr := c.hub.SendTo(origin, SaveMessage{Type: TypeSave, Value: ok}); sendErr != nil {
			c.logger().Warnf("save reply to %s failed: %v", origin.ID(), sendErr)
		}
		return err
	})
	return ok, err
}

func (c *Core) save(ctx context.Context, name string) error {
	frame, err := c.ctrl.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch controller state: %w", err)
	}
	return c.store.Save(ctx, name, frame.Ints())
}

// Presets answers the requester with every stored preset.
func (c *Core) Presets(ctx context.Context, origin session.Session) error {
	return c.do(ctx, "presets", func(ctx context.Context) error {
		list, err := c.store.List(ctx)
		if err != nil {
			// the client still gets an answer
			if sendErr := c.hub.SendTo(origin, PresetsMessage{Type: TypePresets, Value: []presets.Preset{}}); sendErr != nil {
				c.logger().Warnf("presets reply to %s failed: %v", origin.ID(), sendErr)
			}
			return err
		}
		return c.hub.SendTo(origin, PresetsMessage{Type: TypePresets, Value: list})
	})
}

// Fade moves the live state to target over stages frames, committing one
// frame per interval. The shared state only advances to target once the
// last frame is out. target is padded or cut to a full universe like a
// change; stages <= 0 uses the configured default.
func (c *Core) Fade(ctx context.Context, target []int, stages int) error {
	if stages <= 0 {
		stages = c.opts.FadeStages
	}
	target = dmx.Normalize(target)
	return c.do(ctx, "fade", func(ctx context.Context) error {
		frames, err := dmx.Fade(c.state.Channels, target, stages)
		if err != nil {
			return err
		}

		for _, frame := range frames {
			step := dmx.ChannelState{Channels: frame, Master: c.state.Master}
			if err := c.ctrl.Commit(ctx, dmx.Render(step, c.opts.Mask)); err != nil {
				c.logger().Errorf("fade frame commit failed: %v", err)
			}
			if err := sleep(ctx, c.opts.FadeInterval); err != nil {
				return err
			}
		}

		c.state.Channels = frames[len(frames)-1]
		c.broadcastState("")
		return nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clampMaster(v int) int {
	switch {
	case v < 0:
		return 0
	case v > dmx.MaxValue:
		return dmx.MaxValue
	}
	return v
}
