// Package fader subscribes to the hardware fader panel and turns its events
// into partial channel updates.
package fader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"webdmx/internal/dmx"
)

// Faders is the number of values carried by one panel event.
const Faders = 8

// masterFader is the panel slot driving the master dimmer.
const masterFader = 7

// ErrDecode marks a payload that cannot be turned into an Event.
var ErrDecode = errors.New("fader: malformed event")

// ChannelMap routes faders 0..6 to their channels. One fader may drive
// several channels at once.
var ChannelMap = [masterFader][]int{
	{96},
	{97},
	{98},
	{106, 124},
	{107, 125},
	{108, 126},
	{109, 127},
}

// Event is one decoded panel snapshot.
type Event struct {
	Values [Faders]int
}

// Decode parses "<prefix>:[v0,...,v7]". The prefix is ignored and may be
// absent. Values are truncated to integers and clamped to [0,255].
func Decode(payload []byte) (Event, error) {
	var ev Event

	body := payload
	if _, after, found := bytes.Cut(payload, []byte(":")); found {
		body = after
	}

	var raw []float64
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) != Faders {
		return ev, fmt.Errorf("%w: got %d values, want %d", ErrDecode, len(raw), Faders)
	}

	for i, v := range raw {
		n := int(v)
		switch {
		case n < 0:
			n = 0
		case n > dmx.MaxValue:
			n = dmx.MaxValue
		}
		ev.Values[i] = n
	}
	return ev, nil
}

// Updates returns the full replacement for every mapped channel.
func (e Event) Updates() map[int]int {
	out := make(map[int]int, Faders+4)
	for f, channels := range ChannelMap {
		for _, ch := range channels {
			out[ch] = e.Values[f]
		}
	}
	return out
}

// Master returns the master dimmer carried by the event.
func (e Event) Master() int {
	return e.Values[masterFader]
}
