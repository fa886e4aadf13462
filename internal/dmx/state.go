// Package dmx holds the lighting state model: the 512 channel vector, the
// master dimmer rule and the fade interpolation.
package dmx

import "errors"

const (
	// Channels is the size of one DMX universe. Index 0 is unused by fixtures.
	Channels = 512
	// MaxValue is the upper bound of a channel and of the master.
	MaxValue = 255
)

// ErrShapeMismatch is returned when two vectors that must line up do not.
var ErrShapeMismatch = errors.New("dmx: vectors are not the same length")

// Frame wraps the 512 byte array actually transmitted to the controller.
type Frame [Channels]byte

// Ints returns the frame as a channel vector.
func (f Frame) Ints() []int {
	out := make([]int, Channels)
	for i, v := range f {
		out[i] = int(v)
	}
	return out
}

// ChannelState is the authoritative lighting state: raw channel values plus
// the master dimmer. Values are not clamped at rest.
type ChannelState struct {
	Channels []int
	Master   int
}

// NewState returns a dark universe at full master.
func NewState() ChannelState {
	return ChannelState{Channels: make([]int, Channels), Master: MaxValue}
}

// FromFrame builds a state from a controller readback.
func FromFrame(f Frame, master int) ChannelState {
	return ChannelState{Channels: f.Ints(), Master: master}
}

// Clone returns a deep copy safe to hand out to other goroutines.
func (s ChannelState) Clone() ChannelState {
	out := ChannelState{Channels: make([]int, len(s.Channels)), Master: s.Master}
	copy(out.Channels, s.Channels)
	return out
}

// Normalize pads or truncates values to exactly Channels entries.
func Normalize(values []int) []int {
	out := make([]int, Channels)
	copy(out, values)
	return out
}

// DimmerMask is the fixed set of channels scaled by the master.
type DimmerMask map[int]struct{}

// NewDimmerMask builds a mask from channel indices.
func NewDimmerMask(idx ...int) DimmerMask {
	m := make(DimmerMask, len(idx))
	for _, i := range idx {
		m[i] = struct{}{}
	}
	return m
}

// DefaultDimmerMask returns the dimmer channels of the installed fixtures.
func DefaultDimmerMask() DimmerMask {
	idx := []int{49, 55, 61, 64, 65, 66, 96, 97, 98, 99, 100, 102}
	for i := 104; i <= 127; i++ {
		idx = append(idx, i)
	}
	return NewDimmerMask(idx...)
}

// Contains reports whether channel i follows the master.
func (m DimmerMask) Contains(i int) bool {
	_, ok := m[i]
	return ok
}

// ComputeFrame applies the master to the masked channels. The result always
// has Channels entries; scaled values are truncated toward zero. Inputs are
// not range checked.
func ComputeFrame(channels []int, master int, mask DimmerMask) []int {
	frame := make([]int, Channels)
	scale := float64(master) / MaxValue
	for i := 0; i < len(channels) && i < Channels; i++ {
		if mask.Contains(i) {
			frame[i] = int(float64(channels[i]) * scale)
			continue
		}
		frame[i] = channels[i]
	}
	return frame
}

// Clamp converts a computed frame into its wire form, clamping to [0,255].
func Clamp(frame []int) Frame {
	var out Frame
	for i := 0; i < len(frame) && i < Channels; i++ {
		switch v := frame[i]; {
		case v < 0:
			out[i] = 0
		case v > MaxValue:
			out[i] = MaxValue
		default:
			out[i] = byte(v)
		}
	}
	return out
}

// Render is ComputeFrame followed by Clamp.
func Render(s ChannelState, mask DimmerMask) Frame {
	return Clamp(ComputeFrame(s.Channels, s.Master, mask))
}
