package dmx

// Mode selects how a preset is combined with the live state.
type Mode string

const (
	ModeLoad    Mode = "load"
	ModeAdd     Mode = "load-add"
	ModeSub     Mode = "load-sub"
	ModeReplace Mode = "load-replace"
)

// Valid reports whether m is a known preset mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeLoad, ModeAdd, ModeSub, ModeReplace:
		return true
	}
	return false
}

// Merge combines preset into current according to mode and returns a new
// vector; neither argument is modified.
func Merge(mode Mode, current, preset []int) []int {
	switch mode {
	case ModeAdd:
		return Add(current, preset)
	case ModeSub:
		return Sub(current, preset)
	default:
		return Normalize(preset)
	}
}

// Add overwrites every channel where the preset is lit and keeps the rest.
func Add(current, preset []int) []int {
	out := Normalize(current)
	for i, v := range preset {
		if i >= len(out) {
			break
		}
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

// Sub subtracts every lit preset channel, flooring at zero.
func Sub(current, preset []int) []int {
	out := Normalize(current)
	for i, v := range preset {
		if i >= len(out) {
			break
		}
		if v <= 0 {
			continue
		}
		if out[i] > v {
			out[i] -= v
		} else {
			out[i] = 0
		}
	}
	return out
}

// ApplyPartial replaces the given channels, last write wins.
func ApplyPartial(current []int, updates map[int]int) []int {
	out := Normalize(current)
	for i, v := range updates {
		if i >= 0 && i < len(out) {
			out[i] = v
		}
	}
	return out
}
