package dmx

import (
	"errors"
	"fmt"
)

// ErrStages is returned for a fade with no steps.
var ErrStages = errors.New("dmx: fade needs at least one stage")

// Fade linearly interpolates from source to target and returns stages+1
// vectors, both endpoints included. Intermediate values are truncated, the
// same policy ComputeFrame uses; the last vector is target exactly.
func Fade(source, target []int, stages int) ([][]int, error) {
	if len(source) != len(target) {
		return nil, fmt.Errorf("%w: source %d, target %d", ErrShapeMismatch, len(source), len(target))
	}
	if stages <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrStages, stages)
	}

	steps := make([]float64, len(target))
	for i, v := range target {
		steps[i] = float64(v-source[i]) / float64(stages)
	}

	frames := make([][]int, 0, stages+1)
	for s := 0; s < stages; s++ {
		now := make([]int, len(source))
		for i, step := range steps {
			now[i] = int(float64(source[i]) + step*float64(s))
		}
		frames = append(frames, now)
	}

	last := make([]int, len(target))
	copy(last, target)
	return append(frames, last), nil
}
