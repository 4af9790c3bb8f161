package captcha

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Step is one increment of a drag trajectory: horizontal delta, a small
// vertical wobble and the pause taken before the move.
type Step struct {
	DX    int
	DY    int
	Delay time.Duration
}

// Plan is a complete drag trajectory. Steps sum exactly to Distance.
// A plan is built fresh for every attempt and consumed exactly once.
type Plan struct {
	Distance int
	Steps    []Step
}

// Planner synthesizes ease-out drag trajectories. The motion covers
// the first 80% of the distance under acceleration and the rest while
// decelerating, which reads as a human drag to the portal's anti-bot
// heuristics. A nil Rand produces deterministic plans; in production a
// seeded Rand adds bounded per-step jitter.
type Planner struct {
	// MinDistance rejects plan requests below the valid floor. Such a
	// distance is a recognizer artifact, not a draggable target.
	MinDistance int
	Rand        *rand.Rand
}

const (
	distanceSplit = 0.8 // share of distance covered by the acceleration phase
	timeSplit     = 0.7 // share of steps spent in the acceleration phase

	minSteps = 8
	maxSteps = 40

	baseStepDelay   = 12 * time.Millisecond
	jitterStepDelay = 8 * time.Millisecond
)

// easeOut maps normalized step time u in [0,1] to the normalized
// cumulative distance. Quadratic acceleration until timeSplit, then a
// mirrored quadratic deceleration into 1.
func easeOut(u float64) float64 {
	if u <= 0 {
		return 0
	}
	if u >= 1 {
		return 1
	}
	if u <= timeSplit {
		r := u / timeSplit
		return distanceSplit * r * r
	}
	r := (1 - u) / (1 - timeSplit)
	return 1 - (1-distanceSplit)*r*r
}

// StepCount derives the step count for a distance: roughly one step
// per four pixels, clamped to a human-plausible range.
func StepCount(d int) int {
	n := d / 4
	if n < minSteps {
		n = minSteps
	}
	if n > maxSteps {
		n = maxSteps
	}
	return n
}

// Build produces an n-step plan whose horizontal deltas sum exactly to
// d. Jitter, when enabled, shifts individual steps by at most one
// pixel; the remainder is folded into the final step so the sum
// invariant holds regardless.
func (p *Planner) Build(d, n int) (*Plan, error) {
	if d <= p.MinDistance {
		return nil, fmt.Errorf("%w: distance %dpx, floor %dpx", ErrDistanceTooShort, d, p.MinDistance)
	}
	if n < 1 {
		return nil, fmt.Errorf("step count must be positive, got %d", n)
	}

	steps := make([]Step, n)
	prev := 0
	for i := 1; i <= n; i++ {
		cum := int(math.Round(float64(d) * easeOut(float64(i)/float64(n))))
		dx := cum - prev
		prev = cum

		step := Step{DX: dx, Delay: baseStepDelay}
		if p.Rand != nil {
			step.DX += p.Rand.Intn(3) - 1
			step.DY = p.Rand.Intn(5) - 2
			step.Delay += time.Duration(p.Rand.Int63n(int64(jitterStepDelay)))
		}
		steps[i-1] = step
	}

	total := 0
	for _, s := range steps {
		total += s.DX
	}
	steps[n-1].DX += d - total
	steps[n-1].DY = 0

	return &Plan{Distance: d, Steps: steps}, nil
}

// Trajectory is the common entry point: it derives the step count from
// the distance and builds the plan.
func (p *Planner) Trajectory(d int) (*Plan, error) {
	return p.Build(d, StepCount(d))
}
