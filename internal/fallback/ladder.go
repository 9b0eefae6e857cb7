// SPDX-License-Identifier: MIT

// Package fallback implements the degradation ladder applied on transient
// resource errors. Ladder state is job-scoped and monotonic: once a step has
// fired it stays in effect for every later shot of the job.
package fallback

import (
	"sync"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/detect"
	"github.com/rs/zerolog"
)

// ReasonResourceExhausted marks a detector skipped because the ladder ran
// out of applicable steps for its failure site.
const ReasonResourceExhausted = "resource_exhausted"

// VLContextFloor is the minimum frame count the VL context shrinks to.
const VLContextFloor = 4

// stepReasons maps ladder steps to the reason strings recorded in
// status.reasons.
var stepReasons = map[string]string{
	config.StepMaskRefineOff:  "mask_refinement_disabled",
	config.StepSuperresOff:    "sr_disabled",
	config.StepVLContextHalve: "vl_context_reduced",
	config.StepSingleScale:    "tiling_reduced_single_scale",
}

// Ladder is the per-job fallback state machine.
type Ladder struct {
	mu          sync.Mutex
	order       []string
	fired       map[string]bool
	firedOrder  []string
	vlMaxFrames int
	oomTrips    int
	retries     int
	logger      zerolog.Logger
}

// New creates a ladder for one job. vlMaxFrames is the configured VL context
// size before any shrinking.
func New(order []string, vlMaxFrames int, logger zerolog.Logger) *Ladder {
	return &Ladder{
		order:       append([]string(nil), order...),
		fired:       make(map[string]bool),
		vlMaxFrames: vlMaxFrames,
		logger:      logger,
	}
}

// stepApplies reports whether a step can absorb a failure of the given
// detector kind.
func stepApplies(step string, kind detect.Kind) bool {
	switch step {
	case config.StepMaskRefineOff, config.StepSuperresOff, config.StepSingleScale:
		switch kind {
		case detect.KindObjectsCoarse, detect.KindObjectsTiled, detect.KindSuperres,
			detect.KindObjectsFine, detect.KindMaskRefine:
			return true
		}
		return false
	case config.StepVLContextHalve:
		return kind == detect.KindReasoning
	case config.StepSkipDetector:
		return true
	}
	return false
}

// Advance records a transient-resource trip for kind and fires the next
// applicable capability-reducing step. It returns the fired step name and
// true when the caller should retry once; false means the ladder has no step
// left for this site and the detector must be skipped with
// ReasonResourceExhausted.
func (l *Ladder) Advance(kind detect.Kind) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.oomTrips++

	for _, step := range l.order {
		if !stepApplies(step, kind) {
			continue
		}
		switch step {
		case config.StepSkipDetector:
			// Terminal step: no capability left to trade away.
			return "", false
		case config.StepVLContextHalve:
			// Halving repeats until the floor without consuming further
			// ladder positions.
			if l.vlMaxFrames/2 >= VLContextFloor {
				l.vlMaxFrames /= 2
				if !l.fired[step] {
					l.fireLocked(step, kind)
				}
				l.retries++
				return step, true
			}
			continue
		default:
			if l.fired[step] {
				continue
			}
			l.fireLocked(step, kind)
			l.retries++
			return step, true
		}
	}
	return "", false
}

func (l *Ladder) fireLocked(step string, kind detect.Kind) {
	l.fired[step] = true
	l.firedOrder = append(l.firedOrder, step)
	l.logger.Warn().
		Str("event", "fallback.step_fired").
		Str("step", step).
		Str("detector", string(kind)).
		Int("ladder_level", len(l.firedOrder)).
		Msg("capability disabled after transient resource error")
}

// MaskRefineDisabled reports whether mask refinement was sacrificed.
func (l *Ladder) MaskRefineDisabled() bool { return l.isFired(config.StepMaskRefineOff) }

// SuperresDisabled reports whether super-resolution (and with it the fine
// object pass) was sacrificed.
func (l *Ladder) SuperresDisabled() bool { return l.isFired(config.StepSuperresOff) }

// SingleScale reports whether the tile pass is reduced to a single scale.
func (l *Ladder) SingleScale() bool { return l.isFired(config.StepSingleScale) }

func (l *Ladder) isFired(step string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired[step]
}

// VLMaxFrames returns the current (possibly shrunk) VL context size.
func (l *Ladder) VLMaxFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vlMaxFrames
}

// Level returns how many distinct steps have fired.
func (l *Ladder) Level() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.firedOrder)
}

// MaxFiredStep returns the highest 1-based position in the configured order
// that has fired, or 0. Risk synthesis flags jobs that degraded beyond the
// second step.
func (l *Ladder) MaxFiredStep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	maxPos := 0
	for i, step := range l.order {
		if l.fired[step] && i+1 > maxPos {
			maxPos = i + 1
		}
	}
	return maxPos
}

// OOMTrips returns the total transient-resource trips observed.
func (l *Ladder) OOMTrips() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.oomTrips
}

// Retries returns the total ladder-driven retries.
func (l *Ladder) Retries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

// Reasons returns the status.reasons entries for every fired step, in firing
// order.
func (l *Ladder) Reasons() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.firedOrder))
	for _, step := range l.firedOrder {
		if r, ok := stepReasons[step]; ok {
			out = append(out, r)
		}
	}
	return out
}
