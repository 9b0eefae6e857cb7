// SPDX-License-Identifier: MIT

package fallback

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/detect"
)

func defaultOrder() []string {
	return []string{
		config.StepMaskRefineOff,
		config.StepSuperresOff,
		config.StepVLContextHalve,
		config.StepSingleScale,
		config.StepSkipDetector,
	}
}

func TestLadderFiresInOrderForGPUChain(t *testing.T) {
	l := New(defaultOrder(), 12, zerolog.Nop())

	step, retry := l.Advance(detect.KindObjectsTiled)
	require.True(t, retry)
	assert.Equal(t, config.StepMaskRefineOff, step)
	assert.True(t, l.MaskRefineDisabled())
	assert.False(t, l.SuperresDisabled())

	step, retry = l.Advance(detect.KindObjectsTiled)
	require.True(t, retry)
	assert.Equal(t, config.StepSuperresOff, step)
	assert.True(t, l.SuperresDisabled())

	// The VL step does not apply to the GPU chain; the next applicable step
	// is single-scale tiling.
	step, retry = l.Advance(detect.KindObjectsCoarse)
	require.True(t, retry)
	assert.Equal(t, config.StepSingleScale, step)
	assert.True(t, l.SingleScale())

	// Nothing left but skip.
	_, retry = l.Advance(detect.KindObjectsCoarse)
	assert.False(t, retry)
}

func TestLadderIsMonotonic(t *testing.T) {
	l := New(defaultOrder(), 12, zerolog.Nop())
	_, _ = l.Advance(detect.KindMaskRefine)
	require.True(t, l.MaskRefineDisabled())

	// Later trips never re-enable an earlier sacrifice.
	_, _ = l.Advance(detect.KindSuperres)
	_, _ = l.Advance(detect.KindObjectsFine)
	assert.True(t, l.MaskRefineDisabled())
	assert.True(t, l.SuperresDisabled())
}

func TestLadderVLContextHalvesToFloor(t *testing.T) {
	l := New(defaultOrder(), 16, zerolog.Nop())

	step, retry := l.Advance(detect.KindReasoning)
	require.True(t, retry)
	assert.Equal(t, config.StepVLContextHalve, step)
	assert.Equal(t, 8, l.VLMaxFrames())

	_, retry = l.Advance(detect.KindReasoning)
	require.True(t, retry)
	assert.Equal(t, 4, l.VLMaxFrames())

	// At the floor the only remaining option is skipping.
	_, retry = l.Advance(detect.KindReasoning)
	assert.False(t, retry)
	assert.Equal(t, 4, l.VLMaxFrames())
}

func TestLadderCPUKindsSkipImmediately(t *testing.T) {
	l := New(defaultOrder(), 12, zerolog.Nop())
	_, retry := l.Advance(detect.KindFaces)
	assert.False(t, retry)
	assert.Equal(t, 0, l.Level())
	assert.Equal(t, 1, l.OOMTrips())
}

func TestLadderReasonsAndMaxStep(t *testing.T) {
	l := New(defaultOrder(), 12, zerolog.Nop())
	_, _ = l.Advance(detect.KindMaskRefine)
	_, _ = l.Advance(detect.KindSuperres)
	_, _ = l.Advance(detect.KindReasoning)

	assert.Equal(t, []string{
		"mask_refinement_disabled",
		"sr_disabled",
		"vl_context_reduced",
	}, l.Reasons())
	assert.Equal(t, 3, l.MaxFiredStep())
	assert.Equal(t, 3, l.Retries())
}
