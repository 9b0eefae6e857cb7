// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Default()
	cfg.Detect.Tile.Stride = cfg.Detect.Tile.Size + 1
	cfg.Runtime.OOMFallbackOrder = []string{"teleport"}
	cfg.Server.JobStore = "carrier-pigeon"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "tile.stride")
	assert.Contains(t, err.Error(), "teleport")
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TILE_SIZE", "256")
	t.Setenv("STOI_ENABLED", "false")
	t.Setenv("VL_DEADLINE", "90s")
	t.Setenv("MIME_WHITELIST", "video/mp4, video/webm")
	t.Setenv("FRAME_STRIDE", "not-a-number")

	cfg := Load()
	assert.Equal(t, 256, cfg.Detect.Tile.Size)
	assert.False(t, cfg.Audio.STOIEnabled)
	assert.Equal(t, 90*time.Second, cfg.Runtime.VLDeadline)
	assert.Equal(t, []string{"video/mp4", "video/webm"}, cfg.Server.MIMEWhitelist)
	// Unparseable values keep the default.
	assert.Equal(t, 1, cfg.Runtime.FrameStride)
}

func TestApplyAblationsDoesNotMutateReceiver(t *testing.T) {
	base := Default()
	job := base.ApplyAblations(AblationFlags{NoSR: true, NoTiling: true, LightAudio: true})

	assert.False(t, job.Detect.Superres.Enabled)
	assert.False(t, job.Detect.TwoPassEnabled)
	assert.False(t, job.Audio.STOIEnabled)

	assert.True(t, base.Detect.Superres.Enabled)
	assert.True(t, base.Detect.TwoPassEnabled)
	assert.True(t, base.Audio.STOIEnabled)

	// The slices of the copy must be detached from the original.
	job.Runtime.OOMFallbackOrder[0] = "changed"
	assert.Equal(t, StepMaskRefineOff, base.Runtime.OOMFallbackOrder[0])
}

func TestParseStringList(t *testing.T) {
	t.Setenv("LIST_KEY", "a, b ,,c")
	assert.Equal(t, []string{"a", "b", "c"}, ParseStringList("LIST_KEY", nil))

	t.Setenv("LIST_KEY", " , ")
	assert.Equal(t, []string{"fallback"}, ParseStringList("LIST_KEY", []string{"fallback"}))
}
