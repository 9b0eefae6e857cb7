// SPDX-License-Identifier: MIT

package prep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 24.0, parseRate("24"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate("garbage"))
}

func TestBuildShotsNoBoundaries(t *testing.T) {
	probe := Probe{DurationS: 10, FPS: 25, Width: 1280, Height: 720}
	shots := buildShots("vid", probe, nil)
	require.Len(t, shots, 1)
	s := shots[0]
	assert.Equal(t, "vid_shot_0000", s.ShotID)
	assert.Equal(t, 0, s.StartFrame)
	assert.Equal(t, 249, s.EndFrame)
	assert.Equal(t, 250, s.FrameCount)
	assert.Equal(t, 10.0, s.DurationS)
	assert.Equal(t, 0.0, s.AudioWindow.StartS)
	assert.Equal(t, 10.0, s.AudioWindow.EndS)
}

func TestBuildShotsSplitsAtBoundaries(t *testing.T) {
	probe := Probe{DurationS: 10, FPS: 25, Width: 640, Height: 360}
	shots := buildShots("vid", probe, []float64{4, 7})
	require.Len(t, shots, 3)
	assert.Equal(t, 0, shots[0].StartFrame)
	assert.Equal(t, 99, shots[0].EndFrame)
	assert.Equal(t, 100, shots[1].StartFrame)
	assert.Equal(t, 174, shots[1].EndFrame)
	assert.Equal(t, 175, shots[2].StartFrame)
	assert.Equal(t, 249, shots[2].EndFrame)
	assert.Equal(t, "vid_shot_0002", shots[2].ShotID)
}

func TestBuildShotsDropsDegenerateSlices(t *testing.T) {
	probe := Probe{DurationS: 10, FPS: 25}
	// A boundary at the exact end must not create an empty trailing shot.
	shots := buildShots("vid", probe, []float64{10})
	assert.Len(t, shots, 1)
}

func TestLinkShots(t *testing.T) {
	shots := buildShots("vid", Probe{DurationS: 4, FPS: 25}, []float64{2})
	shots[0].FramePaths = []string{"a.jpg", "b.jpg"}
	shots[1].FramePaths = []string{"c.jpg"}
	linkShots(shots, "audio.wav")

	assert.Empty(t, shots[0].PrevLastFramePath)
	assert.Equal(t, "b.jpg", shots[1].PrevLastFramePath)
	assert.Equal(t, "audio.wav", shots[0].AudioPath)
	assert.Equal(t, "audio.wav", shots[1].AudioPath)
}
