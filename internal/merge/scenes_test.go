// SPDX-License-Identifier: MIT

package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

func shotAt(id string, start, end int, tr *vab.Transition) vab.Shot {
	return vab.Shot{
		ShotID:     id,
		StartFrame: start,
		EndFrame:   end,
		FrameCount: end - start + 1,
		DurationS:  float64(end-start+1) / 25,
		Detectors:  vab.Detectors{Transition: tr},
	}
}

func TestGroupScenesCutBreaks(t *testing.T) {
	cfg := config.Default().Merge
	shots := []vab.Shot{
		shotAt("s0", 0, 49, nil),
		shotAt("s1", 50, 99, &vab.Transition{Type: "dissolve", SSIM: 0.6}),
		shotAt("s2", 100, 149, &vab.Transition{Type: "cut", SSIM: 0.1}),
		shotAt("s3", 150, 199, &vab.Transition{Type: "none", SSIM: 0.95}),
	}

	scenes := GroupScenes("vid", shots, 25, cfg)
	require.Len(t, scenes, 2)
	assert.Equal(t, []string{"s0", "s1"}, scenes[0].Shots)
	assert.Equal(t, []string{"s2", "s3"}, scenes[1].Shots)
	assert.Equal(t, 0, scenes[0].StartFrame)
	assert.Equal(t, 99, scenes[0].EndFrame)
}

func TestGroupScenesLowSSIMBreaks(t *testing.T) {
	cfg := config.Default().Merge
	shots := []vab.Shot{
		shotAt("s0", 0, 49, nil),
		shotAt("s1", 50, 99, &vab.Transition{Type: "dissolve", SSIM: 0.2}),
	}
	scenes := GroupScenes("vid", shots, 25, cfg)
	assert.Len(t, scenes, 2)
}

func TestGroupScenesGapBreaks(t *testing.T) {
	cfg := config.Default().Merge
	shots := []vab.Shot{
		shotAt("s0", 0, 49, nil),
		// 100 frames missing at 25 fps: a 4 s hole, past the 2 s limit.
		shotAt("s1", 150, 199, &vab.Transition{Type: "none", SSIM: 0.95}),
	}
	scenes := GroupScenes("vid", shots, 25, cfg)
	assert.Len(t, scenes, 2)
}

func TestGroupScenesEveryShotAssignedOnce(t *testing.T) {
	cfg := config.Default().Merge
	shots := []vab.Shot{
		shotAt("s0", 0, 10, nil),
		shotAt("s1", 11, 20, &vab.Transition{Type: "cut", SSIM: 0.05}),
		shotAt("s2", 21, 30, &vab.Transition{Type: "fade", SSIM: 0.5}),
	}
	scenes := GroupScenes("vid", shots, 25, cfg)

	seen := map[string]int{}
	for _, sc := range scenes {
		for _, id := range sc.Shots {
			seen[id]++
		}
	}
	assert.Equal(t, map[string]int{"s0": 1, "s1": 1, "s2": 1}, seen)
}

func TestSceneFeaturesAggregate(t *testing.T) {
	cfg := config.Default().Merge
	s0 := shotAt("s0", 0, 49, nil)
	s0.Mood = "tense"
	s0.Detectors.Color = &vab.ColorStats{Brightness: 0.2}
	s0.Detectors.Audio = &vab.AudioStats{LUFS: -20, HasSpeech: true}
	s1 := shotAt("s1", 50, 99, &vab.Transition{Type: "none", SSIM: 0.95})
	s1.Mood = "tense"
	s1.Detectors.Color = &vab.ColorStats{Brightness: 0.4}
	s1.Detectors.Audio = &vab.AudioStats{LUFS: -10, HasMusic: true}
	s1.Detectors.Motion = &vab.MotionStats{CameraMotion: true}

	scenes := GroupScenes("vid", []vab.Shot{s0, s1}, 25, cfg)
	require.Len(t, scenes, 1)
	f := scenes[0].Features
	assert.InDelta(t, 0.3, f.AvgBrightness, 1e-9)
	assert.Equal(t, "tense", f.DominantMood)
	assert.True(t, f.HasCameraMotion)
	assert.Equal(t, 2, f.ShotCount)
	assert.InDelta(t, -15, f.Audio.AvgLoudness, 1e-9)
	assert.True(t, f.Audio.HasSpeech)
	assert.True(t, f.Audio.HasMusic)
}
