// SPDX-License-Identifier: MIT

package merge

import (
	"fmt"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// GroupScenes partitions consecutive shots into scenes. A new scene starts
// when the boundary into a shot is a hard cut, when the boundary similarity
// falls below the scene threshold, or when the temporal gap between shots
// exceeds the configured maximum. Every shot lands in exactly one scene.
func GroupScenes(videoID string, shots []vab.Shot, fps float64, cfg config.MergeConfig) []vab.Scene {
	if len(shots) == 0 {
		return nil
	}
	if fps <= 0 {
		fps = 25
	}

	var scenes []vab.Scene
	var current []vab.Shot

	flush := func() {
		if len(current) == 0 {
			return
		}
		scenes = append(scenes, buildScene(videoID, len(scenes), current))
		current = nil
	}

	for i, shot := range shots {
		if i > 0 && breaksScene(&shots[i-1], &shot, fps, cfg) {
			flush()
		}
		current = append(current, shot)
	}
	flush()
	return scenes
}

func breaksScene(prev, curr *vab.Shot, fps float64, cfg config.MergeConfig) bool {
	gapS := float64(curr.StartFrame-prev.EndFrame-1) / fps
	if gapS > cfg.MaxSceneGapS {
		return true
	}
	tr := curr.Detectors.Transition
	if tr == nil {
		// No boundary measurement; keep grouping on temporal adjacency.
		return false
	}
	if tr.Type == "cut" {
		return true
	}
	return tr.SSIM < cfg.SceneSSIMMin
}

func buildScene(videoID string, idx int, shots []vab.Shot) vab.Scene {
	sc := vab.Scene{
		SceneID:    fmt.Sprintf("%s_scene_%04d", videoID, idx),
		StartFrame: shots[0].StartFrame,
		EndFrame:   shots[len(shots)-1].EndFrame,
	}

	var brightSum float64
	var brightN int
	moods := map[string]int{}
	var loudSum float64
	var loudN int

	for _, s := range shots {
		sc.Shots = append(sc.Shots, s.ShotID)
		sc.Features.ShotCount++
		sc.Features.TotalDurationS += s.DurationS
		if c := s.Detectors.Color; c != nil {
			brightSum += c.Brightness
			brightN++
		}
		if m := s.Detectors.Motion; m != nil && m.CameraMotion {
			sc.Features.HasCameraMotion = true
		}
		if s.Mood != "" {
			moods[s.Mood]++
		}
		if a := s.Detectors.Audio; a != nil {
			loudSum += a.LUFS
			loudN++
			if a.HasSpeech {
				sc.Features.Audio.HasSpeech = true
			}
			if a.HasMusic {
				sc.Features.Audio.HasMusic = true
			}
		}
	}

	if brightN > 0 {
		sc.Features.AvgBrightness = round2(brightSum / float64(brightN))
	}
	if loudN > 0 {
		sc.Features.Audio.AvgLoudness = round2(loudSum / float64(loudN))
	}
	sc.Features.TotalDurationS = round2(sc.Features.TotalDurationS)
	sc.Features.DominantMood = dominantMood(moods)
	return sc
}

// dominantMood picks the most frequent shot mood; ties resolve to the mood
// seen first in iteration-stable count order by falling back to the highest
// count with lexicographically smallest name.
func dominantMood(moods map[string]int) string {
	best, bestN := "", 0
	for mood, n := range moods {
		if n > bestN || (n == bestN && best != "" && mood < best) {
			best, bestN = mood, n
		}
	}
	if best == "" {
		return "neutral"
	}
	return best
}
