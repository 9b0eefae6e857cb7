// SPDX-License-Identifier: MIT

// Package prep turns a source video into the immutable per-shot inputs the
// pipeline consumes: probed metadata, shot boundaries, decoded keyframes and
// an extracted audio track. A prep failure fails the whole job; there is
// nothing meaningful to analyze without decoded frames.
package prep

import (
	"context"
	"fmt"
	"math"

	"github.com/framely/eyes/internal/detect"
)

// Probe is the container-level metadata of a source video.
type Probe struct {
	DurationS float64
	FPS       float64
	Width     int
	Height    int
	HasAudio  bool
	Container string
}

// Manifest is the complete prep output for one video.
type Manifest struct {
	VideoID   string
	VideoPath string
	SHA256    string
	WorkDir   string
	Probe     Probe
	Shots     []detect.Shot

	// AudioPath is empty when the source has no audio stream.
	AudioPath string
}

// Prepper produces a Manifest from a source file. FFmpeg is the production
// implementation; Synthetic generates material for tests and local runs.
type Prepper interface {
	Prepare(ctx context.Context, videoID, videoPath, workDir string, frameStride int) (*Manifest, error)
}

// buildShots slices the video timeline at the given boundary times (seconds,
// ascending, excluding 0 and the end) and fills the per-shot descriptors.
// Frame paths and audio windows are attached by the caller.
func buildShots(videoID string, probe Probe, boundaries []float64) []detect.Shot {
	cuts := append([]float64{0}, boundaries...)
	cuts = append(cuts, probe.DurationS)

	shots := make([]detect.Shot, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		startS, endS := cuts[i], cuts[i+1]
		if endS-startS < 1e-3 {
			continue
		}
		startFrame := int(math.Round(startS * probe.FPS))
		endFrame := int(math.Round(endS*probe.FPS)) - 1
		if endFrame < startFrame {
			endFrame = startFrame
		}
		shots = append(shots, detect.Shot{
			ShotID:     fmt.Sprintf("%s_shot_%04d", videoID, len(shots)),
			StartFrame: startFrame,
			EndFrame:   endFrame,
			FrameCount: endFrame - startFrame + 1,
			DurationS:  endS - startS,
			FPS:        probe.FPS,
			Width:      probe.Width,
			Height:     probe.Height,
			AudioWindow: detect.AudioWindow{
				StartS: startS,
				EndS:   endS,
			},
		})
	}
	return shots
}

// linkShots wires each shot's PrevLastFramePath and the shared audio path.
func linkShots(shots []detect.Shot, audioPath string) {
	for i := range shots {
		shots[i].AudioPath = audioPath
		if i > 0 {
			prev := shots[i-1].FramePaths
			if len(prev) > 0 {
				shots[i].PrevLastFramePath = prev[len(prev)-1]
			}
		}
	}
}
