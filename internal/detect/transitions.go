// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

const transitionVersion = "1.1.0"

// ReasonNoAdjacentShot marks the transition slot of a shot with no
// predecessor.
const ReasonNoAdjacentShot = "no_adjacent_shot"

// Transitions classifies the boundary into a shot by comparing the previous
// shot's last frame with this shot's first frame. It requires both adjacent
// shots to be prepared; the first shot of a video has no boundary and is
// reported as skipped.
type Transitions struct{}

func (d *Transitions) Kind() Kind   { return KindTransition }
func (d *Transitions) Class() Class { return ClassCPU }

const transitionAnalysisWidth = 480

type transitionParams struct {
	AnalysW int `json:"analysis_width"`
}

func (d *Transitions) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if shot.PrevLastFramePath == "" {
		return Result{
			Provenance: SkippedProvenance(KindTransition, ReasonNoAdjacentShot),
		}, nil
	}
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	prev, err := loadGray(shot.PrevLastFramePath)
	if err != nil {
		return Result{}, err
	}
	curr, err := loadGray(shot.FramePaths[0])
	if err != nil {
		return Result{}, err
	}
	prev = resizeGray(prev, transitionAnalysisWidth)
	curr = resizeGray(curr, transitionAnalysisWidth)

	similarity := ssim(prev, curr)
	return Result{
		Transition: &vab.Transition{
			Type: classifyTransition(prev, curr, similarity),
			SSIM: round3(similarity),
		},
		Provenance: provenance("transition-ssim", transitionVersion, "", transitionParams{AnalysW: transitionAnalysisWidth}),
	}, nil
}

func classifyTransition(prev, curr *grayImage, similarity float64) string {
	switch {
	case similarity > 0.9:
		return "none"
	case similarity < 0.3:
		return "cut"
	}
	// Mid-range similarity with a large global brightness shift is a fade;
	// otherwise a dissolve.
	pm, cm := prev.mean(), curr.mean()
	shift := cm - pm
	if shift < 0 {
		shift = -shift
	}
	if shift > 0.25 || cm < 0.08 || pm < 0.08 {
		return "fade"
	}
	return "dissolve"
}
