// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// OCREngine is the model boundary for text recognition and typography.
type OCREngine interface {
	Name() string
	Version() string
	Ckpt() string
	Recognize(ctx context.Context, framePath string) ([]vab.TextRegion, error)
}

// Text recognizes captions and on-screen text on sampled keyframes.
type Text struct {
	Engine OCREngine
}

func (d *Text) Kind() Kind   { return KindText }
func (d *Text) Class() Class { return ClassGPULight }

type textParams struct {
	Frames int `json:"frames"`
}

func (d *Text) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	seen := make(map[string]bool)
	var regions []vab.TextRegion
	for _, fp := range sampleFrames(shot.FramePaths, framesPerShot) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		recs, err := d.Engine.Recognize(ctx, fp)
		if err != nil {
			return Result{}, err
		}
		for _, r := range recs {
			// Captions persist across frames of a shot; keep one instance.
			if r.Text != "" && seen[r.Text] {
				continue
			}
			seen[r.Text] = true
			regions = append(regions, r)
		}
	}
	return Result{
		Text:       regions,
		Provenance: provenance(d.Engine.Name(), d.Engine.Version(), d.Engine.Ckpt(), textParams{Frames: framesPerShot}),
	}, nil
}
