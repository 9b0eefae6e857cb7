// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// FaceEngine is the model boundary for face detection.
type FaceEngine interface {
	Name() string
	Version() string
	Ckpt() string
	DetectFaces(ctx context.Context, framePath string) ([]vab.Face, error)
}

// Faces detects faces on sampled keyframes.
type Faces struct {
	Engine FaceEngine
}

func (d *Faces) Kind() Kind   { return KindFaces }
func (d *Faces) Class() Class { return ClassGPULight }

type faceParams struct {
	Frames int `json:"frames"`
}

func (d *Faces) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	var all []vab.Face
	for _, fp := range sampleFrames(shot.FramePaths, framesPerShot) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		faces, err := d.Engine.DetectFaces(ctx, fp)
		if err != nil {
			return Result{}, err
		}
		all = append(all, faces...)
	}
	return Result{
		Faces:      dedupFaces(all),
		Provenance: provenance(d.Engine.Name(), d.Engine.Version(), d.Engine.Ckpt(), faceParams{Frames: framesPerShot}),
	}, nil
}

// dedupFaces collapses near-identical boxes reported from different frames of
// the same shot, keeping the highest confidence instance.
func dedupFaces(faces []vab.Face) []vab.Face {
	var kept []vab.Face
	for _, f := range faces {
		merged := false
		for i := range kept {
			if IoU(kept[i].BBox, f.BBox) >= 0.6 {
				if f.Conf > kept[i].Conf {
					kept[i] = f
				}
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, f)
		}
	}
	return kept
}
