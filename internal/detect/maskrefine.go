// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// MaskEngine is the model boundary for segmentation-based box refinement.
type MaskEngine interface {
	Name() string
	Version() string
	Ckpt() string
	Refine(ctx context.Context, framePath string, obj vab.Object) (vab.Object, error)
}

// MaskRefine tightens surviving detections with a segmentation model. It is
// the first capability the fallback ladder sacrifices under memory pressure.
type MaskRefine struct {
	Engine MaskEngine
}

func (d *MaskRefine) Kind() Kind   { return KindMaskRefine }
func (d *MaskRefine) Class() Class { return ClassGPUHeavy }

type maskParams struct {
	Ckpt string `json:"ckpt"`
}

func (d *MaskRefine) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	frame := shot.FramePaths[len(shot.FramePaths)/2]

	refined := make([]vab.Object, 0, len(shot.Objects))
	for _, obj := range shot.Objects {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		out, err := d.Engine.Refine(ctx, frame, obj)
		if err != nil {
			return Result{}, err
		}
		out.MaskRefined = true
		refined = append(refined, out)
	}
	return Result{
		Objects:    refined,
		Provenance: provenance(d.Engine.Name(), d.Engine.Version(), d.Engine.Ckpt(), maskParams{Ckpt: d.Engine.Ckpt()}),
	}, nil
}
