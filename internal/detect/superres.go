// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
)

// SREngine is the model boundary for super-resolution upscaling. Upscale
// writes the enlarged frame next to the source and returns its path.
type SREngine interface {
	Name() string
	Version() string
	Ckpt() string
	Upscale(ctx context.Context, framePath string, factor int) (string, error)
}

// Superres conditionally upscales low-resolution shots so the fine object
// pass can recover small detections. It triggers only when the frame height
// is below the configured threshold and super-resolution is enabled.
type Superres struct {
	Engine SREngine
	Factor int
}

func (d *Superres) Kind() Kind   { return KindSuperres }
func (d *Superres) Class() Class { return ClassGPUHeavy }

type srParams struct {
	Factor      int `json:"factor"`
	TriggerMinH int `json:"trigger_min_h"`
}

func (d *Superres) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	factor := d.Factor
	if factor <= 0 {
		factor = 4
	}
	prov := provenance(d.Engine.Name(), d.Engine.Version(), d.Engine.Ckpt(), srParams{
		Factor:      factor,
		TriggerMinH: cfg.Detect.Superres.TriggerMinH,
	})

	if shot.Height >= cfg.Detect.Superres.TriggerMinH {
		// Resolution is already sufficient; nothing to upscale.
		return Result{SRUsed: false, Provenance: prov}, nil
	}
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}

	paths := make([]string, 0, framesPerShot)
	for _, fp := range sampleFrames(shot.FramePaths, framesPerShot) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		up, err := d.Engine.Upscale(ctx, fp, factor)
		if err != nil {
			return Result{}, err
		}
		paths = append(paths, up)
	}
	return Result{SRUsed: true, SRFramePaths: paths, Provenance: prov}, nil
}
