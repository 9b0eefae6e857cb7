// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"fmt"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// ObjectEngine is the model boundary for object detection. Predictions are
// reported in region-local xyxy coordinates.
type ObjectEngine interface {
	Name() string
	Version() string
	Ckpt() string
	PredictRegion(ctx context.Context, framePath string, region Tile, confThreshold float64) ([]vab.Object, error)
}

// framesPerShot bounds how many keyframes the object passes sample per shot.
// Frames are sampled evenly so long shots stay bounded in cost.
const framesPerShot = 3

func sampleFrames(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	out := make([]string, 0, n)
	step := float64(len(paths)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, paths[int(float64(i)*step)])
	}
	return out
}

// CoarseObjects runs the full-frame object pass.
type CoarseObjects struct {
	Engine        ObjectEngine
	ConfThreshold float64
}

func (d *CoarseObjects) Kind() Kind   { return KindObjectsCoarse }
func (d *CoarseObjects) Class() Class { return ClassGPUHeavy }

func (d *CoarseObjects) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	var all []vab.Object
	full := Tile{X: 0, Y: 0, W: shot.Width, H: shot.Height}
	for _, fp := range sampleFrames(shot.FramePaths, framesPerShot) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		objs, err := d.Engine.PredictRegion(ctx, fp, full, d.ConfThreshold)
		if err != nil {
			return Result{}, err
		}
		for i := range objs {
			objs[i].Pass = PassCoarse
		}
		all = append(all, objs...)
	}
	return Result{
		Objects:    NMS(all, cfg.Detect.NMSIoU),
		Provenance: provenance(d.Engine.Name(), d.Engine.Version(), d.Engine.Ckpt(), coarseParams{Conf: d.ConfThreshold}),
	}, nil
}

type coarseParams struct {
	Conf float64 `json:"conf"`
}

// TiledObjects runs the tiled multi-scale object pass. Tiles overlap so the
// union covers every pixel; a second, doubled tile size adds a coarser scale.
// Under the single-scale fallback only the base scale runs.
type TiledObjects struct {
	Engine        ObjectEngine
	ConfThreshold float64

	// SingleScale is toggled by the fallback ladder for the rest of a job.
	SingleScale func() bool
}

func (d *TiledObjects) Kind() Kind   { return KindObjectsTiled }
func (d *TiledObjects) Class() Class { return ClassGPUHeavy }

type tiledParams struct {
	TileSize    int     `json:"tile_size"`
	Stride      int     `json:"stride"`
	Conf        float64 `json:"conf"`
	SingleScale bool    `json:"single_scale"`
}

func (d *TiledObjects) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}
	singleScale := d.SingleScale != nil && d.SingleScale()

	sizes := []int{cfg.Detect.Tile.Size}
	if !singleScale {
		sizes = append(sizes, cfg.Detect.Tile.Size*2)
	}

	var all []vab.Object
	for _, fp := range sampleFrames(shot.FramePaths, framesPerShot) {
		for _, size := range sizes {
			stride := cfg.Detect.Tile.Stride * size / cfg.Detect.Tile.Size
			for _, tile := range TileGrid(shot.Width, shot.Height, size, stride) {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
				objs, err := d.Engine.PredictRegion(ctx, fp, tile, d.ConfThreshold)
				if err != nil {
					return Result{}, err
				}
				for i := range objs {
					objs[i].BBox[0] += float64(tile.X)
					objs[i].BBox[1] += float64(tile.Y)
					objs[i].BBox[2] += float64(tile.X)
					objs[i].BBox[3] += float64(tile.Y)
					objs[i].Pass = PassTiled
				}
				all = append(all, objs...)
			}
		}
	}

	// Discard detections below the minimum detectable size.
	minPx := float64(cfg.Detect.SmallObjectMinPx)
	kept := all[:0]
	for _, o := range all {
		if o.BBox[2]-o.BBox[0] >= minPx && o.BBox[3]-o.BBox[1] >= minPx {
			kept = append(kept, o)
		}
	}

	return Result{
		Objects: NMS(kept, cfg.Detect.NMSIoU),
		Provenance: provenance(d.Engine.Name()+"-tiled", d.Engine.Version(), d.Engine.Ckpt(), tiledParams{
			TileSize:    cfg.Detect.Tile.Size,
			Stride:      cfg.Detect.Tile.Stride,
			Conf:        d.ConfThreshold,
			SingleScale: singleScale,
		}),
	}, nil
}

// FineObjects re-detects on super-resolved frames, restricted to regions that
// survived the coarse+tiled NMS. It only runs when the SR pass produced
// upscaled frames.
type FineObjects struct {
	Engine        ObjectEngine
	ConfThreshold float64
	SRFactor      int
}

func (d *FineObjects) Kind() Kind   { return KindObjectsFine }
func (d *FineObjects) Class() Class { return ClassGPUHeavy }

type fineParams struct {
	Conf     float64 `json:"conf"`
	SRFactor int     `json:"sr_factor"`
}

func (d *FineObjects) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.SRFramePaths) == 0 {
		return Result{}, InputDefect("no super-resolved frames for fine pass", nil)
	}
	factor := float64(d.SRFactor)
	if factor <= 0 {
		factor = 4
	}

	var refined []vab.Object
	for _, fp := range shot.SRFramePaths {
		for _, obj := range shot.Objects {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			region := Tile{
				X: int(obj.BBox[0] * factor),
				Y: int(obj.BBox[1] * factor),
				W: int((obj.BBox[2] - obj.BBox[0]) * factor),
				H: int((obj.BBox[3] - obj.BBox[1]) * factor),
			}
			if region.W <= 0 || region.H <= 0 {
				continue
			}
			objs, err := d.Engine.PredictRegion(ctx, fp, region, d.ConfThreshold)
			if err != nil {
				return Result{}, err
			}
			for i := range objs {
				// Map back to original frame coordinates.
				objs[i].BBox[0] = (objs[i].BBox[0] + float64(region.X)) / factor
				objs[i].BBox[1] = (objs[i].BBox[1] + float64(region.Y)) / factor
				objs[i].BBox[2] = (objs[i].BBox[2] + float64(region.X)) / factor
				objs[i].BBox[3] = (objs[i].BBox[3] + float64(region.Y)) / factor
				objs[i].Pass = PassFine
			}
			refined = append(refined, objs...)
		}
	}

	merged := NMS(append(append([]vab.Object(nil), shot.Objects...), refined...), cfg.Detect.NMSIoU)
	return Result{
		Objects: merged,
		Provenance: provenance(fmt.Sprintf("%s-fine", d.Engine.Name()), d.Engine.Version(), d.Engine.Ckpt(), fineParams{
			Conf:     d.ConfThreshold,
			SRFactor: d.SRFactor,
		}),
	}, nil
}
