// SPDX-License-Identifier: MIT

package detect

import (
	"context"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

const motionVersion = "1.1.0"

// Motion estimates shot motion and a saliency peak from luminance
// differences between consecutive sampled keyframes.
type Motion struct{}

func (d *Motion) Kind() Kind   { return KindMotion }
func (d *Motion) Class() Class { return ClassCPU }

type motionParams struct {
	Frames  int `json:"frames"`
	AnalysW int `json:"analysis_width"`
}

const motionAnalysisWidth = 240

func (d *Motion) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}

	frames := sampleFrames(shot.FramePaths, framesPerShot+1)
	prov := provenance("motion-saliency", motionVersion, "", motionParams{
		Frames:  framesPerShot + 1,
		AnalysW: motionAnalysisWidth,
	})

	if len(frames) < 2 {
		// Single-frame shot: no motion measurable.
		return Result{
			Motion:     &vab.MotionStats{MotionType: "static"},
			Saliency:   &vab.SaliencyStats{PeakX: 0.5, PeakY: 0.5, Spread: 1.0},
			Provenance: prov,
		}, nil
	}

	var prev *grayImage
	var totalDiff float64
	var peakX, peakY, peakVal float64
	pairs := 0
	for _, fp := range frames {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		g, err := loadGray(fp)
		if err != nil {
			return Result{}, err
		}
		g = resizeGray(g, motionAnalysisWidth)
		if prev != nil {
			totalDiff += absDiffMean(prev, g)
			px, py, pv := diffPeak(prev, g)
			if pv > peakVal {
				peakX, peakY, peakVal = px, py, pv
			}
			pairs++
		}
		prev = g
	}

	magnitude := totalDiff / float64(pairs)
	motionType := "static"
	switch {
	case magnitude > 0.12:
		motionType = "dynamic"
	case magnitude > 0.03:
		motionType = "subtle"
	}

	return Result{
		Motion: &vab.MotionStats{
			MotionType: motionType,
			Magnitude:  round3(magnitude),
			// Uniform large differences indicate the whole frame moved.
			CameraMotion: magnitude > 0.08 && peakVal < magnitude*3,
		},
		Saliency: &vab.SaliencyStats{
			PeakX:  round3(peakX),
			PeakY:  round3(peakY),
			Spread: round3(1.0 - clamp01(peakVal)),
		},
		Provenance: prov,
	}, nil
}

// diffPeak finds the cell with the largest mean difference on an 8x8 grid
// and returns its centre in normalised coordinates plus the cell mean.
func diffPeak(a, b *grayImage) (x, y, val float64) {
	const grid = 8
	w := min(a.w, b.w)
	h := min(a.h, b.h)
	if w < grid || h < grid {
		return 0.5, 0.5, 0
	}
	cw, ch := w/grid, h/grid
	best := 0.0
	bx, by := 0, 0
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			sum := 0.0
			for yy := gy * ch; yy < (gy+1)*ch; yy++ {
				for xx := gx * cw; xx < (gx+1)*cw; xx++ {
					d := a.pix[yy*a.w+xx] - b.pix[yy*b.w+xx]
					if d < 0 {
						d = -d
					}
					sum += d
				}
			}
			mean := sum / float64(cw*ch)
			if mean > best {
				best = mean
				bx, by = gx, gy
			}
		}
	}
	return (float64(bx) + 0.5) / grid, (float64(by) + 0.5) / grid, best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
