// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"math"
	"sort"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// colorVersion identifies the color/composition analyzer in provenance.
const colorVersion = "1.2.0"

// Color computes brightness, saturation, contrast and dominant hues of a
// shot from its sampled keyframes. Pure CPU; no model involved.
type Color struct{}

func (d *Color) Kind() Kind   { return KindColor }
func (d *Color) Class() Class { return ClassCPU }

type colorParams struct {
	Frames int `json:"frames"`
}

var hueNames = []struct {
	name string
	deg  float64
}{
	{"red", 0}, {"orange", 30}, {"yellow", 60}, {"green", 120},
	{"cyan", 180}, {"blue", 240}, {"purple", 280}, {"magenta", 320},
}

func (d *Color) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	if len(shot.FramePaths) == 0 {
		return Result{}, InputDefect("shot has no decoded frames", nil)
	}

	var sumBright, sumSat, sumContrast float64
	hueCount := make(map[string]int)
	frames := sampleFrames(shot.FramePaths, framesPerShot)

	for _, fp := range frames {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		img, err := loadImage(fp)
		if err != nil {
			return Result{}, err
		}
		b := img.Bounds()
		var bright, sat float64
		var lum []float64
		// Subsample the pixel grid; full resolution adds nothing to
		// whole-frame statistics.
		step := max(1, b.Dx()/160)
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				r, g, bl, _ := img.At(x, y).RGBA()
				rf, gf, bf := float64(r)/65535, float64(g)/65535, float64(bl)/65535
				maxc := math.Max(rf, math.Max(gf, bf))
				minc := math.Min(rf, math.Min(gf, bf))
				v := maxc
				s := 0.0
				if maxc > 0 {
					s = (maxc - minc) / maxc
				}
				bright += v
				sat += s
				lum = append(lum, 0.299*rf+0.587*gf+0.114*bf)
				if s > 0.2 && v > 0.15 {
					hueCount[hueName(rf, gf, bf, maxc, minc)]++
				}
			}
		}
		n := float64(len(lum))
		if n == 0 {
			continue
		}
		sumBright += bright / n
		sumSat += sat / n
		sumContrast += stddev(lum)
	}

	nf := float64(len(frames))
	stats := &vab.ColorStats{
		Brightness:     round3(sumBright / nf),
		Saturation:     round3(sumSat / nf),
		Contrast:       round3(sumContrast / nf),
		DominantColors: topHues(hueCount, 3),
	}
	return Result{
		Color:      stats,
		Provenance: provenance("color-comp", colorVersion, "", colorParams{Frames: framesPerShot}),
	}, nil
}

func hueName(r, g, b, maxc, minc float64) string {
	d := maxc - minc
	if d == 0 {
		return "gray"
	}
	var h float64
	switch maxc {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	best, bestDist := "red", 360.0
	for _, hn := range hueNames {
		dist := math.Abs(h - hn.deg)
		if dist > 180 {
			dist = 360 - dist
		}
		if dist < bestDist {
			best, bestDist = hn.name, dist
		}
	}
	return best
}

func topHues(counts map[string]int, n int) []string {
	type hc struct {
		name  string
		count int
	}
	list := make([]hc, 0, len(counts))
	for name, c := range counts {
		list = append(list, hc{name, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].name < list[j].name
	})
	out := make([]string, 0, n)
	for i := 0; i < len(list) && i < n; i++ {
		out = append(out, list[i].name)
	}
	return out
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var m float64
	for _, v := range vals {
		m += v
	}
	m /= float64(len(vals))
	var s float64
	for _, v := range vals {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(vals)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
