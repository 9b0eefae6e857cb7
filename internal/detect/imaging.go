// SPDX-License-Identifier: MIT

package detect

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// grayImage is a decoded luminance plane in [0,1].
type grayImage struct {
	pix  []float64
	w, h int
}

// loadImage decodes a frame from disk. Decode failures are input defects:
// the frame exists but cannot be analyzed.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, InputDefect("open frame", err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, InputDefect(fmt.Sprintf("decode frame %s", path), err)
	}
	return img, nil
}

// loadGray decodes a frame and converts it to a luminance plane.
func loadGray(path string) (*grayImage, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	return toGray(img), nil
}

func toGray(img image.Image) *grayImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &grayImage{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma.
			lum := 0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(bl)
			g.pix[y*w+x] = lum / 65535.0
		}
	}
	return g
}

// resizeGray nearest-neighbour downscales to the target width, preserving
// aspect ratio. Upscaling is never requested by callers.
func resizeGray(g *grayImage, targetW int) *grayImage {
	if targetW <= 0 || g.w <= targetW {
		return g
	}
	scale := float64(g.w) / float64(targetW)
	targetH := int(float64(g.h) / scale)
	if targetH < 1 {
		targetH = 1
	}
	out := &grayImage{pix: make([]float64, targetW*targetH), w: targetW, h: targetH}
	for y := 0; y < targetH; y++ {
		sy := int(float64(y) * scale)
		if sy >= g.h {
			sy = g.h - 1
		}
		for x := 0; x < targetW; x++ {
			sx := int(float64(x) * scale)
			if sx >= g.w {
				sx = g.w - 1
			}
			out.pix[y*targetW+x] = g.pix[sy*g.w+sx]
		}
	}
	return out
}

func (g *grayImage) mean() float64 {
	if len(g.pix) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range g.pix {
		sum += v
	}
	return sum / float64(len(g.pix))
}

// ssim computes the global structural similarity index of two equally sized
// luminance planes. Inputs of different sizes are compared at the smaller
// common size.
func ssim(a, b *grayImage) float64 {
	w := min(a.w, b.w)
	h := min(a.h, b.h)
	if w == 0 || h == 0 {
		return 0
	}
	const (
		c1 = 0.01 * 0.01
		c2 = 0.03 * 0.03
	)
	var muA, muB float64
	n := float64(w * h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			muA += a.pix[y*a.w+x]
			muB += b.pix[y*b.w+x]
		}
	}
	muA /= n
	muB /= n

	var varA, varB, cov float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			da := a.pix[y*a.w+x] - muA
			db := b.pix[y*b.w+x] - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	if den == 0 {
		return 0
	}
	return num / den
}

// absDiffMean computes the mean absolute luminance difference of two planes.
func absDiffMean(a, b *grayImage) float64 {
	w := min(a.w, b.w)
	h := min(a.h, b.h)
	if w == 0 || h == 0 {
		return 0
	}
	sum := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += math.Abs(a.pix[y*a.w+x] - b.pix[y*b.w+x])
		}
	}
	return sum / float64(w*h)
}
