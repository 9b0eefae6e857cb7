// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"

	"github.com/framely/eyes/internal/vab"
)

// The heuristic engines below are the default model backends. They stand in
// for the GPU-hosted model runtimes (which are deployed out of process) and
// keep the whole pipeline runnable and deterministic on any machine: the
// same frame bytes always yield the same detections.

var objectLabels = []string{
	"person", "car", "dog", "cat", "chair", "bottle",
	"screen", "plant", "cup", "book", "phone", "bag",
}

// engineSeed derives a deterministic seed from frame content and region.
func engineSeed(framePath string, region Tile, salt string) (uint64, error) {
	data, err := os.ReadFile(framePath)
	if err != nil {
		return 0, InputDefect("read frame", err)
	}
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "%s:%d:%d:%d:%d", salt, region.X, region.Y, region.W, region.H)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), nil
}

// splitmix64 advances a deterministic PRNG state.
func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func unitFloat(state *uint64) float64 {
	return float64(splitmix64(state)>>11) / float64(1<<53)
}

// HeuristicObjectEngine emits content-hash seeded detections.
type HeuristicObjectEngine struct{}

func (HeuristicObjectEngine) Name() string    { return "yolo-heuristic" }
func (HeuristicObjectEngine) Version() string { return "0.9.2" }
func (HeuristicObjectEngine) Ckpt() string    { return "heuristic-v1" }

func (HeuristicObjectEngine) PredictRegion(ctx context.Context, framePath string, region Tile, confThreshold float64) ([]vab.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed, err := engineSeed(framePath, region, "objects")
	if err != nil {
		return nil, err
	}
	state := seed
	n := int(splitmix64(&state) % 4) // 0..3 detections per region
	objs := make([]vab.Object, 0, n)
	for i := 0; i < n; i++ {
		cls := int(splitmix64(&state) % uint64(len(objectLabels)))
		conf := 0.2 + 0.8*unitFloat(&state)
		if conf < confThreshold {
			continue
		}
		w := float64(region.W)
		h := float64(region.H)
		x1 := unitFloat(&state) * w * 0.7
		y1 := unitFloat(&state) * h * 0.7
		bw := 10 + unitFloat(&state)*(w-x1-10)*0.5
		bh := 10 + unitFloat(&state)*(h-y1-10)*0.5
		objs = append(objs, vab.Object{
			Label:   objectLabels[cls],
			Conf:    round3(conf),
			BBox:    [4]float64{x1, y1, x1 + bw, y1 + bh},
			AreaPx:  round2(bw * bh),
			ClassID: cls,
		})
	}
	return objs, nil
}

// HeuristicFaceEngine emits at most one face per frame, seeded by content.
type HeuristicFaceEngine struct{}

func (HeuristicFaceEngine) Name() string    { return "face-heuristic" }
func (HeuristicFaceEngine) Version() string { return "0.9.1" }
func (HeuristicFaceEngine) Ckpt() string    { return "heuristic-v1" }

func (HeuristicFaceEngine) DetectFaces(ctx context.Context, framePath string) ([]vab.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed, err := engineSeed(framePath, Tile{}, "faces")
	if err != nil {
		return nil, err
	}
	state := seed
	if splitmix64(&state)%3 != 0 { // faces in roughly a third of frames
		return nil, nil
	}
	x := 50 + unitFloat(&state)*200
	y := 40 + unitFloat(&state)*120
	size := 40 + unitFloat(&state)*80
	return []vab.Face{{
		BBox: [4]float64{x, y, x + size, y + size*1.3},
		Conf: round3(0.6 + 0.4*unitFloat(&state)),
	}}, nil
}

// HeuristicOCREngine emits a caption-like region for a fraction of frames.
type HeuristicOCREngine struct{}

func (HeuristicOCREngine) Name() string    { return "ocr-heuristic" }
func (HeuristicOCREngine) Version() string { return "0.9.0" }
func (HeuristicOCREngine) Ckpt() string    { return "heuristic-v1" }

func (HeuristicOCREngine) Recognize(ctx context.Context, framePath string) ([]vab.TextRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed, err := engineSeed(framePath, Tile{}, "ocr")
	if err != nil {
		return nil, err
	}
	state := seed
	if splitmix64(&state)%4 != 0 {
		return nil, nil
	}
	words := []string{"SALE", "NEWS", "LIVE", "SUBSCRIBE", "BREAKING"}
	text := words[splitmix64(&state)%uint64(len(words))]
	x := 20 + unitFloat(&state)*100
	y := 200 + unitFloat(&state)*100
	return []vab.TextRegion{{
		Text:     text,
		BBox:     [4]float64{x, y, x + float64(12*len(text)), y + 24},
		Conf:     round3(0.7 + 0.3*unitFloat(&state)),
		FontLike: "sans-serif",
	}}, nil
}

// NearestSREngine upscales frames with nearest-neighbour interpolation and
// writes the result next to the source. Not a learned model, but the output
// geometry matches what the fine pass expects.
type NearestSREngine struct{}

func (NearestSREngine) Name() string    { return "sr-nearest" }
func (NearestSREngine) Version() string { return "0.8.0" }
func (NearestSREngine) Ckpt() string    { return "nearest" }

func (NearestSREngine) Upscale(ctx context.Context, framePath string, factor int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := loadImage(framePath)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	w, h := b.Dx()*factor, b.Dy()*factor
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(b.Min.X+x/factor, b.Min.Y+y/factor))
		}
	}

	ext := ".jpg"
	base := strings.TrimSuffix(framePath, ext)
	outPath := fmt.Sprintf("%s_sr%dx%s", base, factor, ext)
	f, err := os.Create(outPath)
	if err != nil {
		return "", Internal("create upscaled frame", err)
	}
	defer func() { _ = f.Close() }()
	if err := jpeg.Encode(f, out, &jpeg.Options{Quality: 92}); err != nil {
		return "", Internal("encode upscaled frame", err)
	}
	return outPath, nil
}

// ShrinkMaskEngine tightens boxes by a fixed margin, approximating what a
// segmentation pass does to loose detector boxes.
type ShrinkMaskEngine struct{}

func (ShrinkMaskEngine) Name() string    { return "mask-shrink" }
func (ShrinkMaskEngine) Version() string { return "0.7.0" }
func (ShrinkMaskEngine) Ckpt() string    { return "shrink-5pct" }

func (ShrinkMaskEngine) Refine(ctx context.Context, framePath string, obj vab.Object) (vab.Object, error) {
	if err := ctx.Err(); err != nil {
		return vab.Object{}, err
	}
	w := obj.BBox[2] - obj.BBox[0]
	h := obj.BBox[3] - obj.BBox[1]
	mx, my := w*0.05, h*0.05
	out := obj
	out.BBox = [4]float64{obj.BBox[0] + mx, obj.BBox[1] + my, obj.BBox[2] - mx, obj.BBox[3] - my}
	out.AreaPx = round2((out.BBox[2] - out.BBox[0]) * (out.BBox[3] - out.BBox[1]))
	return out, nil
}
