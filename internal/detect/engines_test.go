// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/vab"
)

func writeTestJPEG(t *testing.T, path string, w, h int, seed uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*3) + seed,
				G: uint8(y * 2),
				B: uint8(x+y) ^ seed,
				A: 255,
			})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
}

func TestHeuristicObjectEngineIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	writeTestJPEG(t, frame, 160, 120, 7)

	eng := HeuristicObjectEngine{}
	region := Tile{X: 0, Y: 0, W: 160, H: 120}

	a, err := eng.PredictRegion(context.Background(), frame, region, 0.0)
	require.NoError(t, err)
	b, err := eng.PredictRegion(context.Background(), frame, region, 0.0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHeuristicObjectEngineVariesWithContent(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.jpg")
	f2 := filepath.Join(dir, "b.jpg")
	writeTestJPEG(t, f1, 160, 120, 1)
	writeTestJPEG(t, f2, 160, 120, 200)

	eng := HeuristicObjectEngine{}
	region := Tile{X: 0, Y: 0, W: 160, H: 120}
	a, err := eng.PredictRegion(context.Background(), f1, region, 0.0)
	require.NoError(t, err)
	b, err := eng.PredictRegion(context.Background(), f2, region, 0.0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNearestSREngineGeometry(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	writeTestJPEG(t, frame, 40, 30, 3)

	eng := NearestSREngine{}
	out, err := eng.Upscale(context.Background(), frame, 4)
	require.NoError(t, err)

	img, err := loadImage(out)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestShrinkMaskEngineTightensBox(t *testing.T) {
	eng := ShrinkMaskEngine{}
	in := vab.Object{Label: "person", Conf: 0.9, BBox: [4]float64{10, 10, 110, 110}, AreaPx: 10000}
	out, err := eng.Refine(context.Background(), "", in)
	require.NoError(t, err)
	assert.Greater(t, out.BBox[0], in.BBox[0])
	assert.Less(t, out.BBox[2], in.BBox[2])
	assert.Less(t, out.AreaPx, in.AreaPx)
}
