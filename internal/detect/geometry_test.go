// SPDX-License-Identifier: MIT

package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/vab"
)

func TestIoU(t *testing.T) {
	a := [4]float64{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Equal(t, 0.0, IoU(a, [4]float64{20, 20, 30, 30}))

	// Half overlap: inter 50, union 150.
	b := [4]float64{5, 0, 15, 10}
	assert.InDelta(t, 50.0/150.0, IoU(a, b), 1e-9)
}

func TestNMSKeepsHighestConfidencePerLabel(t *testing.T) {
	dets := []vab.Object{
		{Label: "person", Conf: 0.6, BBox: [4]float64{0, 0, 10, 10}, Pass: PassCoarse},
		{Label: "person", Conf: 0.9, BBox: [4]float64{1, 1, 11, 11}, Pass: PassTiled},
		{Label: "car", Conf: 0.5, BBox: [4]float64{0, 0, 10, 10}, Pass: PassCoarse},
	}
	kept := NMS(dets, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, "person", kept[0].Label)
	assert.Equal(t, 0.9, kept[0].Conf)
	assert.Equal(t, "car", kept[1].Label)
}

func TestNMSTieBreaksByEarlierPass(t *testing.T) {
	dets := []vab.Object{
		{Label: "dog", Conf: 0.7, BBox: [4]float64{0, 0, 10, 10}, Pass: PassFine},
		{Label: "dog", Conf: 0.7, BBox: [4]float64{0, 0, 10, 10}, Pass: PassCoarse},
	}
	kept := NMS(dets, 0.5)
	require.Len(t, kept, 1)
	assert.Equal(t, PassCoarse, kept[0].Pass)
}

func TestNMSDifferentLabelsNeverSuppress(t *testing.T) {
	dets := []vab.Object{
		{Label: "cat", Conf: 0.9, BBox: [4]float64{0, 0, 10, 10}},
		{Label: "dog", Conf: 0.8, BBox: [4]float64{0, 0, 10, 10}},
	}
	assert.Len(t, NMS(dets, 0.5), 2)
}

func TestTileGridSmallFrameIsSingleTile(t *testing.T) {
	tiles := TileGrid(320, 240, 512, 256)
	require.Len(t, tiles, 1)
	assert.Equal(t, Tile{X: 0, Y: 0, W: 320, H: 240}, tiles[0])
}

func TestTileGridCoversEveryPixel(t *testing.T) {
	cases := []struct{ w, h int }{
		{1920, 1080},
		{1280, 720},
		{640, 640},
		{513, 512},
		{1000, 300},
	}
	for _, tc := range cases {
		tiles := TileGrid(tc.w, tc.h, 512, 256)
		assert.InDelta(t, 100.0, UnionCoveragePct(tc.w, tc.h, tiles), 1e-9,
			"frame %dx%d", tc.w, tc.h)
	}
}

func TestTileGridFinalPlacementFlushWithEdge(t *testing.T) {
	tiles := TileGrid(1920, 1080, 512, 256)
	maxX, maxY := 0, 0
	for _, tile := range tiles {
		if tile.X+tile.W > maxX {
			maxX = tile.X + tile.W
		}
		if tile.Y+tile.H > maxY {
			maxY = tile.Y + tile.H
		}
	}
	assert.Equal(t, 1920, maxX)
	assert.Equal(t, 1080, maxY)
}
