// SPDX-License-Identifier: MIT

package detect

import (
	"sort"

	"github.com/framely/eyes/internal/vab"
)

// Detection pass names, in chain order. NMS tie-breaks prefer earlier passes.
const (
	PassCoarse = "coarse"
	PassTiled  = "tiled"
	PassFine   = "fine"
)

var passRank = map[string]int{PassCoarse: 0, PassTiled: 1, PassFine: 2}

// IoU computes intersection-over-union of two xyxy boxes.
func IoU(a, b [4]float64) float64 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS suppresses overlapping detections across passes. Candidates are ranked
// by confidence descending, ties broken by earliest pass. Suppression applies
// within the same label only.
func NMS(dets []vab.Object, iouThreshold float64) []vab.Object {
	if len(dets) == 0 {
		return nil
	}
	ranked := append([]vab.Object(nil), dets...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Conf != ranked[j].Conf {
			return ranked[i].Conf > ranked[j].Conf
		}
		return passRank[ranked[i].Pass] < passRank[ranked[j].Pass]
	})

	kept := make([]vab.Object, 0, len(ranked))
	for _, cand := range ranked {
		suppressed := false
		for _, k := range kept {
			if k.Label == cand.Label && IoU(k.BBox, cand.BBox) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

// Tile is one tile placement in frame coordinates.
type Tile struct {
	X, Y, W, H int
}

// TileGrid computes the tile placements for a frame. Placements are clamped
// to the frame so a frame smaller than the tile size degenerates to a single
// full-frame tile. With stride < size adjacent tiles overlap and the union
// covers every pixel.
func TileGrid(w, h, size, stride int) []Tile {
	if w <= 0 || h <= 0 {
		return nil
	}
	if size <= 0 {
		size = w
	}
	if stride <= 0 {
		stride = size
	}
	if w <= size && h <= size {
		return []Tile{{X: 0, Y: 0, W: w, H: h}}
	}

	xs := tileOffsets(w, size, stride)
	ys := tileOffsets(h, size, stride)
	tiles := make([]Tile, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			tw, th := size, size
			if x+tw > w {
				tw = w - x
			}
			if y+th > h {
				th = h - y
			}
			tiles = append(tiles, Tile{X: x, Y: y, W: tw, H: th})
		}
	}
	return tiles
}

// tileOffsets returns start offsets along one axis, including a final
// placement flush with the far edge so no strip is left uncovered.
func tileOffsets(extent, size, stride int) []int {
	if extent <= size {
		return []int{0}
	}
	var offs []int
	for o := 0; o+size <= extent; o += stride {
		offs = append(offs, o)
	}
	last := extent - size
	if len(offs) == 0 || offs[len(offs)-1] != last {
		offs = append(offs, last)
	}
	return offs
}

// UnionCoveragePct computes the fraction of frame pixels covered by the
// union of tile placements, as a percentage. Tiles are axis-aligned and
// produced by TileGrid, so a scanline sweep over distinct x/y cuts suffices.
func UnionCoveragePct(w, h int, tiles []Tile) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	if len(tiles) == 0 {
		return 0
	}
	covered := 0
	// TileGrid placements form a grid; the union area is the union of
	// covered column and row intervals.
	xCovered := intervalUnion(len(tiles), func(i int) (int, int) { return tiles[i].X, tiles[i].X + tiles[i].W }, w)
	yCovered := intervalUnion(len(tiles), func(i int) (int, int) { return tiles[i].Y, tiles[i].Y + tiles[i].H }, h)
	covered = xCovered * yCovered
	return 100.0 * float64(covered) / float64(w*h)
}

func intervalUnion(n int, at func(int) (int, int), limit int) int {
	type iv struct{ a, b int }
	ivs := make([]iv, 0, n)
	for i := 0; i < n; i++ {
		a, b := at(i)
		if b > limit {
			b = limit
		}
		if a < b {
			ivs = append(ivs, iv{a, b})
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].a < ivs[j].a })
	total, end := 0, -1
	for _, v := range ivs {
		if v.a > end {
			total += v.b - v.a
			end = v.b
		} else if v.b > end {
			total += v.b - end
			end = v.b
		}
	}
	return total
}
