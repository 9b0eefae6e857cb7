// SPDX-License-Identifier: MIT

// Package coverage measures how much of a video the pipeline actually
// analyzed and turns the measurements into the quality-gate verdict.
package coverage

import (
	"fmt"
	"math"
	"sync"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/vab"
)

// Gate reason strings recorded in status.reasons.
const (
	ReasonFramesBelowThreshold = "frames_analyzed_below_threshold"
	ReasonLUFSBelowThreshold   = "lufs_trace_below_threshold"
	ReasonSTOIBelowThreshold   = "stoi_coverage_below_threshold"
)

// Accumulator gathers per-shot coverage facts. Safe for concurrent use; the
// fan-out records from multiple shot goroutines.
type Accumulator struct {
	mu sync.Mutex

	framesTotal    int
	framesAnalyzed int

	audioWindows int
	lufsTraced   int

	speechShots  int
	stoiComputed int

	srUsed bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// RecordShotFrames registers a shot's frame totals: how many source frames
// the shot spans and how many were decoded and analyzed.
func (a *Accumulator) RecordShotFrames(total, analyzed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.framesTotal += total
	a.framesAnalyzed += analyzed
}

// RecordAudio registers the audio outcome of one shot. hadWindow is false
// for videos without an audio track (the window then does not count against
// the LUFS trace).
func (a *Accumulator) RecordAudio(hadWindow, lufsTraced, hasSpeech, stoiComputed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hadWindow {
		a.audioWindows++
		if lufsTraced {
			a.lufsTraced++
		}
	}
	if hasSpeech {
		a.speechShots++
		if stoiComputed {
			a.stoiComputed++
		}
	}
}

// RecordSRUsed marks that super-resolution ran for at least one shot.
func (a *Accumulator) RecordSRUsed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.srUsed = true
}

// Snapshot computes the coverage block. The spatial percentage comes from
// the actual tile placements over the video's frame geometry; analyzed frame
// percentage is scaled by the stride (analyzing every frame at stride 1 is
// 100%, stride 2 at most 50% of source frames, reported against the
// stride-adjusted target).
func (a *Accumulator) Snapshot(cfg *config.Config, width, height int) vab.Coverage {
	a.mu.Lock()
	defer a.mu.Unlock()

	tiles := detect.TileGrid(width, height, cfg.Detect.Tile.Size, cfg.Detect.Tile.Stride)
	spatialPct := detect.UnionCoveragePct(width, height, tiles)

	framesPct := 0.0
	if a.framesTotal > 0 {
		stride := cfg.Runtime.FrameStride
		if stride < 1 {
			stride = 1
		}
		expected := int(math.Ceil(float64(a.framesTotal) / float64(stride)))
		if expected > 0 {
			framesPct = 100 * float64(a.framesAnalyzed) / float64(expected)
		}
		if framesPct > 100 {
			framesPct = 100
		}
	}

	lufsPct := 100.0
	if a.audioWindows > 0 {
		lufsPct = 100 * float64(a.lufsTraced) / float64(a.audioWindows)
	}

	// No speech anywhere means there was nothing for STOI to measure, which
	// counts as full coverage.
	stoiPct := 100.0
	if a.speechShots > 0 {
		stoiPct = 100 * float64(a.stoiComputed) / float64(a.speechShots)
	}

	return vab.Coverage{
		Spatial: vab.SpatialCoverage{
			TileSize:         cfg.Detect.Tile.Size,
			Stride:           cfg.Detect.Tile.Stride,
			SRUsed:           a.srUsed,
			PixelsCoveredPct: round1(spatialPct),
			MinDetectablePx:  cfg.Coverage.MinDetectablePx,
		},
		Temporal: vab.TemporalCoverage{
			FrameStride:       cfg.Runtime.FrameStride,
			FramesAnalyzedPct: round1(framesPct),
		},
		Audio: vab.AudioCoverage{
			LUFSTracePct: round1(lufsPct),
			STOIPct:      round1(stoiPct),
		},
	}
}

// Gate evaluates the coverage thresholds and returns the reasons for every
// dimension that falls short. An empty slice means all gates pass.
func Gate(cov vab.Coverage, th config.CoverageThresholds) []string {
	var reasons []string
	if cov.Temporal.FramesAnalyzedPct < th.FramesAnalyzedPct {
		reasons = append(reasons, fmt.Sprintf("%s:%.1f<%.1f",
			ReasonFramesBelowThreshold, cov.Temporal.FramesAnalyzedPct, th.FramesAnalyzedPct))
	}
	if cov.Audio.LUFSTracePct < th.LUFSTracePct {
		reasons = append(reasons, fmt.Sprintf("%s:%.1f<%.1f",
			ReasonLUFSBelowThreshold, cov.Audio.LUFSTracePct, th.LUFSTracePct))
	}
	if cov.Audio.STOIPct < th.STOIPct {
		reasons = append(reasons, fmt.Sprintf("%s:%.1f<%.1f",
			ReasonSTOIBelowThreshold, cov.Audio.STOIPct, th.STOIPct))
	}
	return reasons
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
