// SPDX-License-Identifier: MIT

// Package merge assembles per-shot detector results into the final bundle:
// scene grouping, global statistics, risk synthesis, provenance dedup and
// the quality-gate verdict.
package merge

import (
	"math"
	"sort"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/coverage"
	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/vab"
)

// calibrationTable carries the expected operating points per detector
// family, measured offline on the validation set.
var calibrationTable = []vab.Calibration{
	{Family: "objects", ExpectedTPR: 0.94, ExpectedFPR: 0.06},
	{Family: "ocr", ExpectedTPR: 0.97, ExpectedFPR: 0.03},
	{Family: "audio", ExpectedTPR: 0.98, ExpectedFPR: 0.02},
}

// informationalReasons mark a capability the caller asked to turn off. They
// surface in status.reasons without forfeiting "ok".
var informationalReasons = map[string]bool{
	detect.ReasonSRAblated:     true,
	detect.ReasonTilingAblated: true,
}

// structuralSkips follow from the shape of the input or from another reason
// that is already recorded; they stay at shot level.
var structuralSkips = map[string]bool{
	detect.ReasonNoAdjacentShot: true,
	detect.ReasonNoObjects:      true,
	detect.ReasonRequiresSR:     true,
}

// skipReasons returns the distinct skip reasons across all shot slots and
// scene narratives, sorted so bundles are stable across runs.
func skipReasons(shots []vab.Shot, scenes []vab.Scene) []string {
	set := make(map[string]struct{})
	for _, s := range shots {
		for _, r := range s.Detectors.Skipped {
			set[r] = struct{}{}
		}
	}
	for _, sc := range scenes {
		if sc.Narrative != nil && sc.Narrative.SkippedReason != "" {
			set[sc.Narrative.SkippedReason] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Input is everything the assembler needs beyond the shots themselves.
type Input struct {
	VideoID   string
	VideoPath string
	SHA256    string

	DurationS float64
	FPS       float64
	Width     int
	Height    int

	Shots      []vab.Shot
	SceneStory func(scene *vab.Scene) // optional, fills Narrative in place

	Provenance []vab.Provenance

	Coverage vab.Coverage
	// Reasons carries the ladder steps that fired; Build adds skip reasons,
	// gate failures and the budget verdict on top.
	Reasons []string
	// InternalErrorPct is the share of detector invocations that failed with
	// internal errors; above the budget the bundle degrades.
	InternalErrorPct  float64
	InternalBudgetPct float64

	LadderMaxStep int
	Metrics       *vab.VideoMetrics
}

// Build assembles and gates the bundle. The caller validates against the
// schema before persisting.
func Build(cfg *config.Config, in Input) *vab.Bundle {
	scenes := GroupScenes(in.VideoID, in.Shots, in.FPS, cfg.Merge)
	if in.SceneStory != nil {
		for i := range scenes {
			in.SceneStory(&scenes[i])
		}
	}

	risks := SynthesizeRisks(in.Shots, cfg, in.LadderMaxStep)

	// Ladder reasons always forfeit "ok": a step fired means the pipeline
	// gave something up under pressure.
	reasons := append([]string(nil), in.Reasons...)
	degraded := len(in.Reasons) > 0
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		seen[r] = true
	}
	for _, r := range skipReasons(in.Shots, scenes) {
		if structuralSkips[r] {
			continue
		}
		if !informationalReasons[r] {
			degraded = true
		}
		if !seen[r] {
			seen[r] = true
			reasons = append(reasons, r)
		}
	}

	gate := coverage.Gate(in.Coverage, cfg.Coverage)
	reasons = append(reasons, gate...)
	if len(gate) > 0 {
		degraded = true
	}
	if in.InternalErrorPct > in.InternalBudgetPct {
		reasons = append(reasons, "internal_error_budget_exceeded")
		degraded = true
	}

	state := vab.StateOK
	if degraded {
		state = vab.StateDegraded
	}

	return &vab.Bundle{
		SchemaVersion: vab.SchemaVersion,
		Status: vab.Status{
			State:    state,
			Reasons:  reasons,
			Coverage: in.Coverage,
		},
		Video: vab.VideoMeta{
			VideoID: in.VideoID,
			Path:    in.VideoPath,
			SHA256:  in.SHA256,
			Metrics: in.Metrics,
		},
		Global:      globalStats(in),
		Scenes:      scenes,
		Shots:       in.Shots,
		Tracks:      []vab.Track{},
		Risks:       risks,
		Provenance:  DedupProvenance(in.Provenance),
		Calibration: append([]vab.Calibration(nil), calibrationTable...),
	}
}

// DedupProvenance removes duplicate tool entries while preserving first-seen
// order. Two entries are the same run configuration when tool, version and
// params fingerprint all match.
func DedupProvenance(entries []vab.Provenance) []vab.Provenance {
	seen := make(map[string]struct{}, len(entries))
	out := make([]vab.Provenance, 0, len(entries))
	for _, e := range entries {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func globalStats(in Input) vab.GlobalStats {
	stats := vab.GlobalStats{
		TotalFrames: int(math.Round(in.DurationS * in.FPS)),
		DurationS:   round2(in.DurationS),
		FPS:         in.FPS,
		Resolution:  vab.Resolution{W: in.Width, H: in.Height},
		Detections: vab.DetectionStats{
			ObjectCounts: map[string]int{},
		},
	}
	for _, shot := range in.Shots {
		stats.Detections.TotalObjects += len(shot.Detectors.Objects)
		stats.Detections.TotalFaces += len(shot.Detectors.Faces)
		stats.Detections.TotalTextRegions += len(shot.Detectors.Text)
		for _, o := range shot.Detectors.Objects {
			stats.Detections.ObjectCounts[o.Label]++
		}
	}
	stats.Detections.UniqueObjectClasses = len(stats.Detections.ObjectCounts)
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
