// SPDX-License-Identifier: MIT

package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/vab"
)

func TestDedupProvenanceKeepsFirstSeenOrder(t *testing.T) {
	entries := []vab.Provenance{
		{Tool: "yolo", Version: "1.0", ParamsHash: "aaa"},
		{Tool: "audio", Version: "2.0", ParamsHash: "bbb"},
		{Tool: "yolo", Version: "1.0", ParamsHash: "aaa"},
		{Tool: "yolo", Version: "1.0", ParamsHash: "ccc"},
	}
	out := DedupProvenance(entries)
	require.Len(t, out, 3)
	assert.Equal(t, "yolo", out[0].Tool)
	assert.Equal(t, "audio", out[1].Tool)
	assert.Equal(t, "ccc", out[2].ParamsHash)
}

func TestSynthesizeRisksAudio(t *testing.T) {
	cfg := config.Default()
	shots := []vab.Shot{{
		ShotID: "s0",
		Detectors: vab.Detectors{Audio: &vab.AudioStats{
			TruePeakDBTP: -0.2,
			Dialogue:     vab.DialogueStats{Present: true, STOI: 0.4},
		}},
	}}
	risks := SynthesizeRisks(shots, &cfg, 0)
	require.Len(t, risks, 2)
	assert.Equal(t, RiskLowIntelligibility, risks[0].Type)
	assert.Equal(t, vab.SeverityHigh, risks[0].Severity)
	assert.Equal(t, RiskAudioClipping, risks[1].Type)
}

func TestSynthesizeRisksCaptionFaceOverlap(t *testing.T) {
	cfg := config.Default()
	shots := []vab.Shot{{
		ShotID: "s0",
		Detectors: vab.Detectors{
			Text:  []vab.TextRegion{{Text: "LIVE", BBox: [4]float64{10, 10, 60, 30}}},
			Faces: []vab.Face{{BBox: [4]float64{20, 5, 70, 50}}},
		},
	}}
	risks := SynthesizeRisks(shots, &cfg, 0)
	require.Len(t, risks, 1)
	assert.Equal(t, RiskCaptionFaceOverlap, risks[0].Type)
	assert.Greater(t, risks[0].Metric["iou"], 0.0)
}

func TestSynthesizeRisksDeepLadder(t *testing.T) {
	cfg := config.Default()
	risks := SynthesizeRisks(nil, &cfg, 3)
	require.Len(t, risks, 1)
	assert.Equal(t, RiskDegradedDetection, risks[0].Type)

	assert.Empty(t, SynthesizeRisks(nil, &cfg, 2))
}

func TestBuildStateOKWhenClean(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 10,
		FPS:       25,
		Width:     1280,
		Height:    720,
		Shots:     []vab.Shot{{ShotID: "s0", StartFrame: 0, EndFrame: 249, FrameCount: 250, DurationS: 10}},
		Coverage: vab.Coverage{
			Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 100},
			Audio:    vab.AudioCoverage{LUFSTracePct: 100, STOIPct: 100},
		},
		InternalBudgetPct: 20,
	})
	assert.Equal(t, vab.StateOK, b.Status.State)
	assert.Empty(t, b.Status.Reasons)
	assert.Equal(t, vab.SchemaVersion, b.SchemaVersion)
	assert.Equal(t, 250, b.Global.TotalFrames)
	require.Len(t, b.Scenes, 1)
	assert.NotEmpty(t, b.Calibration)
}

func TestBuildDegradesOnBudgetAndGates(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 10,
		FPS:       25,
		Shots:     []vab.Shot{{ShotID: "s0"}},
		Coverage: vab.Coverage{
			Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 50},
			Audio:    vab.AudioCoverage{LUFSTracePct: 100, STOIPct: 100},
		},
		InternalErrorPct:  30,
		InternalBudgetPct: 20,
		Reasons:           []string{"mask_refinement_disabled"},
	})
	assert.Equal(t, vab.StateDegraded, b.Status.State)
	assert.Contains(t, b.Status.Reasons, "mask_refinement_disabled")
	assert.Contains(t, b.Status.Reasons, "internal_error_budget_exceeded")
}

func fullCoverage() vab.Coverage {
	return vab.Coverage{
		Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 100},
		Audio:    vab.AudioCoverage{LUFSTracePct: 100, STOIPct: 100},
	}
}

func TestBuildDegradesOnDetectorSkips(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 4,
		FPS:       25,
		Shots: []vab.Shot{{
			ShotID: "s0",
			Detectors: vab.Detectors{Skipped: map[string]string{
				string(detect.KindReasoning): "vl_unreachable",
			}},
		}},
		Coverage:          fullCoverage(),
		InternalBudgetPct: 20,
	})
	assert.Equal(t, vab.StateDegraded, b.Status.State)
	assert.Contains(t, b.Status.Reasons, "vl_unreachable")
}

func TestBuildAblationReasonsStayInformational(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 4,
		FPS:       25,
		Shots: []vab.Shot{{
			ShotID: "s0",
			Detectors: vab.Detectors{Skipped: map[string]string{
				string(detect.KindSuperres):    detect.ReasonSRAblated,
				string(detect.KindObjectsFine): detect.ReasonRequiresSR,
			}},
		}},
		Coverage:          fullCoverage(),
		InternalBudgetPct: 20,
	})
	assert.Equal(t, vab.StateOK, b.Status.State)
	assert.Contains(t, b.Status.Reasons, detect.ReasonSRAblated)
	assert.NotContains(t, b.Status.Reasons, detect.ReasonRequiresSR)
}

func TestBuildStructuralSkipsStayAtShotLevel(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 4,
		FPS:       25,
		Shots: []vab.Shot{{
			ShotID: "s0",
			Detectors: vab.Detectors{Skipped: map[string]string{
				string(detect.KindTransition): detect.ReasonNoAdjacentShot,
				string(detect.KindMaskRefine): detect.ReasonNoObjects,
			}},
		}},
		Coverage:          fullCoverage(),
		InternalBudgetPct: 20,
	})
	assert.Equal(t, vab.StateOK, b.Status.State)
	assert.Empty(t, b.Status.Reasons)
}

func TestBuildFoldsSceneNarrativeSkips(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 4,
		FPS:       25,
		Shots:     []vab.Shot{{ShotID: "s0", EndFrame: 99, FrameCount: 100, DurationS: 4}},
		SceneStory: func(sc *vab.Scene) {
			sc.Narrative = &vab.SceneNarrative{SkippedReason: "vl_unreachable"}
		},
		Coverage:          fullCoverage(),
		InternalBudgetPct: 20,
	})
	assert.Equal(t, vab.StateDegraded, b.Status.State)
	assert.Contains(t, b.Status.Reasons, "vl_unreachable")
}

func TestGlobalStatsCountsDetections(t *testing.T) {
	cfg := config.Default()
	b := Build(&cfg, Input{
		VideoID:   "vid",
		DurationS: 4,
		FPS:       25,
		Shots: []vab.Shot{
			{ShotID: "s0", Detectors: vab.Detectors{
				Objects: []vab.Object{{Label: "person"}, {Label: "person"}, {Label: "car"}},
				Faces:   []vab.Face{{}},
			}},
			{ShotID: "s1", StartFrame: 50, Detectors: vab.Detectors{
				Objects: []vab.Object{{Label: "dog"}},
				Text:    []vab.TextRegion{{Text: "LIVE"}},
			}},
		},
		Coverage: vab.Coverage{
			Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 100},
			Audio:    vab.AudioCoverage{LUFSTracePct: 100, STOIPct: 100},
		},
		InternalBudgetPct: 20,
	})
	d := b.Global.Detections
	assert.Equal(t, 4, d.TotalObjects)
	assert.Equal(t, 1, d.TotalFaces)
	assert.Equal(t, 1, d.TotalTextRegions)
	assert.Equal(t, 3, d.UniqueObjectClasses)
	assert.Equal(t, 2, d.ObjectCounts["person"])
}
