// SPDX-License-Identifier: MIT

package merge

import (
	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

// Risk type names.
const (
	RiskLowIntelligibility = "low_dialogue_intelligibility"
	RiskAudioClipping      = "audio_clipping"
	RiskCaptionFaceOverlap = "caption_face_overlap"
	RiskDegradedDetection  = "degraded_detection"
)

// clippingPeakDBTP is the true-peak ceiling above which audio is flagged.
const clippingPeakDBTP = -1.0

// SynthesizeRisks scans merged shots for quality and safety findings.
// ladderMaxStep is the highest fired fallback position; a job that degraded
// past the second step gets a job-level degraded_detection risk.
func SynthesizeRisks(shots []vab.Shot, cfg *config.Config, ladderMaxStep int) []vab.Risk {
	var risks []vab.Risk

	for _, shot := range shots {
		if a := shot.Detectors.Audio; a != nil {
			if a.Dialogue.Present && a.Dialogue.STOI < cfg.Audio.STOIMinOK {
				risks = append(risks, vab.Risk{
					ShotID:   shot.ShotID,
					Type:     RiskLowIntelligibility,
					Severity: vab.SeverityHigh,
					Metric:   map[string]float64{"stoi": a.Dialogue.STOI},
				})
			}
			if a.TruePeakDBTP > clippingPeakDBTP {
				risks = append(risks, vab.Risk{
					ShotID:   shot.ShotID,
					Type:     RiskAudioClipping,
					Severity: vab.SeverityMed,
					Metric:   map[string]float64{"true_peak_dbtp": a.TruePeakDBTP},
				})
			}
		}
		if overlap, iou := captionFaceOverlap(shot.Detectors.Text, shot.Detectors.Faces); overlap {
			risks = append(risks, vab.Risk{
				ShotID:   shot.ShotID,
				Type:     RiskCaptionFaceOverlap,
				Severity: vab.SeverityLow,
				Metric:   map[string]float64{"iou": iou},
			})
		}
	}

	if ladderMaxStep > 2 {
		risks = append(risks, vab.Risk{
			Type:     RiskDegradedDetection,
			Severity: vab.SeverityMed,
			Metric:   map[string]float64{"ladder_step": float64(ladderMaxStep)},
		})
	}
	return risks
}

// captionFaceOverlap reports whether any text region intersects any face box
// and the largest such IoU.
func captionFaceOverlap(text []vab.TextRegion, faces []vab.Face) (bool, float64) {
	best := 0.0
	for _, t := range text {
		for _, f := range faces {
			if iou := boxIoU(t.BBox, f.BBox); iou > best {
				best = iou
			}
		}
	}
	return best > 0, round3(best)
}

func boxIoU(a, b [4]float64) float64 {
	x1 := maxF(a[0], b[0])
	y1 := maxF(a[1], b[1])
	x2 := minF(a[2], b[2])
	y2 := minF(a[3], b[3])
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

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
