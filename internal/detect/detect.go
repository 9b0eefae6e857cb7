// SPDX-License-Identifier: MIT

// Package detect defines the uniform detector contract and the adapters that
// expose each analysis capability through it.
//
// A detector is a pure capability: same shot, same params, same output (up to
// floating-point tolerance). Model engines are injected interfaces so the
// heavy weights stay out of this package; the bundled heuristic engines keep
// the pipeline runnable end-to-end without any accelerator.
package detect

import (
	"context"
	"time"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/hashing"
	"github.com/framely/eyes/internal/vab"
)

// Kind names a detector slot in the bundle.
type Kind string

const (
	KindObjectsCoarse Kind = "objects_coarse"
	KindObjectsTiled  Kind = "objects_tiled"
	KindSuperres      Kind = "superres"
	KindObjectsFine   Kind = "objects_fine"
	KindMaskRefine    Kind = "mask_refine"
	KindFaces         Kind = "faces"
	KindText          Kind = "text"
	KindColor         Kind = "color"
	KindMotion        Kind = "motion"
	KindAudio         Kind = "audio"
	KindTransition    Kind = "transition"
	KindReasoning     Kind = "reasoning"
)

// Skip reasons recorded in a slot's provenance stub. The scheduler writes
// them; the bundle assembler folds them into the status verdict.
const (
	ReasonTilingAblated = "tiling_disabled_by_ablation"
	ReasonSRAblated     = "sr_disabled_by_ablation"
	ReasonSRDisabled    = "sr_disabled"
	ReasonMaskDisabled  = "mask_refinement_disabled"
	ReasonRequiresSR    = "requires_superres"
	ReasonInputDefect   = "input_defect"
	ReasonInternalError = "internal_error"
	ReasonExternalError = "external_error"
	ReasonNoObjects     = "no_objects_to_refine"
)

// Class determines pool admission for a detector.
type Class string

const (
	ClassGPUHeavy Class = "gpu_heavy"
	ClassGPULight Class = "gpu_light"
	ClassCPU      Class = "cpu"
	ClassIO       Class = "io"
)

// NeedsGPU reports whether the class must acquire a pool permit.
func (c Class) NeedsGPU() bool {
	return c == ClassGPUHeavy || c == ClassGPULight
}

// AudioWindow is the audio span of a shot in seconds.
type AudioWindow struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

// Shot is the immutable per-shot descriptor every detector consumes.
// It is derived once during prep.
type Shot struct {
	ShotID     string
	StartFrame int
	EndFrame   int
	FrameCount int
	DurationS  float64
	FPS        float64
	Width      int
	Height     int

	// FramePaths are the decoded keyframes of this shot, in frame order.
	FramePaths []string

	// AudioPath is empty for videos without an audio track.
	AudioPath   string
	AudioWindow AudioWindow

	// PrevLastFramePath is the last frame of the preceding shot, used by
	// transition classification. Empty for the first shot.
	PrevLastFramePath string

	// Objects carries the surviving detections of earlier chain passes for
	// detectors that consume them (fine pass, mask refinement).
	Objects []vab.Object

	// SRFramePaths are upscaled frames produced by super-resolution for the
	// fine object pass.
	SRFramePaths []string
}

// Result is a detector's output for one shot. Only the fields relevant to the
// detector's kind are populated; Provenance is always populated.
type Result struct {
	Provenance vab.Provenance

	Objects    []vab.Object
	Faces      []vab.Face
	Text       []vab.TextRegion
	Color      *vab.ColorStats
	Motion     *vab.MotionStats
	Saliency   *vab.SaliencyStats
	Audio      *vab.AudioStats
	Transition *vab.Transition

	// SRUsed and SRFramePaths are set by the super-resolution pass.
	SRUsed       bool
	SRFramePaths []string
}

// Detector is the uniform contract implemented by every adapter.
type Detector interface {
	Kind() Kind
	Class() Class
	Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error)
}

// provenance builds a fully populated provenance entry. The params
// fingerprint is a stable hash of the detector's config slice; a hashing
// failure is a programming error in the params type and is surfaced as an
// empty fingerprint rather than failing the detection.
func provenance(tool, version, ckpt string, params any) vab.Provenance {
	fp, err := hashing.Object(params)
	if err != nil {
		fp = ""
	}
	return vab.Provenance{
		Tool:       tool,
		Version:    version,
		Ckpt:       ckpt,
		ParamsHash: fp,
		TS:         time.Now().UTC().Format(time.RFC3339),
	}
}

// SkippedProvenance builds the provenance stub for a detector that was
// disabled by ablation or the fallback ladder.
func SkippedProvenance(kind Kind, reason string) vab.Provenance {
	return vab.Provenance{
		Tool:          string(kind),
		Version:       "skipped",
		SkippedReason: reason,
		TS:            time.Now().UTC().Format(time.RFC3339),
	}
}
