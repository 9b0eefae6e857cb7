// SPDX-License-Identifier: MIT

// Package vab defines the Video Analysis Bundle, the single structured
// document the analyzer emits per video.
//
// Shots and scenes are owned by the bundle; cross-references between them use
// ids, never pointers. Schema evolution bumps SchemaVersion.
package vab

// SchemaVersion is the current bundle schema version.
const SchemaVersion = "1.1.0"

// Bundle states.
const (
	StateOK       = "ok"
	StateDegraded = "degraded"
	StateFailed   = "failed"
)

// Risk severities.
const (
	SeverityLow  = "low"
	SeverityMed  = "med"
	SeverityHigh = "high"
)

// Provenance identifies a single tool invocation. Entries with a non-empty
// SkippedReason are stubs for detectors disabled by ablation or fallback.
type Provenance struct {
	Tool          string `json:"tool"`
	Version       string `json:"version"`
	Ckpt          string `json:"ckpt,omitempty"`
	ParamsHash    string `json:"params_hash,omitempty"`
	SkippedReason string `json:"skipped_reason,omitempty"`
	TS            string `json:"ts"`
}

// Key returns the identity used for top-level provenance dedup.
func (p Provenance) Key() string {
	return p.Tool + "\x00" + p.Version + "\x00" + p.ParamsHash
}

// Calibration carries expected detector quality per family.
type Calibration struct {
	Family      string  `json:"family"`
	ExpectedTPR float64 `json:"expected_tpr"`
	ExpectedFPR float64 `json:"expected_fpr"`
}

// SpatialCoverage describes the pixel coverage of the tiling strategy.
type SpatialCoverage struct {
	TileSize         int     `json:"tile_size"`
	Stride           int     `json:"stride"`
	SRUsed           bool    `json:"sr_used"`
	PixelsCoveredPct float64 `json:"pixels_covered_pct"`
	MinDetectablePx  int     `json:"min_detectable_px"`
}

// TemporalCoverage describes how many frames were analyzed.
type TemporalCoverage struct {
	FrameStride       int     `json:"frame_stride"`
	FramesAnalyzedPct float64 `json:"frames_analyzed_pct"`
}

// AudioCoverage describes loudness and intelligibility coverage.
type AudioCoverage struct {
	LUFSTracePct float64 `json:"lufs_trace_pct"`
	STOIPct      float64 `json:"stoi_pct"`
}

// Coverage aggregates all coverage dimensions.
type Coverage struct {
	Spatial  SpatialCoverage  `json:"spatial"`
	Temporal TemporalCoverage `json:"temporal"`
	Audio    AudioCoverage    `json:"audio"`
}

// Status is the quality-gate verdict for the bundle.
type Status struct {
	State    string   `json:"state"`
	Reasons  []string `json:"reasons"`
	Coverage Coverage `json:"coverage"`
}

// VideoMetrics carries per-run pipeline measurements.
type VideoMetrics struct {
	LatencyMS    map[string]int64 `json:"latency_ms"`
	GPUMemMBPeak float64          `json:"gpu_mem_mb_peak"`
	Retries      int              `json:"retries"`
	OOMTrips     int              `json:"oom_trips"`
}

// VideoMeta identifies the analyzed file.
type VideoMeta struct {
	VideoID string        `json:"video_id"`
	Path    string        `json:"path"`
	SHA256  string        `json:"sha256"`
	Metrics *VideoMetrics `json:"metrics,omitempty"`
}

// Resolution in pixels.
type Resolution struct {
	W int `json:"w"`
	H int `json:"h"`
}

// DetectionStats summarise detections across the whole video.
type DetectionStats struct {
	TotalObjects        int            `json:"total_objects"`
	TotalFaces          int            `json:"total_faces"`
	TotalTextRegions    int            `json:"total_text_regions"`
	ObjectCounts        map[string]int `json:"object_counts"`
	UniqueObjectClasses int            `json:"unique_object_classes"`
}

// GlobalStats carries whole-video statistics.
type GlobalStats struct {
	TotalFrames int            `json:"total_frames"`
	DurationS   float64        `json:"duration_s"`
	FPS         float64        `json:"fps"`
	Resolution  Resolution     `json:"resolution"`
	Detections  DetectionStats `json:"detections"`
}

// Object is one detected object instance. Pass records which detection pass
// produced it (coarse, tiled, fine); MaskRefined marks mask refinement.
type Object struct {
	Label       string     `json:"label"`
	Conf        float64    `json:"conf"`
	BBox        [4]float64 `json:"bbox"`
	AreaPx      float64    `json:"area"`
	ClassID     int        `json:"class_id"`
	Pass        string     `json:"pass,omitempty"`
	MaskRefined bool       `json:"mask_refined,omitempty"`
}

// Face is one detected face.
type Face struct {
	BBox [4]float64 `json:"bbox"`
	Conf float64    `json:"conf"`
}

// TextRegion is one detected caption or on-screen text region.
type TextRegion struct {
	Text     string     `json:"text"`
	BBox     [4]float64 `json:"bbox"`
	Conf     float64    `json:"conf"`
	FontLike string     `json:"font_like,omitempty"`
}

// ColorStats summarises color and composition of a shot.
type ColorStats struct {
	Brightness     float64  `json:"brightness"`
	Saturation     float64  `json:"saturation"`
	Contrast       float64  `json:"contrast"`
	DominantColors []string `json:"dominant_colors,omitempty"`
}

// MotionStats summarises motion of a shot.
type MotionStats struct {
	MotionType   string  `json:"motion_type"`
	Magnitude    float64 `json:"magnitude"`
	CameraMotion bool    `json:"camera_motion"`
}

// SaliencyStats locates the attention peak within a shot.
type SaliencyStats struct {
	PeakX  float64 `json:"peak_x"`
	PeakY  float64 `json:"peak_y"`
	Spread float64 `json:"spread"`
}

// DialogueStats carries speech clarity measurements.
type DialogueStats struct {
	STOI    float64 `json:"stoi"`
	Present bool    `json:"present"`
}

// AudioStats carries the audio engineering metrics of a shot window.
type AudioStats struct {
	LUFS           float64       `json:"lufs"`
	TruePeakDBTP   float64       `json:"true_peak_dbtp"`
	DynamicRangeDB float64       `json:"dynamic_range_db"`
	StereoPhase    float64       `json:"stereo_phase"`
	Dialogue       DialogueStats `json:"dialogue"`
	HasSpeech      bool          `json:"has_speech"`
	HasMusic       bool          `json:"has_music"`
}

// Transition classifies the boundary into the shot.
type Transition struct {
	Type string  `json:"type"`
	SSIM float64 `json:"ssim"`
}

// Detectors is the per-shot result map. A nil slot with a Skipped entry means
// the detector was disabled by ablation or fallback; the reason is recorded.
type Detectors struct {
	Objects    []Object          `json:"objects,omitempty"`
	Faces      []Face            `json:"faces,omitempty"`
	Text       []TextRegion      `json:"text,omitempty"`
	Color      *ColorStats       `json:"color,omitempty"`
	Motion     *MotionStats      `json:"motion,omitempty"`
	Saliency   *SaliencyStats    `json:"saliency,omitempty"`
	Audio      *AudioStats       `json:"audio,omitempty"`
	Transition *Transition       `json:"transition,omitempty"`
	SRUsed     bool              `json:"sr_used"`
	Skipped    map[string]string `json:"skipped,omitempty"`
}

// Shot is one contiguous frame range with its detector results and the
// per-shot reasoning fields produced by the VL stage.
type Shot struct {
	ShotID     string    `json:"shot_id"`
	StartFrame int       `json:"start_frame"`
	EndFrame   int       `json:"end_frame"`
	FrameCount int       `json:"frame_count"`
	DurationS  float64   `json:"duration_s"`
	Detectors  Detectors `json:"detectors"`

	Summary          string   `json:"summary,omitempty"`
	Mood             string   `json:"mood,omitempty"`
	Intent           string   `json:"intent,omitempty"`
	CompositionNotes []string `json:"composition_notes,omitempty"`
	TransitionGuess  string   `json:"transition_guess,omitempty"`
}

// SceneAudioFeatures aggregate audio across a scene's shots.
type SceneAudioFeatures struct {
	AvgLoudness float64 `json:"avg_loudness"`
	HasSpeech   bool    `json:"has_speech"`
	HasMusic    bool    `json:"has_music"`
}

// SceneFeatures aggregate visual and audio features across a scene.
type SceneFeatures struct {
	AvgBrightness   float64            `json:"avg_brightness"`
	DominantMood    string             `json:"dominant_mood"`
	HasCameraMotion bool               `json:"has_camera_motion"`
	ShotCount       int                `json:"shot_count"`
	TotalDurationS  float64            `json:"total_duration_s"`
	Audio           SceneAudioFeatures `json:"audio"`
}

// SceneNarrative is the scene-level VL reasoning block.
type SceneNarrative struct {
	NarrativeFunction string   `json:"narrative_function,omitempty"`
	Tone              string   `json:"tone,omitempty"`
	Motifs            []string `json:"motifs,omitempty"`
	Risks             []string `json:"risks,omitempty"`
	SkippedReason     string   `json:"skipped_reason,omitempty"`
}

// Scene groups visually coherent consecutive shots.
type Scene struct {
	SceneID    string          `json:"scene_id"`
	Shots      []string        `json:"shots"`
	StartFrame int             `json:"start_frame"`
	EndFrame   int             `json:"end_frame"`
	Features   SceneFeatures   `json:"features"`
	Narrative  *SceneNarrative `json:"narrative,omitempty"`
}

// Track is reserved for cross-shot object tracking.
type Track struct {
	TrackID string   `json:"track_id"`
	Label   string   `json:"label"`
	Shots   []string `json:"shots"`
}

// Risk is one detected quality or safety issue.
type Risk struct {
	ShotID   string             `json:"shot_id,omitempty"`
	Type     string             `json:"type"`
	Severity string             `json:"severity"`
	Metric   map[string]float64 `json:"metric,omitempty"`
}

// Bundle is the complete Video Analysis Bundle.
type Bundle struct {
	SchemaVersion string        `json:"schema_version"`
	Status        Status        `json:"status"`
	Video         VideoMeta     `json:"video"`
	Global        GlobalStats   `json:"global"`
	Scenes        []Scene       `json:"scenes"`
	Shots         []Shot        `json:"shots"`
	Tracks        []Track       `json:"tracks"`
	Risks         []Risk        `json:"risks"`
	Provenance    []Provenance  `json:"provenance"`
	Calibration   []Calibration `json:"calibration"`
}
