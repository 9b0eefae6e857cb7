// SPDX-License-Identifier: MIT

// Package config holds the immutable runtime configuration of the analyzer.
//
// Configuration is read once from the environment at process start. Per-job
// variation (ablation flags) never mutates the process config; jobs operate
// on a deep copy produced by ApplyAblations.
package config

import (
	"time"
)

// Fallback ladder step names, in default firing order.
const (
	StepMaskRefineOff  = "mask_refine_off"
	StepSuperresOff    = "sr_off"
	StepVLContextHalve = "vl_ctx_shrink"
	StepSingleScale    = "tile_single_scale"
	StepSkipDetector   = "skip_detector"
)

// TileConfig controls the tiled multi-scale object pass.
type TileConfig struct {
	Size   int `json:"size"`
	Stride int `json:"stride"`
}

// SuperresConfig controls conditional super-resolution.
type SuperresConfig struct {
	Enabled     bool `json:"enabled"`
	TriggerMinH int  `json:"trigger_min_h"`
}

// DetectConfig groups the visual detection tunables.
type DetectConfig struct {
	Tile             TileConfig     `json:"tile"`
	Superres         SuperresConfig `json:"superres"`
	TwoPassEnabled   bool           `json:"two_pass_enabled"`
	SmallObjectMinPx int            `json:"small_object_min_px"`
	NMSIoU           float64        `json:"nms_iou"`
}

// AudioConfig groups the audio engineering tunables.
type AudioConfig struct {
	TargetLUFS  float64 `json:"target_lufs"`
	STOIEnabled bool    `json:"stoi_enabled"`
	STOIMinOK   float64 `json:"stoi_min_ok"`
}

// RuntimeConfig groups scheduler and resource settings.
type RuntimeConfig struct {
	FrameStride         int           `json:"frame_stride"`
	GPUSemaphore        int           `json:"gpu_semaphore"`
	VLContextMaxFrames  int           `json:"qwen_context_max_frames"`
	OOMFallbackOrder    []string      `json:"oom_fallback_order"`
	GPUDeadline         time.Duration `json:"-"`
	CPUDeadline         time.Duration `json:"-"`
	VLDeadline          time.Duration `json:"-"`
	InternalBudgetPct   float64       `json:"internal_budget_pct"`
}

// AblationFlags disable individual capabilities for a single job.
type AblationFlags struct {
	NoSR       bool `json:"no_sr"`
	NoTiling   bool `json:"no_tiling"`
	LightAudio bool `json:"light_audio"`
}

// CoverageThresholds are the quality-gate minimums.
type CoverageThresholds struct {
	FramesAnalyzedPct float64 `json:"frames_analyzed_pct"`
	LUFSTracePct      float64 `json:"lufs_trace_pct"`
	STOIPct           float64 `json:"stoi_pct"`
	MinDetectablePx   int     `json:"min_detectable_px"`
}

// MergeConfig controls scene grouping.
type MergeConfig struct {
	SceneSSIMMin float64 `json:"scene_ssim_min"`
	MaxSceneGapS float64 `json:"max_scene_gap_s"`
}

// VLConfig addresses the external vision-language endpoint.
type VLConfig struct {
	APIBase string        `json:"api_base"`
	APIKey  string        `json:"-"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"-"`
}

// ServerConfig covers the HTTP boundary and stores.
type ServerConfig struct {
	ListenAddr    string
	StorePath     string
	MaxVideoMB    int
	MIMEWhitelist []string
	QueueHost     string
	QueuePort     int
	JobStore      string // "memory" | "badger" | "redis"
	RateLimitRPS  int
}

// Config is the full runtime configuration. Treat as immutable after Load.
type Config struct {
	Detect    DetectConfig       `json:"detect"`
	Audio     AudioConfig        `json:"audio"`
	Runtime   RuntimeConfig      `json:"runtime"`
	Ablation  AblationFlags      `json:"ablation"`
	Coverage  CoverageThresholds `json:"coverage_thresholds"`
	Merge     MergeConfig        `json:"merge"`
	VL        VLConfig           `json:"vl"`
	Server    ServerConfig       `json:"-"`
}

// Default returns the built-in configuration without consulting the
// environment. Values mirror the documented defaults.
func Default() Config {
	return Config{
		Detect: DetectConfig{
			Tile:             TileConfig{Size: 512, Stride: 256},
			Superres:         SuperresConfig{Enabled: true, TriggerMinH: 720},
			TwoPassEnabled:   true,
			SmallObjectMinPx: 8,
			NMSIoU:           0.5,
		},
		Audio: AudioConfig{
			TargetLUFS:  -14.0,
			STOIEnabled: true,
			STOIMinOK:   0.8,
		},
		Runtime: RuntimeConfig{
			FrameStride:        1,
			GPUSemaphore:       2,
			VLContextMaxFrames: 12,
			OOMFallbackOrder: []string{
				StepMaskRefineOff,
				StepSuperresOff,
				StepVLContextHalve,
				StepSingleScale,
				StepSkipDetector,
			},
			GPUDeadline:       120 * time.Second,
			CPUDeadline:       30 * time.Second,
			VLDeadline:        60 * time.Second,
			InternalBudgetPct: 20.0,
		},
		Coverage: CoverageThresholds{
			FramesAnalyzedPct: 99.0,
			LUFSTracePct:      100.0,
			STOIPct:           90.0,
			MinDetectablePx:   8,
		},
		Merge: MergeConfig{
			SceneSSIMMin: 0.45,
			MaxSceneGapS: 2.0,
		},
		VL: VLConfig{
			APIBase: "http://localhost:8000/v1",
			Model:   "Qwen/Qwen2.5-VL-7B-Instruct",
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr:    ":8080",
			StorePath:     "store",
			MaxVideoMB:    512,
			MIMEWhitelist: []string{"video/mp4", "video/quicktime", "video/x-matroska", "video/webm"},
			QueueHost:     "localhost",
			QueuePort:     6379,
			JobStore:      "badger",
			RateLimitRPS:  10,
		},
	}
}

// Load builds the configuration from the environment on top of Default.
func Load() Config {
	cfg := Default()

	cfg.Detect.Tile.Size = ParseInt("TILE_SIZE", cfg.Detect.Tile.Size)
	cfg.Detect.Tile.Stride = ParseInt("TILE_STRIDE", cfg.Detect.Tile.Stride)
	cfg.Detect.Superres.Enabled = ParseBool("SUPERRES_ENABLED", cfg.Detect.Superres.Enabled)
	cfg.Detect.Superres.TriggerMinH = ParseInt("SUPERRES_TRIGGER_MIN_H", cfg.Detect.Superres.TriggerMinH)
	cfg.Detect.SmallObjectMinPx = ParseInt("SMALL_OBJECT_MIN_PX", cfg.Detect.SmallObjectMinPx)

	cfg.Audio.TargetLUFS = ParseFloat("LOUDNESS_TARGET_LUFS", cfg.Audio.TargetLUFS)
	cfg.Audio.STOIEnabled = ParseBool("STOI_ENABLED", cfg.Audio.STOIEnabled)
	cfg.Audio.STOIMinOK = ParseFloat("STOI_MIN_OK", cfg.Audio.STOIMinOK)

	cfg.Runtime.FrameStride = ParseInt("FRAME_STRIDE", cfg.Runtime.FrameStride)
	cfg.Runtime.GPUSemaphore = ParseInt("GPU_SEMAPHORE", cfg.Runtime.GPUSemaphore)
	cfg.Runtime.VLContextMaxFrames = ParseInt("QWEN_CONTEXT_MAX_FRAMES", cfg.Runtime.VLContextMaxFrames)
	cfg.Runtime.OOMFallbackOrder = ParseStringList("OOM_FALLBACK_ORDER", cfg.Runtime.OOMFallbackOrder)
	cfg.Runtime.GPUDeadline = ParseDuration("GPU_DEADLINE", cfg.Runtime.GPUDeadline)
	cfg.Runtime.CPUDeadline = ParseDuration("CPU_DEADLINE", cfg.Runtime.CPUDeadline)
	cfg.Runtime.VLDeadline = ParseDuration("VL_DEADLINE", cfg.Runtime.VLDeadline)
	cfg.Runtime.InternalBudgetPct = ParseFloat("INTERNAL_ERROR_BUDGET_PCT", cfg.Runtime.InternalBudgetPct)

	cfg.Coverage.FramesAnalyzedPct = ParseFloat("COVERAGE_FRAMES_ANALYZED_PCT", cfg.Coverage.FramesAnalyzedPct)
	cfg.Coverage.LUFSTracePct = ParseFloat("COVERAGE_LUFS_TRACE_PCT", cfg.Coverage.LUFSTracePct)
	cfg.Coverage.STOIPct = ParseFloat("COVERAGE_STOI_PCT", cfg.Coverage.STOIPct)
	cfg.Coverage.MinDetectablePx = ParseInt("COVERAGE_MIN_DETECTABLE_PX", cfg.Coverage.MinDetectablePx)

	cfg.Merge.SceneSSIMMin = ParseFloat("SCENE_SSIM_MIN", cfg.Merge.SceneSSIMMin)
	cfg.Merge.MaxSceneGapS = ParseFloat("MAX_SCENE_GAP_S", cfg.Merge.MaxSceneGapS)

	cfg.VL.APIBase = ParseString("VL_API_BASE", cfg.VL.APIBase)
	cfg.VL.APIKey = ParseString("VL_API_KEY", "")
	cfg.VL.Model = ParseString("VL_MODEL", cfg.VL.Model)
	cfg.VL.Timeout = ParseDuration("VL_TIMEOUT", cfg.VL.Timeout)

	cfg.Server.ListenAddr = ParseString("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.StorePath = ParseString("STORE_PATH", cfg.Server.StorePath)
	cfg.Server.MaxVideoMB = ParseInt("MAX_VIDEO_MB", cfg.Server.MaxVideoMB)
	cfg.Server.MIMEWhitelist = ParseStringList("MIME_WHITELIST", cfg.Server.MIMEWhitelist)
	cfg.Server.QueueHost = ParseString("QUEUE_HOST", cfg.Server.QueueHost)
	cfg.Server.QueuePort = ParseInt("QUEUE_PORT", cfg.Server.QueuePort)
	cfg.Server.JobStore = ParseString("JOB_STORE", cfg.Server.JobStore)
	cfg.Server.RateLimitRPS = ParseInt("RATE_LIMIT_RPS", cfg.Server.RateLimitRPS)

	return cfg
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.Runtime.OOMFallbackOrder = append([]string(nil), c.Runtime.OOMFallbackOrder...)
	out.Server.MIMEWhitelist = append([]string(nil), c.Server.MIMEWhitelist...)
	return out
}

// ApplyAblations returns a per-job copy with the requested capabilities
// disabled. The receiver is never mutated.
func (c Config) ApplyAblations(ab AblationFlags) Config {
	out := c.Clone()
	out.Ablation = ab
	if ab.NoSR {
		out.Detect.Superres.Enabled = false
	}
	if ab.NoTiling {
		out.Detect.TwoPassEnabled = false
	}
	if ab.LightAudio {
		out.Audio.STOIEnabled = false
	}
	return out
}
