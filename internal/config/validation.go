// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	var problems []string

	if c.Detect.Tile.Size <= 0 {
		problems = append(problems, "tile.size must be positive")
	}
	if c.Detect.Tile.Stride <= 0 {
		problems = append(problems, "tile.stride must be positive")
	}
	if c.Detect.Tile.Stride > c.Detect.Tile.Size {
		// Stride beyond tile size leaves uncovered gaps between tiles.
		problems = append(problems, "tile.stride must not exceed tile.size")
	}
	if c.Detect.SmallObjectMinPx <= 0 {
		problems = append(problems, "small_object_min_px must be positive")
	}
	if c.Runtime.FrameStride <= 0 {
		problems = append(problems, "frame_stride must be positive")
	}
	if c.Runtime.GPUSemaphore <= 0 {
		problems = append(problems, "gpu_semaphore must be positive")
	}
	if c.Runtime.VLContextMaxFrames <= 0 {
		problems = append(problems, "qwen_context_max_frames must be positive")
	}
	for _, step := range c.Runtime.OOMFallbackOrder {
		switch step {
		case StepMaskRefineOff, StepSuperresOff, StepVLContextHalve, StepSingleScale, StepSkipDetector:
		default:
			problems = append(problems, fmt.Sprintf("unknown fallback step %q", step))
		}
	}
	if c.Audio.STOIMinOK < 0 || c.Audio.STOIMinOK > 1 {
		problems = append(problems, "stoi.min_ok must be in [0,1]")
	}
	if c.Merge.SceneSSIMMin < 0 || c.Merge.SceneSSIMMin > 1 {
		problems = append(problems, "scene_ssim_min must be in [0,1]")
	}
	if c.Server.MaxVideoMB <= 0 {
		problems = append(problems, "MAX_VIDEO_MB must be positive")
	}
	switch c.Server.JobStore {
	case "memory", "badger", "redis":
	default:
		problems = append(problems, fmt.Sprintf("unknown job store %q", c.Server.JobStore))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}
