// SPDX-License-Identifier: MIT

package prep

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/hashing"
)

// sceneCutThreshold is the ffmpeg scene-change score above which a frame
// starts a new shot.
const sceneCutThreshold = 0.4

// Runner executes an external tool and returns its combined output. The
// indirection keeps ffmpeg out of unit tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner shells out via os/exec.
type ExecRunner struct {
	Logger zerolog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.Logger.Debug().Str("tool", name).Strs("args", args).Msg("exec")
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, tail(string(out), 400))
	}
	return out, nil
}

// FFmpeg prepares videos with ffprobe and ffmpeg.
type FFmpeg struct {
	Runner Runner
	Logger zerolog.Logger
}

// NewFFmpeg builds the production prepper.
func NewFFmpeg(logger zerolog.Logger) *FFmpeg {
	return &FFmpeg{Runner: ExecRunner{Logger: logger}, Logger: logger}
}

func (f *FFmpeg) Prepare(ctx context.Context, videoID, videoPath, workDir string, frameStride int) (*Manifest, error) {
	if frameStride < 1 {
		frameStride = 1
	}
	sha, err := hashing.File(videoPath)
	if err != nil {
		return nil, detect.InputDefect("hash source video", err)
	}
	probe, err := f.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	boundaries, err := f.sceneCuts(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	shots := buildShots(videoID, probe, boundaries)
	if len(shots) == 0 {
		return nil, detect.InputDefect("video has no analyzable duration", nil)
	}

	for i := range shots {
		if err := f.extractFrames(ctx, videoPath, workDir, &shots[i], frameStride); err != nil {
			return nil, err
		}
	}

	audioPath := ""
	if probe.HasAudio {
		audioPath = filepath.Join(workDir, "audio.wav")
		if err := f.extractAudio(ctx, videoPath, audioPath); err != nil {
			return nil, err
		}
	}
	linkShots(shots, audioPath)

	f.Logger.Info().
		Str("video_id", videoID).
		Int("shots", len(shots)).
		Float64("duration_s", probe.DurationS).
		Bool("has_audio", probe.HasAudio).
		Msg("prep complete")

	return &Manifest{
		VideoID:   videoID,
		VideoPath: videoPath,
		SHA256:    sha,
		WorkDir:   workDir,
		Probe:     probe,
		Shots:     shots,
		AudioPath: audioPath,
	}, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

func (f *FFmpeg) probe(ctx context.Context, videoPath string) (Probe, error) {
	out, err := f.Runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		videoPath,
	)
	if err != nil {
		return Probe{}, detect.InputDefect("ffprobe", err)
	}
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Probe{}, detect.InputDefect("ffprobe output decode", err)
	}

	var p Probe
	p.Container = parsed.Format.FormatName
	p.DurationS, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if p.Width == 0 {
				p.Width, p.Height = s.Width, s.Height
				p.FPS = parseRate(s.RFrameRate)
			}
		case "audio":
			p.HasAudio = true
		}
	}
	if p.Width == 0 || p.Height == 0 {
		return Probe{}, detect.InputDefect("no video stream found", nil)
	}
	if p.FPS <= 0 {
		p.FPS = 25
	}
	if p.DurationS <= 0 {
		return Probe{}, detect.InputDefect("video reports zero duration", nil)
	}
	return p, nil
}

var ptsTimeRe = regexp.MustCompile(`pts_time:([0-9]+\.?[0-9]*)`)

// sceneCuts runs the scene-change filter and collects boundary timestamps.
func (f *FFmpeg) sceneCuts(ctx context.Context, videoPath string) ([]float64, error) {
	out, err := f.Runner.Run(ctx, "ffmpeg",
		"-hide_banner",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", sceneCutThreshold),
		"-f", "null", "-",
	)
	if err != nil {
		return nil, detect.InputDefect("scene detection", err)
	}
	var cuts []float64
	for _, m := range ptsTimeRe.FindAllStringSubmatch(string(out), -1) {
		if t, err := strconv.ParseFloat(m[1], 64); err == nil && t > 0 {
			cuts = append(cuts, t)
		}
	}
	sort.Float64s(cuts)
	return cuts, nil
}

// extractFrames decodes the shot's keyframes at the configured stride into
// <workDir>/<shotID>/frame_%08d.jpg.
func (f *FFmpeg) extractFrames(ctx context.Context, videoPath, workDir string, shot *detect.Shot, stride int) error {
	shotDir := filepath.Join(workDir, shot.ShotID)
	if err := os.MkdirAll(shotDir, 0o755); err != nil {
		return detect.Internal("create shot dir", err)
	}
	outFPS := shot.FPS / float64(stride)
	_, err := f.Runner.Run(ctx, "ffmpeg",
		"-hide_banner",
		"-ss", fmt.Sprintf("%.3f", shot.AudioWindow.StartS),
		"-t", fmt.Sprintf("%.3f", shot.DurationS),
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", outFPS),
		"-q:v", "2",
		filepath.Join(shotDir, "frame_%08d.jpg"),
	)
	if err != nil {
		return detect.InputDefect("frame extraction", err)
	}
	frames, err := filepath.Glob(filepath.Join(shotDir, "frame_*.jpg"))
	if err != nil || len(frames) == 0 {
		return detect.InputDefect("no frames decoded for shot "+shot.ShotID, err)
	}
	sort.Strings(frames)
	shot.FramePaths = frames
	return nil
}

// extractAudio demuxes the audio track to 16-bit PCM WAV.
func (f *FFmpeg) extractAudio(ctx context.Context, videoPath, audioPath string) error {
	_, err := f.Runner.Run(ctx, "ffmpeg",
		"-hide_banner",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "2",
		"-y", audioPath,
	)
	if err != nil {
		return detect.InputDefect("audio extraction", err)
	}
	return nil
}

// parseRate parses ffprobe rational rates like "30000/1001".
func parseRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den > 0 {
			return num / den
		}
	}
	v, _ := strconv.ParseFloat(r, 64)
	return v
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
