// SPDX-License-Identifier: MIT

package prep

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/hashing"
)

// Synthetic generates a deterministic video workspace without touching
// ffmpeg: gradient keyframes that shift per shot and a sine-plus-burst WAV.
// It drives tests and local runs on machines without media tooling.
type Synthetic struct {
	Shots         int
	FramesPerShot int
	Width         int
	Height        int
	FPS           float64
	WithAudio     bool
	WithSpeech    bool
}

// DefaultSynthetic is a small three-shot clip with speechy audio.
func DefaultSynthetic() *Synthetic {
	return &Synthetic{
		Shots:         3,
		FramesPerShot: 4,
		Width:         320,
		Height:        240,
		FPS:           25,
		WithAudio:     true,
		WithSpeech:    true,
	}
}

func (s *Synthetic) Prepare(ctx context.Context, videoID, videoPath, workDir string, frameStride int) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shotDur := float64(s.FramesPerShot) / s.FPS * float64(max(frameStride, 1))
	probe := Probe{
		DurationS: shotDur * float64(s.Shots),
		FPS:       s.FPS,
		Width:     s.Width,
		Height:    s.Height,
		HasAudio:  s.WithAudio,
		Container: "synthetic",
	}

	boundaries := make([]float64, 0, s.Shots-1)
	for i := 1; i < s.Shots; i++ {
		boundaries = append(boundaries, shotDur*float64(i))
	}
	shots := buildShots(videoID, probe, boundaries)

	for i := range shots {
		shotDir := filepath.Join(workDir, shots[i].ShotID)
		if err := os.MkdirAll(shotDir, 0o755); err != nil {
			return nil, detect.Internal("create shot dir", err)
		}
		for fr := 0; fr < s.FramesPerShot; fr++ {
			p := filepath.Join(shotDir, fmt.Sprintf("frame_%08d.jpg", fr+1))
			if err := s.writeFrame(p, i, fr); err != nil {
				return nil, err
			}
			shots[i].FramePaths = append(shots[i].FramePaths, p)
		}
	}

	audioPath := ""
	if s.WithAudio {
		audioPath = filepath.Join(workDir, "audio.wav")
		if err := s.writeWAV(audioPath, probe.DurationS); err != nil {
			return nil, err
		}
	}
	linkShots(shots, audioPath)

	sha := ""
	if videoPath != "" {
		if h, err := hashing.File(videoPath); err == nil {
			sha = h
		}
	}
	if sha == "" {
		sha = hashing.String("synthetic:" + videoID)
	}

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

// writeFrame renders a gradient whose phase depends on shot and frame index,
// so consecutive shots differ sharply while frames within a shot drift.
func (s *Synthetic) writeFrame(path string, shotIdx, frameIdx int) error {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	phase := float64(shotIdx) * 1.7
	drift := float64(frameIdx) * 0.05
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			fx := float64(x) / float64(s.Width)
			fy := float64(y) / float64(s.Height)
			r := 0.5 + 0.5*math.Sin(phase+fx*6+drift)
			g := 0.5 + 0.5*math.Sin(phase*1.3+fy*5)
			b := 0.5 + 0.5*math.Sin(phase*0.7+(fx+fy)*4+drift)
			img.Set(x, y, color.RGBA{
				R: uint8(r * 255),
				G: uint8(g * 255),
				B: uint8(b * 255),
				A: 255,
			})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return detect.Internal("create synthetic frame", err)
	}
	defer func() { _ = f.Close() }()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return detect.Internal("encode synthetic frame", err)
	}
	return nil
}

// writeWAV emits stereo 16-bit PCM at 16 kHz: a quiet tone bed, plus
// amplitude-modulated mid-band bursts when speech is requested.
func (s *Synthetic) writeWAV(path string, durationS float64) error {
	const sr = 16000
	n := int(durationS * sr)
	if n < sr/10 {
		n = sr / 10
	}

	samples := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		v := 0.05 * math.Sin(2*math.Pi*220*t)
		if s.WithSpeech {
			// Bursts of a modulated 300 Hz band, a few per second, mimic
			// the energy and zero-crossing profile of voiced speech.
			env := math.Sin(2 * math.Pi * 3 * t)
			if env > 0.2 {
				v += 0.3 * env * math.Sin(2*math.Pi*300*t+math.Sin(2*math.Pi*7*t))
			}
		}
		sv := int16(clampF(v, -0.99, 0.99) * 32767)
		samples[2*i] = sv
		samples[2*i+1] = int16(float64(sv) * 0.9)
	}

	dataLen := len(samples) * 2
	buf := make([]byte, 0, 44+dataLen)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 2) // stereo
	buf = binary.LittleEndian.AppendUint32(buf, sr)
	buf = binary.LittleEndian.AppendUint32(buf, sr*2*2)
	buf = binary.LittleEndian.AppendUint16(buf, 4)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	for _, sv := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(sv))
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return detect.Internal("write synthetic audio", err)
	}
	return nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
