// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
)

// writeTestWAV emits stereo 16-bit PCM from a per-sample generator.
func writeTestWAV(t *testing.T, path string, sr int, durS float64, gen func(t float64) float64) {
	t.Helper()
	n := int(durS * float64(sr))
	dataLen := n * 2 * 2

	buf := make([]byte, 0, 44+dataLen)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sr))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sr*4))
	buf = binary.LittleEndian.AppendUint16(buf, 4)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	for i := 0; i < n; i++ {
		v := gen(float64(i) / float64(sr))
		sv := int16(math.Max(-0.99, math.Min(0.99, v)) * 32767)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(sv))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(sv))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func audioShot(path string, endS float64) *Shot {
	return &Shot{
		ShotID:      "s0",
		AudioPath:   path,
		AudioWindow: AudioWindow{StartS: 0, EndS: endS},
	}
}

func TestAudioNoTrackYieldsSilentStats(t *testing.T) {
	cfg := config.Default()
	d := &Audio{}
	res, err := d.Detect(context.Background(), &Shot{ShotID: "s0"}, &cfg)
	require.NoError(t, err)
	require.NotNil(t, res.Audio)
	assert.Equal(t, -70.0, res.Audio.LUFS)
	assert.False(t, res.Audio.HasSpeech)
	assert.Empty(t, res.Provenance.SkippedReason)
}

func TestAudioLoudnessOrdering(t *testing.T) {
	dir := t.TempDir()
	quiet := filepath.Join(dir, "quiet.wav")
	loud := filepath.Join(dir, "loud.wav")
	writeTestWAV(t, quiet, 16000, 1.0, func(ts float64) float64 {
		return 0.01 * math.Sin(2*math.Pi*440*ts)
	})
	writeTestWAV(t, loud, 16000, 1.0, func(ts float64) float64 {
		return 0.5 * math.Sin(2*math.Pi*440*ts)
	})

	cfg := config.Default()
	d := &Audio{}

	resQuiet, err := d.Detect(context.Background(), audioShot(quiet, 1.0), &cfg)
	require.NoError(t, err)
	resLoud, err := d.Detect(context.Background(), audioShot(loud, 1.0), &cfg)
	require.NoError(t, err)

	assert.Less(t, resQuiet.Audio.LUFS, resLoud.Audio.LUFS)
	assert.Less(t, resLoud.Audio.LUFS, 0.0)
	// Full-scale sine peaks near 0 dBTP; the quiet one far below.
	assert.Greater(t, resLoud.Audio.TruePeakDBTP, resQuiet.Audio.TruePeakDBTP)
}

func TestAudioStereoPhaseOfIdenticalChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	writeTestWAV(t, path, 16000, 0.5, func(ts float64) float64 {
		return 0.3 * math.Sin(2*math.Pi*220*ts)
	})

	cfg := config.Default()
	d := &Audio{}
	res, err := d.Detect(context.Background(), audioShot(path, 0.5), &cfg)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Audio.StereoPhase, 0.05)
}

func TestAudioSpeechDetectionAndSTOI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speech.wav")
	// Modulated mid-band bursts: energy and zero-crossing rate in the
	// speech band for most frames.
	writeTestWAV(t, path, 16000, 2.0, func(ts float64) float64 {
		env := math.Sin(2 * math.Pi * 3 * ts)
		if env < 0.2 {
			return 0.002 * math.Sin(2*math.Pi*100*ts)
		}
		return 0.4 * env * math.Sin(2*math.Pi*300*ts)
	})

	cfg := config.Default()
	d := &Audio{}
	res, err := d.Detect(context.Background(), audioShot(path, 2.0), &cfg)
	require.NoError(t, err)
	assert.True(t, res.Audio.HasSpeech)
	require.True(t, res.Audio.Dialogue.Present)
	assert.Greater(t, res.Audio.Dialogue.STOI, 0.0)
	assert.LessOrEqual(t, res.Audio.Dialogue.STOI, 1.0)
}

func TestAudioSTOIDisabledSkipsDialogue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speech.wav")
	writeTestWAV(t, path, 16000, 1.0, func(ts float64) float64 {
		env := math.Sin(2 * math.Pi * 3 * ts)
		if env < 0.2 {
			return 0
		}
		return 0.4 * env * math.Sin(2*math.Pi*300*ts)
	})

	cfg := config.Default()
	cfg.Audio.STOIEnabled = false
	d := &Audio{}
	res, err := d.Detect(context.Background(), audioShot(path, 1.0), &cfg)
	require.NoError(t, err)
	assert.False(t, res.Audio.Dialogue.Present)
}

func TestDynamicRangeWiderForBursts(t *testing.T) {
	steady := make([]float64, 16000)
	bursty := make([]float64, 16000)
	for i := range steady {
		ts := float64(i) / 16000
		steady[i] = 0.3 * math.Sin(2*math.Pi*440*ts)
		if int(ts*2)%2 == 0 {
			bursty[i] = 0.6 * math.Sin(2*math.Pi*440*ts)
		} else {
			bursty[i] = 0.01 * math.Sin(2*math.Pi*440*ts)
		}
	}
	assert.Greater(t, dynamicRangeDB(bursty, 16000), dynamicRangeDB(steady, 16000))
}
