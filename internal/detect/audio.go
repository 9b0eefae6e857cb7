// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"math"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

const audioVersion = "1.3.0"

// Audio computes the audio engineering metrics of a shot's audio window:
// integrated loudness, true peak, dynamic range, stereo phase and speech
// clarity. A shot without an audio track completes with a valid empty
// result rather than an error.
type Audio struct{}

func (d *Audio) Kind() Kind   { return KindAudio }
func (d *Audio) Class() Class { return ClassCPU }

type audioParams struct {
	TargetLUFS  float64 `json:"target_lufs"`
	STOIEnabled bool    `json:"stoi_enabled"`
}

func (d *Audio) Detect(ctx context.Context, shot *Shot, cfg *config.Config) (Result, error) {
	prov := provenance("audio-eng", audioVersion, "", audioParams{
		TargetLUFS:  cfg.Audio.TargetLUFS,
		STOIEnabled: cfg.Audio.STOIEnabled,
	})

	if shot.AudioPath == "" {
		return Result{
			Audio:      &vab.AudioStats{LUFS: -70.0, TruePeakDBTP: -70.0},
			Provenance: prov,
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	clip, err := loadWAV(shot.AudioPath)
	if err != nil {
		return Result{}, err
	}
	window := clip.slice(shot.AudioWindow.StartS, shot.AudioWindow.EndS)
	mono := mixMono(window)
	if len(mono) == 0 {
		return Result{
			Audio:      &vab.AudioStats{LUFS: -70.0, TruePeakDBTP: -70.0},
			Provenance: prov,
		}, nil
	}

	stats := &vab.AudioStats{
		LUFS:           round2(lufsApprox(mono)),
		TruePeakDBTP:   round2(truePeakDBTP(mono)),
		DynamicRangeDB: round2(dynamicRangeDB(mono, window.sampleRate)),
		StereoPhase:    round2(stereoPhase(window)),
	}

	speechPct := speechFraction(mono, window.sampleRate)
	stats.HasSpeech = speechPct > 0.1
	stats.HasMusic = !stats.HasSpeech && stats.LUFS > -45
	if stats.HasSpeech && cfg.Audio.STOIEnabled {
		stats.Dialogue = vab.DialogueStats{
			Present: true,
			STOI:    round3(stoiProxy(mono, window.sampleRate)),
		}
	}

	return Result{Audio: stats, Provenance: prov}, nil
}

func mixMono(w *wavData) []float64 {
	if len(w.channels) == 0 {
		return nil
	}
	if len(w.channels) == 1 {
		return w.channels[0]
	}
	n := w.frames()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, ch := range w.channels {
			sum += ch[i]
		}
		out[i] = sum / float64(len(w.channels))
	}
	return out
}

// lufsApprox approximates integrated loudness from RMS energy. A full
// BS.1770 gating implementation lives in the loudness service; the offset
// keeps the scale comparable to it.
func lufsApprox(samples []float64) float64 {
	rms := rmsOf(samples)
	return 20*math.Log10(rms+1e-8) - 0.691
}

func truePeakDBTP(samples []float64) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return 20 * math.Log10(peak+1e-8)
}

// dynamicRangeDB is the spread between the 90th and 10th percentile of
// 100 ms RMS frames.
func dynamicRangeDB(samples []float64, sr int) float64 {
	frame := sr / 10
	if frame == 0 || len(samples) < frame {
		return 0
	}
	hop := frame / 2
	var levels []float64
	for i := 0; i+frame <= len(samples); i += hop {
		levels = append(levels, rmsOf(samples[i:i+frame]))
	}
	if len(levels) == 0 {
		return 0
	}
	p10 := percentile(levels, 10)
	p90 := percentile(levels, 90)
	return 20 * math.Log10((p90+1e-8)/(p10+1e-8))
}

// stereoPhase is the inter-channel correlation in [-1, 1]; mono reports 1.
func stereoPhase(w *wavData) float64 {
	if len(w.channels) < 2 {
		return 1.0
	}
	l, r := w.channels[0], w.channels[1]
	n := min(len(l), len(r))
	if n == 0 {
		return 1.0
	}
	var ml, mr float64
	for i := 0; i < n; i++ {
		ml += l[i]
		mr += r[i]
	}
	ml /= float64(n)
	mr /= float64(n)
	var cov, vl, vr float64
	for i := 0; i < n; i++ {
		dl, dr := l[i]-ml, r[i]-mr
		cov += dl * dr
		vl += dl * dl
		vr += dr * dr
	}
	den := math.Sqrt(vl * vr)
	if den == 0 {
		return 1.0
	}
	return cov / den
}

// speechFraction estimates the fraction of 100 ms frames whose energy and
// zero-crossing rate fall in the speech band.
func speechFraction(samples []float64, sr int) float64 {
	frame := sr / 10
	if frame == 0 || len(samples) < frame {
		return 0
	}
	total, speech := 0, 0
	for i := 0; i+frame <= len(samples); i += frame {
		seg := samples[i : i+frame]
		rms := rmsOf(seg)
		zc := zeroCrossRate(seg)
		total++
		// Voiced speech sits above the noise floor with a moderate
		// zero-crossing rate; hiss and music fall outside the band.
		if rms > 0.01 && zc > 0.02 && zc < 0.25 {
			speech++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(speech) / float64(total)
}

// stoiProxy maps SNR of the speech band to a [0,1] clarity score. The full
// STOI computation needs the clean reference; this proxy follows the same
// monotone relation on the noisy signal alone.
func stoiProxy(samples []float64, sr int) float64 {
	frame := sr / 10
	if frame == 0 || len(samples) < frame {
		return 0
	}
	var speechE, noiseE []float64
	for i := 0; i+frame <= len(samples); i += frame {
		seg := samples[i : i+frame]
		rms := rmsOf(seg)
		zc := zeroCrossRate(seg)
		if rms > 0.01 && zc > 0.02 && zc < 0.25 {
			speechE = append(speechE, rms)
		} else {
			noiseE = append(noiseE, rms)
		}
	}
	if len(speechE) == 0 {
		return 0
	}
	noise := 1e-4
	if len(noiseE) > 0 {
		noise = math.Max(meanOf(noiseE), 1e-4)
	}
	snrDB := 20 * math.Log10(meanOf(speechE)/noise)
	return clamp01((snrDB + 5) / 30)
}

func rmsOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func zeroCrossRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	insertionSort(sorted)
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

func insertionSort(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
