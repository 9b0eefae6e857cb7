// SPDX-License-Identifier: MIT

package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/vab"
)

func TestSnapshotFullCoverage(t *testing.T) {
	cfg := config.Default()
	acc := NewAccumulator()
	acc.RecordShotFrames(100, 100)
	acc.RecordAudio(true, true, true, true)
	acc.RecordSRUsed()

	cov := acc.Snapshot(&cfg, 1920, 1080)
	assert.Equal(t, 100.0, cov.Temporal.FramesAnalyzedPct)
	assert.Equal(t, 100.0, cov.Audio.LUFSTracePct)
	assert.Equal(t, 100.0, cov.Audio.STOIPct)
	assert.Equal(t, 100.0, cov.Spatial.PixelsCoveredPct)
	assert.True(t, cov.Spatial.SRUsed)
	assert.Equal(t, 512, cov.Spatial.TileSize)
}

func TestSnapshotStrideScalesExpectation(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.FrameStride = 2
	acc := NewAccumulator()
	// 100 source frames at stride 2: 50 decoded frames is full coverage.
	acc.RecordShotFrames(100, 50)

	cov := acc.Snapshot(&cfg, 1280, 720)
	assert.Equal(t, 100.0, cov.Temporal.FramesAnalyzedPct)
}

func TestSnapshotNoSpeechMeansFullSTOI(t *testing.T) {
	cfg := config.Default()
	acc := NewAccumulator()
	acc.RecordShotFrames(10, 10)
	acc.RecordAudio(true, true, false, false)

	cov := acc.Snapshot(&cfg, 640, 480)
	assert.Equal(t, 100.0, cov.Audio.STOIPct)
}

func TestSnapshotPartialAudioTrace(t *testing.T) {
	cfg := config.Default()
	acc := NewAccumulator()
	acc.RecordAudio(true, true, true, true)
	acc.RecordAudio(true, false, true, false)

	cov := acc.Snapshot(&cfg, 640, 480)
	assert.Equal(t, 50.0, cov.Audio.LUFSTracePct)
	assert.Equal(t, 50.0, cov.Audio.STOIPct)
}

func TestGatePassesAtThresholds(t *testing.T) {
	th := config.Default().Coverage
	cov := vab.Coverage{
		Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 99.0},
		Audio:    vab.AudioCoverage{LUFSTracePct: 100.0, STOIPct: 90.0},
	}
	assert.Empty(t, Gate(cov, th))
}

func TestGateFlagsEachShortfall(t *testing.T) {
	th := config.Default().Coverage
	cov := vab.Coverage{
		Temporal: vab.TemporalCoverage{FramesAnalyzedPct: 80.0},
		Audio:    vab.AudioCoverage{LUFSTracePct: 50.0, STOIPct: 10.0},
	}
	reasons := Gate(cov, th)
	assert.Len(t, reasons, 3)
	assert.Contains(t, reasons[0], ReasonFramesBelowThreshold)
	assert.Contains(t, reasons[1], ReasonLUFSBelowThreshold)
	assert.Contains(t, reasons[2], ReasonSTOIBelowThreshold)
}
