// SPDX-License-Identifier: MIT

// Package sched runs the per-video analysis DAG: a sequential GPU chain per
// shot, a parallel CPU fan-out, and a final reasoning stage, with shots
// processed concurrently under the GPU pool's admission control.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/coverage"
	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/fallback"
	"github.com/framely/eyes/internal/gpu"
	"github.com/framely/eyes/internal/merge"
	"github.com/framely/eyes/internal/metrics"
	"github.com/framely/eyes/internal/prep"
	"github.com/framely/eyes/internal/vab"
	"github.com/framely/eyes/internal/vlclient"
)

// Detector slot skip reasons, shared with the bundle assembler through the
// detect package so both sides agree on classification.
const (
	ReasonTilingAblated   = detect.ReasonTilingAblated
	ReasonSRAblated       = detect.ReasonSRAblated
	ReasonSRDisabled      = detect.ReasonSRDisabled
	ReasonMaskDisabled    = detect.ReasonMaskDisabled
	ReasonRequiresSR      = detect.ReasonRequiresSR
	ReasonInputDefect     = detect.ReasonInputDefect
	ReasonInternalError   = detect.ReasonInternalError
	ReasonExternalError   = detect.ReasonExternalError
	ReasonNoObjects       = detect.ReasonNoObjects
	ReasonVLNotConfigured = vlclient.ReasonUnreachable
)

// Engines bundles the model backends injected into the detectors.
type Engines struct {
	Object detect.ObjectEngine
	Face   detect.FaceEngine
	OCR    detect.OCREngine
	SR     detect.SREngine
	Mask   detect.MaskEngine
}

// DefaultEngines returns the bundled deterministic backends.
func DefaultEngines() Engines {
	return Engines{
		Object: detect.HeuristicObjectEngine{},
		Face:   detect.HeuristicFaceEngine{},
		OCR:    detect.HeuristicOCREngine{},
		SR:     detect.NearestSREngine{},
		Mask:   detect.ShrinkMaskEngine{},
	}
}

// Scheduler is safe for concurrent Analyze calls; all per-job state lives in
// the jobRun.
type Scheduler struct {
	pool     *gpu.Pool
	engines  Engines
	reasoner vlclient.Reasoner // nil when no VL endpoint is configured
	logger   zerolog.Logger
}

// New builds a scheduler. reasoner may be nil; reasoning slots are then
// skipped as unreachable.
func New(pool *gpu.Pool, engines Engines, reasoner vlclient.Reasoner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		pool:     pool,
		engines:  engines,
		reasoner: reasoner,
		logger:   logger,
	}
}

// jobRun is the mutable state of one Analyze call.
type jobRun struct {
	sched  *Scheduler
	cfg    *config.Config
	ladder *fallback.Ladder
	acc    *coverage.Accumulator
	logger zerolog.Logger

	// reg holds the per-job detector set; the tiled pass reads the ladder's
	// single-scale flag through its closure.
	reg *detect.Registry

	mu           sync.Mutex
	timeoutSeen  map[detect.Kind]int
	invocations  int
	internalErrs int
	latencyMS    map[string]int64
}

type shotOutput struct {
	shot       vab.Shot
	provenance []vab.Provenance
	summary    string
}

// Analyze runs the full DAG over a prepared manifest and assembles the
// bundle. The returned error is non-nil only for whole-job failures
// (cancellation, no analyzable shots); detector-level trouble degrades the
// bundle instead.
func (s *Scheduler) Analyze(ctx context.Context, cfg *config.Config, man *prep.Manifest) (*vab.Bundle, error) {
	start := time.Now()
	jr := s.newJobRun(cfg)

	outputs := make([]shotOutput, len(man.Shots))
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Runtime.GPUSemaphore * 2
	if limit < 2 {
		limit = 2
	}
	g.SetLimit(limit)

	for i := range man.Shots {
		g.Go(func() error {
			out, err := jr.runShot(gctx, &man.Shots[i])
			if err != nil {
				return fmt.Errorf("shot %s: %w", man.Shots[i].ShotID, err)
			}
			outputs[i] = out
			metrics.ShotsAnalyzed.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	shots := make([]vab.Shot, 0, len(outputs))
	var prov []vab.Provenance
	for _, out := range outputs {
		shots = append(shots, out.shot)
		prov = append(prov, out.provenance...)
	}

	bundle := merge.Build(cfg, merge.Input{
		VideoID:           man.VideoID,
		VideoPath:         man.VideoPath,
		SHA256:            man.SHA256,
		DurationS:         man.Probe.DurationS,
		FPS:               man.Probe.FPS,
		Width:             man.Probe.Width,
		Height:            man.Probe.Height,
		Shots:             shots,
		SceneStory:        jr.sceneStory(ctx, outputs),
		Provenance:        prov,
		Coverage:          jr.acc.Snapshot(cfg, man.Probe.Width, man.Probe.Height),
		Reasons:           jr.ladder.Reasons(),
		InternalErrorPct:  jr.internalErrorPct(),
		InternalBudgetPct: cfg.Runtime.InternalBudgetPct,
		LadderMaxStep:     jr.ladder.MaxFiredStep(),
		Metrics: &vab.VideoMetrics{
			LatencyMS: jr.latencySnapshot(),
			Retries:   jr.ladder.Retries(),
			OOMTrips:  jr.ladder.OOMTrips(),
		},
	})

	if bundle.Status.State == vab.StateDegraded {
		metrics.BundlesDegraded.Inc()
	}
	s.logger.Info().
		Str("video_id", man.VideoID).
		Str("state", bundle.Status.State).
		Int("shots", len(shots)).
		Int("oom_trips", jr.ladder.OOMTrips()).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")
	return bundle, nil
}

func (s *Scheduler) newJobRun(cfg *config.Config) *jobRun {
	jr := &jobRun{
		sched:       s,
		cfg:         cfg,
		ladder:      fallback.New(cfg.Runtime.OOMFallbackOrder, cfg.Runtime.VLContextMaxFrames, s.logger),
		acc:         coverage.NewAccumulator(),
		logger:      s.logger,
		timeoutSeen: make(map[detect.Kind]int),
		latencyMS:   make(map[string]int64),
	}
	jr.reg = detect.NewRegistry()
	jr.reg.MustRegister(&detect.CoarseObjects{Engine: s.engines.Object, ConfThreshold: 0.25})
	jr.reg.MustRegister(&detect.TiledObjects{Engine: s.engines.Object, ConfThreshold: 0.25, SingleScale: jr.ladder.SingleScale})
	jr.reg.MustRegister(&detect.Superres{Engine: s.engines.SR})
	jr.reg.MustRegister(&detect.FineObjects{Engine: s.engines.Object, ConfThreshold: 0.25})
	jr.reg.MustRegister(&detect.MaskRefine{Engine: s.engines.Mask})
	jr.reg.MustRegister(&detect.Faces{Engine: s.engines.Face})
	jr.reg.MustRegister(&detect.Text{Engine: s.engines.OCR})
	jr.reg.MustRegister(&detect.Color{})
	jr.reg.MustRegister(&detect.Motion{})
	jr.reg.MustRegister(&detect.Audio{})
	jr.reg.MustRegister(&detect.Transitions{})
	return jr
}

// sceneStory returns the closure merge uses to attach scene narratives. The
// reasoner being absent or failing marks the narrative skipped rather than
// failing the bundle.
func (jr *jobRun) sceneStory(ctx context.Context, outputs []shotOutput) func(*vab.Scene) {
	summaries := make(map[string]string, len(outputs))
	moods := make(map[string]string, len(outputs))
	for _, out := range outputs {
		summaries[out.shot.ShotID] = out.summary
		moods[out.shot.ShotID] = out.shot.Mood
	}

	return func(scene *vab.Scene) {
		if jr.sched.reasoner == nil {
			scene.Narrative = &vab.SceneNarrative{SkippedReason: ReasonVLNotConfigured}
			return
		}
		obs := vlclient.SceneObservation{
			SceneID:      scene.SceneID,
			DurationS:    scene.Features.TotalDurationS,
			DominantMood: scene.Features.DominantMood,
		}
		for _, shotID := range scene.Shots {
			if s := summaries[shotID]; s != "" {
				obs.ShotSummaries = append(obs.ShotSummaries, s)
			}
		}
		if len(obs.ShotSummaries) == 0 {
			scene.Narrative = &vab.SceneNarrative{SkippedReason: vlclient.ReasonUnreachable}
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, jr.cfg.Runtime.VLDeadline)
		defer cancel()
		story, err := jr.sched.reasoner.DescribeScene(callCtx, obs)
		if err != nil {
			jr.logger.Warn().Err(err).Str("scene_id", scene.SceneID).Msg("scene reasoning failed")
			scene.Narrative = &vab.SceneNarrative{SkippedReason: vlReasonFor(err)}
			return
		}
		scene.Narrative = &vab.SceneNarrative{
			NarrativeFunction: story.NarrativeFunction,
			Tone:              story.Tone,
			Motifs:            story.Motifs,
			Risks:             story.Risks,
		}
	}
}

func (jr *jobRun) internalErrorPct() float64 {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.invocations == 0 {
		return 0
	}
	return 100 * float64(jr.internalErrs) / float64(jr.invocations)
}

func (jr *jobRun) latencySnapshot() map[string]int64 {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	out := make(map[string]int64, len(jr.latencyMS))
	for k, v := range jr.latencyMS {
		out[k] = v
	}
	return out
}

func (jr *jobRun) recordLatency(stage string, d time.Duration) {
	metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	jr.mu.Lock()
	jr.latencyMS[stage] += d.Milliseconds()
	jr.mu.Unlock()
}
