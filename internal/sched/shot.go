// SPDX-License-Identifier: MIT

package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/framely/eyes/internal/detect"
	"github.com/framely/eyes/internal/fallback"
	"github.com/framely/eyes/internal/hashing"
	"github.com/framely/eyes/internal/metrics"
	"github.com/framely/eyes/internal/vab"
	"github.com/framely/eyes/internal/vlclient"
)

// slotOrder fixes the provenance emission order per shot so bundles are
// stable across runs.
var slotOrder = []detect.Kind{
	detect.KindObjectsCoarse,
	detect.KindObjectsTiled,
	detect.KindSuperres,
	detect.KindObjectsFine,
	detect.KindMaskRefine,
	detect.KindFaces,
	detect.KindText,
	detect.KindColor,
	detect.KindMotion,
	detect.KindAudio,
	detect.KindTransition,
	detect.KindReasoning,
}

// shotState accumulates one shot's detector outcomes before they are folded
// into the bundle shot. The fan-out writes from multiple goroutines.
type shotState struct {
	mu      sync.Mutex
	results map[detect.Kind]detect.Result
	skipped map[detect.Kind]string
}

func newShotState() *shotState {
	return &shotState{
		results: make(map[detect.Kind]detect.Result),
		skipped: make(map[detect.Kind]string),
	}
}

func (st *shotState) put(kind detect.Kind, res detect.Result) {
	st.mu.Lock()
	st.results[kind] = res
	st.mu.Unlock()
}

func (st *shotState) skip(kind detect.Kind, reason string) {
	st.mu.Lock()
	st.skipped[kind] = reason
	st.results[kind] = detect.Result{Provenance: detect.SkippedProvenance(kind, reason)}
	st.mu.Unlock()
	metrics.DetectorSkips.WithLabelValues(string(kind), reason).Inc()
}

// runShot executes phases A (sequential GPU chain), B (parallel fan-out) and
// C (reasoning) for one shot. Only cancellation propagates as an error.
func (jr *jobRun) runShot(ctx context.Context, shot *detect.Shot) (shotOutput, error) {
	st := newShotState()

	if err := jr.runGPUChain(ctx, shot, st); err != nil {
		return shotOutput{}, err
	}
	if err := jr.runFanOut(ctx, shot, st); err != nil {
		return shotOutput{}, err
	}
	narrative := jr.runReasoning(ctx, shot, st)

	jr.acc.RecordShotFrames(shot.FrameCount, len(shot.FramePaths))
	if a := st.results[detect.KindAudio]; a.Audio != nil {
		jr.acc.RecordAudio(
			shot.AudioPath != "",
			true,
			a.Audio.HasSpeech,
			a.Audio.Dialogue.Present,
		)
	} else {
		jr.acc.RecordAudio(shot.AudioPath != "", false, false, false)
	}

	return jr.foldShot(shot, st, narrative), nil
}

// chainKinds are the sequential chain stages; every other registered kind
// runs in the fan-out.
var chainKinds = map[detect.Kind]bool{
	detect.KindObjectsCoarse: true,
	detect.KindObjectsTiled:  true,
	detect.KindSuperres:      true,
	detect.KindObjectsFine:   true,
	detect.KindMaskRefine:    true,
}

// runKind looks the detector up in the registry and runs it under the full
// invocation policy. A kind missing from the registry is a wiring defect and
// is recorded as an internal-error skip rather than panicking mid-job.
func (jr *jobRun) runKind(ctx context.Context, shot *detect.Shot, st *shotState, kind detect.Kind) error {
	det, ok := jr.reg.Get(kind)
	if !ok {
		jr.countInternal()
		st.skip(kind, ReasonInternalError)
		return nil
	}
	return jr.runDetector(ctx, shot, st, det)
}

// runGPUChain runs the sequential detection chain. Each stage's output feeds
// the next through shot.Objects and shot.SRFramePaths.
func (jr *jobRun) runGPUChain(ctx context.Context, shot *detect.Shot, st *shotState) error {
	if err := jr.runKind(ctx, shot, st, detect.KindObjectsCoarse); err != nil {
		return err
	}
	shot.Objects = st.results[detect.KindObjectsCoarse].Objects

	if !jr.cfg.Detect.TwoPassEnabled {
		st.skip(detect.KindObjectsTiled, ReasonTilingAblated)
	} else {
		if err := jr.runKind(ctx, shot, st, detect.KindObjectsTiled); err != nil {
			return err
		}
		merged := append(append([]vab.Object(nil), shot.Objects...),
			st.results[detect.KindObjectsTiled].Objects...)
		shot.Objects = detect.NMS(merged, jr.cfg.Detect.NMSIoU)
	}

	switch {
	case jr.cfg.Ablation.NoSR:
		st.skip(detect.KindSuperres, ReasonSRAblated)
	case !jr.cfg.Detect.Superres.Enabled || jr.ladder.SuperresDisabled():
		st.skip(detect.KindSuperres, ReasonSRDisabled)
	default:
		if err := jr.runKind(ctx, shot, st, detect.KindSuperres); err != nil {
			return err
		}
		if res := st.results[detect.KindSuperres]; res.SRUsed {
			shot.SRFramePaths = res.SRFramePaths
			jr.acc.RecordSRUsed()
		}
	}

	if len(shot.SRFramePaths) == 0 {
		st.skip(detect.KindObjectsFine, ReasonRequiresSR)
	} else {
		if err := jr.runKind(ctx, shot, st, detect.KindObjectsFine); err != nil {
			return err
		}
		merged := append(append([]vab.Object(nil), shot.Objects...),
			st.results[detect.KindObjectsFine].Objects...)
		shot.Objects = detect.NMS(merged, jr.cfg.Detect.NMSIoU)
	}

	switch {
	case jr.ladder.MaskRefineDisabled():
		st.skip(detect.KindMaskRefine, ReasonMaskDisabled)
	case len(shot.Objects) == 0:
		st.skip(detect.KindMaskRefine, ReasonNoObjects)
	default:
		if err := jr.runKind(ctx, shot, st, detect.KindMaskRefine); err != nil {
			return err
		}
		if res := st.results[detect.KindMaskRefine]; len(res.Objects) > 0 {
			shot.Objects = res.Objects
		}
	}
	return nil
}

// runFanOut runs the independent CPU and light-GPU detectors concurrently.
// Detector failures are absorbed into skips; only cancellation surfaces.
func (jr *jobRun) runFanOut(ctx context.Context, shot *detect.Shot, st *shotState) error {
	var kinds []detect.Kind
	for _, kind := range jr.reg.Kinds() {
		if !chainKinds[kind] {
			kinds = append(kinds, kind)
		}
	}
	errs := make(chan error, len(kinds))
	for _, kind := range kinds {
		go func(kind detect.Kind) {
			errs <- jr.runKind(ctx, shot, st, kind)
		}(kind)
	}
	var first error
	for range kinds {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// runDetector applies the admission, deadline and fallback policy around one
// detector invocation. A nil return means the slot holds either a result or
// a recorded skip; non-nil means the job is being cancelled.
func (jr *jobRun) runDetector(ctx context.Context, shot *detect.Shot, st *shotState, det detect.Detector) error {
	kind := det.Kind()

	res, err := jr.invoke(ctx, shot, det)
	if err == nil {
		st.put(kind, res)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	errKind := jr.classify(kind, err)
	metrics.DetectorErrors.WithLabelValues(string(kind), string(errKind)).Inc()

	if errKind == detect.KindTransientResource {
		metrics.OOMTrips.Inc()
		step, retry := jr.ladder.Advance(kind)
		if retry {
			metrics.FallbackSteps.WithLabelValues(step).Inc()
			res, err = jr.invoke(ctx, shot, det)
			if err == nil {
				st.put(kind, res)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.DetectorErrors.WithLabelValues(string(kind), string(jr.classify(kind, err))).Inc()
		}
		st.skip(kind, fallback.ReasonResourceExhausted)
		return nil
	}

	jr.logger.Warn().Err(err).
		Str("shot_id", shot.ShotID).
		Str("detector", string(kind)).
		Str("error_kind", string(errKind)).
		Msg("detector failed")

	switch errKind {
	case detect.KindInputDefect:
		st.skip(kind, ReasonInputDefect)
	case detect.KindExternal:
		st.skip(kind, ReasonExternalError)
	default:
		jr.countInternal()
		st.skip(kind, ReasonInternalError)
	}
	return nil
}

// invoke runs one detector under its class deadline and, for GPU classes,
// under a pool permit. Every invocation counts toward the internal-error
// budget denominator.
func (jr *jobRun) invoke(ctx context.Context, shot *detect.Shot, det detect.Detector) (detect.Result, error) {
	jr.mu.Lock()
	jr.invocations++
	jr.mu.Unlock()

	deadline := jr.cfg.Runtime.CPUDeadline
	if det.Class().NeedsGPU() {
		deadline = jr.cfg.Runtime.GPUDeadline
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	defer func() { jr.recordLatency(string(det.Kind()), time.Since(start)) }()

	if !det.Class().NeedsGPU() {
		return det.Detect(callCtx, shot, jr.cfg)
	}

	var res detect.Result
	err := jr.sched.pool.Run(callCtx, func(ctx context.Context) (err error) {
		res, err = det.Detect(ctx, shot, jr.cfg)
		return err
	})
	return res, err
}

// classify maps an invocation error to its policy kind. The first deadline
// blown per detector counts as transient pressure; repeats are treated as a
// detector defect.
func (jr *jobRun) classify(kind detect.Kind, err error) detect.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		jr.mu.Lock()
		jr.timeoutSeen[kind]++
		n := jr.timeoutSeen[kind]
		jr.mu.Unlock()
		if n <= 1 {
			return detect.KindTransientResource
		}
		return detect.KindInternal
	}
	return detect.KindOf(err)
}

func (jr *jobRun) countInternal() {
	jr.mu.Lock()
	jr.internalErrs++
	jr.mu.Unlock()
}

type reasoningParams struct {
	Model     string `json:"model"`
	MaxFrames int    `json:"max_frames"`
}

// runReasoning executes phase C. Failures degrade to a recorded skip.
func (jr *jobRun) runReasoning(ctx context.Context, shot *detect.Shot, st *shotState) *vlclient.ShotNarrative {
	if jr.sched.reasoner == nil {
		st.skip(detect.KindReasoning, ReasonVLNotConfigured)
		return nil
	}

	obs := jr.buildObservation(shot, st)
	maxFrames := jr.ladder.VLMaxFrames()

	narrative, err := jr.callReasoner(ctx, shot, obs, maxFrames)
	if err != nil {
		if ctx.Err() != nil {
			st.skip(detect.KindReasoning, vlclient.ReasonUnreachable)
			return nil
		}
		if jr.classify(detect.KindReasoning, err) == detect.KindTransientResource {
			metrics.OOMTrips.Inc()
			if step, retry := jr.ladder.Advance(detect.KindReasoning); retry {
				metrics.FallbackSteps.WithLabelValues(step).Inc()
				narrative, err = jr.callReasoner(ctx, shot, obs, jr.ladder.VLMaxFrames())
			}
		}
	}
	if err != nil {
		st.skip(detect.KindReasoning, vlReasonFor(err))
		return nil
	}

	fp, _ := hashing.Object(reasoningParams{Model: jr.cfg.VL.Model, MaxFrames: maxFrames})
	st.put(detect.KindReasoning, detect.Result{
		Provenance: vab.Provenance{
			Tool:       "vl-reasoning",
			Version:    jr.cfg.VL.Model,
			ParamsHash: fp,
			TS:         time.Now().UTC().Format(time.RFC3339),
		},
	})
	return &narrative
}

func (jr *jobRun) callReasoner(ctx context.Context, shot *detect.Shot, obs vlclient.ShotObservation, maxFrames int) (vlclient.ShotNarrative, error) {
	callCtx, cancel := context.WithTimeout(ctx, jr.cfg.Runtime.VLDeadline)
	defer cancel()
	start := time.Now()
	defer func() { jr.recordLatency(string(detect.KindReasoning), time.Since(start)) }()
	return jr.sched.reasoner.DescribeShot(callCtx, obs, shot.FramePaths, maxFrames)
}

func (jr *jobRun) buildObservation(shot *detect.Shot, st *shotState) vlclient.ShotObservation {
	obs := vlclient.ShotObservation{
		ShotID:    shot.ShotID,
		DurationS: shot.DurationS,
	}
	seen := map[string]bool{}
	for _, o := range shot.Objects {
		if !seen[o.Label] {
			seen[o.Label] = true
			obs.ObjectLabels = append(obs.ObjectLabels, o.Label)
		}
	}
	for _, t := range st.results[detect.KindText].Text {
		obs.OCRText = append(obs.OCRText, t.Text)
	}
	if tr := st.results[detect.KindTransition].Transition; tr != nil {
		obs.TransitionType = tr.Type
	}
	if a := st.results[detect.KindAudio].Audio; a != nil {
		obs.HasSpeech = a.HasSpeech
		obs.LUFS = a.LUFS
	}
	return obs
}

// vlReasonFor maps a reasoning error to its recorded skip reason.
func vlReasonFor(err error) string {
	if errors.Is(err, vlclient.ErrParseFailed) {
		return vlclient.ReasonParseFailed
	}
	return vlclient.ReasonUnreachable
}

// foldShot turns accumulated detector state into the bundle's shot entry and
// the ordered provenance slice.
func (jr *jobRun) foldShot(shot *detect.Shot, st *shotState, narrative *vlclient.ShotNarrative) shotOutput {
	out := shotOutput{
		shot: vab.Shot{
			ShotID:     shot.ShotID,
			StartFrame: shot.StartFrame,
			EndFrame:   shot.EndFrame,
			FrameCount: shot.FrameCount,
			DurationS:  round2(shot.DurationS),
		},
	}

	d := &out.shot.Detectors
	d.Objects = shot.Objects
	d.Faces = st.results[detect.KindFaces].Faces
	d.Text = st.results[detect.KindText].Text
	d.Color = st.results[detect.KindColor].Color
	d.Motion = st.results[detect.KindMotion].Motion
	d.Saliency = st.results[detect.KindMotion].Saliency
	d.Audio = st.results[detect.KindAudio].Audio
	d.Transition = st.results[detect.KindTransition].Transition
	d.SRUsed = st.results[detect.KindSuperres].SRUsed
	if len(st.skipped) > 0 {
		d.Skipped = make(map[string]string, len(st.skipped))
		for k, v := range st.skipped {
			d.Skipped[string(k)] = v
		}
	}

	if narrative != nil {
		out.shot.Summary = narrative.Summary
		out.shot.Mood = narrative.Mood
		out.shot.Intent = narrative.Intent
		out.shot.CompositionNotes = narrative.CompositionNotes
		out.shot.TransitionGuess = narrative.TransitionGuess
		out.summary = narrative.Summary
	}

	for _, kind := range slotOrder {
		res, ok := st.results[kind]
		if !ok || res.Provenance.Tool == "" {
			continue
		}
		out.provenance = append(out.provenance, res.Provenance)
	}
	return out
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
