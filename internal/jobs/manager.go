// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/hashing"
	"github.com/framely/eyes/internal/metrics"
	"github.com/framely/eyes/internal/prep"
	"github.com/framely/eyes/internal/sched"
	"github.com/framely/eyes/internal/store"
	"github.com/framely/eyes/internal/vab"
)

// ReasonInterrupted marks jobs that were running when the process died.
const ReasonInterrupted = "interrupted by restart"

// AnalyzeRequest is one analysis submission.
type AnalyzeRequest struct {
	VideoID  string
	Path     string
	Ablation config.AblationFlags
}

// Manager owns the async job lifecycle: idempotent admission, background
// execution, persistence and restart recovery.
type Manager struct {
	cfg     config.Config
	jobs    Store
	disk    *store.Store
	sched   *sched.Scheduler
	prepper prep.Prepper
	logger  zerolog.Logger

	// baseCtx detaches running jobs from the submitting HTTP request.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
}

// NewManager wires the manager. Call RecoverInterrupted once before serving.
func NewManager(cfg config.Config, jobStore Store, disk *store.Store, scheduler *sched.Scheduler, prepper prep.Prepper, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		jobs:     jobStore,
		disk:     disk,
		sched:    scheduler,
		prepper:  prepper,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
	}
}

// Submit admits a job. Submissions are idempotent per video id: an active
// job, or a completed one with the same ablation flags and a bundle still on
// disk, is returned as-is with created=false.
func (m *Manager) Submit(ctx context.Context, req AnalyzeRequest) (*Job, bool, error) {
	if !store.ValidVideoID(req.VideoID) {
		return nil, false, store.ErrBadVideoID
	}
	abHash, err := hashing.Object(req.Ablation)
	if err != nil {
		return nil, false, fmt.Errorf("hash ablation flags: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.jobs.Get(ctx, req.VideoID)
	if err == nil {
		if !existing.Terminal() || m.inflight[req.VideoID] {
			return existing, false, nil
		}
		if existing.State == StateCompleted && existing.AblationHash == abHash && m.disk.HasBundle(req.VideoID) {
			return existing, false, nil
		}
	} else if err != ErrJobNotFound {
		return nil, false, err
	}

	now := time.Now().UTC()
	job := &Job{
		VideoID:      req.VideoID,
		State:        StateQueued,
		Progress:     0,
		AblationHash: abHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.jobs.Put(ctx, job); err != nil {
		return nil, false, err
	}

	m.inflight[req.VideoID] = true
	m.wg.Add(1)
	metrics.JobsStarted.Inc()
	go m.run(req)

	return job, true, nil
}

// Status returns the persisted job record.
func (m *Manager) Status(ctx context.Context, videoID string) (*Job, error) {
	if !store.ValidVideoID(videoID) {
		return nil, store.ErrBadVideoID
	}
	return m.jobs.Get(ctx, videoID)
}

// Result returns the finished bundle.
func (m *Manager) Result(videoID string) (*vab.Bundle, error) {
	return m.disk.ReadBundle(videoID)
}

// QueueConnected reports whether the job store answers.
func (m *Manager) QueueConnected(ctx context.Context) bool {
	return m.jobs.Ping(ctx) == nil
}

// RecoverInterrupted fails every job that claims to be running; nothing can
// be running before the manager starts.
func (m *Manager) RecoverInterrupted(ctx context.Context) error {
	all, err := m.jobs.List(ctx)
	if err != nil {
		return err
	}
	for _, job := range all {
		if job.State != StateRunning && job.State != StateQueued {
			continue
		}
		job.State = StateFailed
		job.Error = ReasonInterrupted
		job.UpdatedAt = time.Now().UTC()
		job.FinishedAt = job.UpdatedAt
		if err := m.jobs.Put(ctx, job); err != nil {
			return err
		}
		m.logger.Warn().Str("video_id", job.VideoID).Msg("failed interrupted job")
	}
	return nil
}

// Close stops accepting work and waits for running jobs to finish or the
// timeout to pass.
func (m *Manager) Close(timeout time.Duration) {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn().Msg("shutdown timeout with jobs still running")
	}
}

func (m *Manager) run(req AnalyzeRequest) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, req.VideoID)
		m.mu.Unlock()
	}()

	start := time.Now()
	logger := m.logger.With().Str("video_id", req.VideoID).Logger()
	ctx := m.baseCtx

	fail := func(stage string, err error) {
		logger.Error().Err(err).Str("stage", stage).Msg("job failed")
		m.finish(req.VideoID, StateFailed, fmt.Sprintf("%s: %v", stage, err))
		metrics.JobsFinished.WithLabelValues(StateFailed).Inc()
	}

	m.progress(req.VideoID, StateRunning, "prep", 0.05)

	workDir, err := m.disk.WorkDir(req.VideoID)
	if err != nil {
		fail("workdir", err)
		return
	}
	man, err := m.prepper.Prepare(ctx, req.VideoID, req.Path, workDir, m.cfg.Runtime.FrameStride)
	if err != nil {
		fail("prep", err)
		return
	}

	m.progress(req.VideoID, StateRunning, "analyze", 0.25)
	jobCfg := m.cfg.ApplyAblations(req.Ablation)
	bundle, err := m.sched.Analyze(ctx, &jobCfg, man)
	if err != nil {
		fail("analyze", err)
		return
	}

	m.progress(req.VideoID, StateRunning, "persist", 0.9)
	if err := m.disk.WriteBundle(req.VideoID, bundle); err != nil {
		fail("persist", err)
		return
	}
	if err := m.disk.CleanWork(req.VideoID); err != nil {
		logger.Warn().Err(err).Msg("work dir cleanup failed")
	}

	m.finish(req.VideoID, StateCompleted, "")
	metrics.JobsFinished.WithLabelValues(StateCompleted).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	logger.Info().
		Str("state", bundle.Status.State).
		Dur("elapsed", time.Since(start)).
		Msg("job completed")
}

func (m *Manager) progress(videoID, state, stage string, p float64) {
	// State writes use a fresh context so the terminal state still lands
	// during shutdown.
	ctx := context.Background()
	job, err := m.jobs.Get(ctx, videoID)
	if err != nil {
		return
	}
	job.State = state
	job.Stage = stage
	job.Progress = p
	job.UpdatedAt = time.Now().UTC()
	if err := m.jobs.Put(ctx, job); err != nil {
		m.logger.Warn().Err(err).Str("video_id", videoID).Msg("job state update failed")
	}
}

func (m *Manager) finish(videoID, state, errMsg string) {
	ctx := context.Background()
	job, err := m.jobs.Get(ctx, videoID)
	if err != nil {
		return
	}
	job.State = state
	job.Stage = ""
	job.Error = errMsg
	if state == StateCompleted {
		job.Progress = 1
	}
	job.UpdatedAt = time.Now().UTC()
	job.FinishedAt = job.UpdatedAt
	if err := m.jobs.Put(ctx, job); err != nil {
		m.logger.Warn().Err(err).Str("video_id", videoID).Msg("job finish update failed")
	}
}
