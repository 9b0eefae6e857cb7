// SPDX-License-Identifier: MIT

// Package jobs tracks asynchronous analysis jobs across their lifecycle and
// persists their state so a restart never loses track of what was running.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Job states.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ErrJobNotFound is returned by stores for unknown video ids.
var ErrJobNotFound = errors.New("job not found")

// Job is the persisted record of one analysis run. The video id doubles as
// the job id: one video has at most one live job.
type Job struct {
	VideoID  string  `json:"video_id"`
	State    string  `json:"state"`
	Stage    string  `json:"stage,omitempty"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`

	// AblationHash fingerprints the requested capability flags; a repeat
	// request with the same hash is idempotent.
	AblationHash string `json:"ablation_hash,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// Store persists job records. Implementations must be safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, videoID string) (*Job, error)
	Put(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]*Job, error)
	Ping(ctx context.Context) error
	Close() error
}
