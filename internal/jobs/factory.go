// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/framely/eyes/internal/config"
)

// OpenStore builds the configured job store backend.
func OpenStore(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.JobStore {
	case "", "badger":
		return NewBadgerStore(filepath.Join(cfg.StorePath, "jobs.db"), logger)
	case "redis":
		addr := fmt.Sprintf("%s:%d", cfg.QueueHost, cfg.QueuePort)
		return NewRedisStore(ctx, addr, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown job store backend %q", cfg.JobStore)
	}
}
