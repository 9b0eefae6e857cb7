// SPDX-License-Identifier: MIT

// The daemon serves the video analysis API: ingest, analyze, status, result
// and health, backed by the GPU pool, the job manager and the on-disk
// bundle store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/framely/eyes/internal/api"
	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/gpu"
	"github.com/framely/eyes/internal/jobs"
	"github.com/framely/eyes/internal/log"
	"github.com/framely/eyes/internal/prep"
	"github.com/framely/eyes/internal/sched"
	"github.com/framely/eyes/internal/store"
	"github.com/framely/eyes/internal/vlclient"
)

const shutdownGrace = 30 * time.Second

func main() {
	log.Configure(log.Config{})
	logger := log.WithComponent("daemon")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	disk, err := store.New(cfg.Server.StorePath, log.WithComponent("store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}

	jobStore, err := jobs.OpenStore(ctx, cfg.Server, log.WithComponent("jobs"))
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Server.JobStore).Msg("job store init failed")
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("job store close failed")
		}
	}()

	pool := gpu.NewPool(cfg.Runtime.GPUSemaphore, log.WithComponent("gpu"))
	defer pool.Close()

	var reasoner vlclient.Reasoner
	if cfg.VL.APIBase != "" {
		reasoner = vlclient.New(cfg.VL, log.WithComponent("vl"))
	}

	var prepper prep.Prepper
	if config.ParseString("PREP_MODE", "ffmpeg") == "synthetic" {
		prepper = prep.DefaultSynthetic()
	} else {
		prepper = prep.NewFFmpeg(log.WithComponent("prep"))
	}

	scheduler := sched.New(pool, sched.DefaultEngines(), reasoner, log.WithComponent("sched"))
	manager := jobs.NewManager(cfg, jobStore, disk, scheduler, prepper, log.WithComponent("manager"))
	if err := manager.RecoverInterrupted(ctx); err != nil {
		logger.Fatal().Err(err).Msg("job recovery failed")
	}

	server := api.New(api.Deps{
		Config:   cfg,
		Manager:  manager,
		Disk:     disk,
		Pool:     pool,
		Reasoner: reasoner,
		Logger:   log.WithComponent("http"),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	manager.Close(shutdownGrace)
	logger.Info().Msg("daemon stopped")
}
