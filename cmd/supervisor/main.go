// Package main wires the mining supervisor together: configuration, logging,
// the Pool and Miner watchdogs, the donation scheduler, and the
// reconciliation loop, all under one cancellable lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"minesup/config"
	"minesup/internal/donation"
	"minesup/internal/minerwatch"
	"minesup/internal/poolwatch"
	"minesup/internal/process"
	"minesup/internal/reconcile"
	"minesup/internal/sysinfo"
	"minesup/internal/telemetry"
	"minesup/logger"

	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "", "Log format (text, color, json)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logger.Set(logger.NewFromConfig(cfg))
	log := logger.Get()
	log.Info("starting mining supervisor",
		"pool_binary", cfg.Pool.Binary,
		"miner_binary", cfg.Miner.Binary,
		"donor_epoch", cfg.Donor.Epoch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolProc := process.New(process.Pool)
	minerProc := process.New(process.Miner)
	poolTel := telemetry.NewPool()
	minerTel := telemetry.NewMiner()
	donorTel := telemetry.NewDonor()

	secret := privilegedSecret(cfg.Miner)
	external := donation.NewHTTPExternalInputs(cfg.Donor)

	loop := reconcile.New(poolProc, minerProc, poolTel, minerTel, sysinfo.NewProvider(), log)
	scheduler := donation.New(cfg.Donor, cfg.Miner, cfg.Pool, minerTel, donorTel, external, log)

	var latest atomic.Pointer[config.Config]
	latest.Store(cfg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runWithRespawn(gCtx, poolProc, log, "pool", func() error {
			return poolwatch.New(latest.Load().Pool, poolProc, poolTel, log).Run(gCtx)
		})
	})

	g.Go(func() error {
		return runWithRespawn(gCtx, minerProc, log, "miner", func() error {
			return minerwatch.New(latest.Load().Miner, minerProc, minerTel, log, secret).Run(gCtx)
		})
	})

	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	g.Go(func() error {
		return loop.Run(gCtx)
	})

	if err := config.Watch(gCtx, configPath, func(newCfg *config.Config) {
		latest.Store(newCfg)
		log.Info("configuration file changed; reload takes effect on next Restart")
	}, log); err != nil {
		log.Warn("failed to start config watcher", "error", err)
	}

	<-gCtx.Done()
	log.Info("shutdown requested, stopping children")
	poolProc.RequestSignal(process.SignalStop)
	minerProc.RequestSignal(process.SignalStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	waitForDead(shutdownCtx, poolProc, minerProc)

	if err := g.Wait(); err != nil {
		log.Error("supervisor exited with error", "error", err)
		os.Exit(1)
	}
}

// runWithRespawn calls run once per Start (including the respawn that
// follows a Restart signal, which leaves proc in process.Waiting). It
// returns when ctx is cancelled, or when a run leaves proc in any state
// other than Waiting.
func runWithRespawn(ctx context.Context, proc *process.Process, log *slog.Logger, name string, run func() error) error {
	for {
		if err := run(); err != nil {
			log.Error("watchdog run failed", "child", name, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if proc.State() != process.Waiting {
			return nil
		}
		log.Info("respawning after restart", "child", name)
	}
}

// waitForDead blocks until both processes leave the Alive/Middle states or
// ctx expires, so Stop signals have a chance to land before the supervisor
// exits.
func waitForDead(ctx context.Context, poolProc, minerProc *process.Process) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		poolDone := poolProc.State() != process.Alive && poolProc.State() != process.Middle
		minerDone := minerProc.State() != process.Alive && minerProc.State() != process.Middle
		if poolDone && minerDone {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// privilegedSecret returns the privileged-launch credential from the
// MINESUP_SUDO_PASSWORD environment variable, or nil if the miner is not
// configured for privileged launch.
func privilegedSecret(cfg config.MinerConfig) *minerwatch.Secret {
	if !cfg.Privileged {
		return nil
	}
	pw := os.Getenv("MINESUP_SUDO_PASSWORD")
	if pw == "" {
		return nil
	}
	return minerwatch.NewSecret(pw)
}
