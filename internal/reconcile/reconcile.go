// Package reconcile implements the Reconciliation Loop (spec §4.7): a
// dedicated 1 Hz thread that merges each watchdog's internal telemetry into
// the UI-visible telemetry, refreshes system resource usage, and maintains
// the supervisor's own uptime string.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"minesup/internal/process"
	"minesup/internal/sysinfo"
	"minesup/internal/telemetry"
)

const targetPeriod = 1000 * time.Millisecond

// Loop owns the supervisor-level telemetry ("Helper" in the lock order below)
// and drives one merge pass per tick.
//
// Tick calls into its collaborators in this order: Helper (this Loop's own
// mutex) -> Pool process -> Miner process -> system telemetry -> Helper
// again (to store the snapshot) -> internal-pool -> UI-pool ->
// internal-miner -> UI-miner (the last four through MergeToUI). Every
// collaborator guards its own state behind its own mutex and this loop never
// holds more than one lock at a time, so there is no chain of held locks to
// order.
type Loop struct {
	startTime time.Time

	poolProc  *process.Process
	minerProc *process.Process
	poolTel   *telemetry.Pool
	minerTel  *telemetry.Miner
	sys       *sysinfo.Provider
	logger    *slog.Logger

	mu        sync.Mutex
	uptime    string
	snapshot  sysinfo.Snapshot
}

// New returns a Loop ready to run.
func New(poolProc, minerProc *process.Process, poolTel *telemetry.Pool, minerTel *telemetry.Miner, sys *sysinfo.Provider, logger *slog.Logger) *Loop {
	return &Loop{
		startTime: time.Now(),
		poolProc:  poolProc,
		minerProc: minerProc,
		poolTel:   poolTel,
		minerTel:  minerTel,
		sys:       sys,
		logger:    logger,
	}
}

// Run ticks once per targetPeriod, sleeping the remainder, until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		start := time.Now()
		l.Tick(ctx)

		if elapsed := time.Since(start); elapsed < targetPeriod {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(targetPeriod - elapsed):
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
}

// Tick performs one reconciliation pass: uptime, conditional telemetry
// merges, and a system-resource refresh, in the lock order documented on
// Loop.
func (l *Loop) Tick(ctx context.Context) {
	l.mu.Lock()
	l.uptime = telemetry.HumanTime(time.Since(l.startTime))
	l.mu.Unlock()

	poolState := l.poolProc.State()
	minerState := l.minerProc.State()

	var poolPID, minerPID int
	if poolState == process.Alive {
		if child := l.poolProc.Child(); child != nil {
			poolPID = child.PID()
		}
	}
	if minerState == process.Alive {
		if child := l.minerProc.Child(); child != nil {
			minerPID = child.PID()
		}
	}

	snap, err := l.sys.Collect(ctx, poolPID, minerPID)
	if err != nil {
		l.logger.Warn("system telemetry refresh degraded, keeping previous snapshot", "error", err)
	} else {
		l.mu.Lock()
		l.snapshot = snap
		l.mu.Unlock()
	}

	if poolState == process.Alive {
		l.poolTel.MergeToUI()
	}
	if minerState == process.Alive {
		l.minerTel.MergeToUI()
	}
}

// Uptime returns the supervisor's current human-readable uptime string.
func (l *Loop) Uptime() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uptime
}

// System returns the most recently collected system resource snapshot.
func (l *Loop) System() sysinfo.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}
