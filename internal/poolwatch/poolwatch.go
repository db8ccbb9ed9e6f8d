// Package poolwatch implements the Pool Watchdog (spec §4.4): it owns the
// pool daemon's pseudo-terminal child, services UI-requested stop/restart
// signals, feeds pending stdin lines to the child, parses payout events out
// of its console output, and polls its on-disk stats file into telemetry.
package poolwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minesup/config"
	"minesup/internal/buffer"
	"minesup/internal/parser"
	"minesup/internal/process"
	"minesup/internal/ptychild"
	"minesup/internal/telemetry"
)

// targetPeriod is the watchdog epoch's target period (spec §4.4: "900 ms
// target period").
const targetPeriod = 900 * time.Millisecond

// Watchdog owns the Pool child for the lifetime of one Run call. A new
// Watchdog (and thus a new Run) is created for every Start, including the
// one following a Restart.
type Watchdog struct {
	cfg    config.PoolConfig
	proc   *process.Process
	tel    *telemetry.Pool
	logger *slog.Logger

	parseBuf *buffer.Buffer

	payoutCount uint64
	payoutXMR   float64
}

// New returns a Watchdog for the given configuration, Process record, and
// telemetry triplet.
func New(cfg config.PoolConfig, proc *process.Process, tel *telemetry.Pool, logger *slog.Logger) *Watchdog {
	return &Watchdog{cfg: cfg, proc: proc, tel: tel, logger: logger, parseBuf: buffer.New()}
}

// Run spawns the pool child and services it until it exits or a Stop/Restart
// signal is observed, then returns. The caller is expected to invoke Run once
// per Start (including the respawn after a Restart puts the record in
// Waiting), typically from a dedicated goroutine.
func (w *Watchdog) Run(ctx context.Context) error {
	return w.runChild(ctx, w.cfg.Binary, buildArgs(w.cfg))
}

// runChild is Run's implementation, parameterized over the binary and args
// so tests can substitute a stand-in binary for the real pool daemon.
func (w *Watchdog) runChild(ctx context.Context, binary string, args []string) error {
	statsPath := filepath.Join(w.cfg.DataAPI, "local", "stats")

	child, err := ptychild.Spawn(ctx, binary, args, ".", w.onLine)
	if err != nil {
		w.proc.SetState(process.Failed)
		return fmt.Errorf("pool spawn failed: %w", err)
	}

	w.proc.MarkAlive(child)

	if err := parser.SeedPoolStatsFile(statsPath); err != nil {
		w.logger.Warn("failed to seed pool stats file", "path", statsPath, "error", err)
	}

	for {
		start := time.Now()

		if exited, waitErr := child.TryWait(); exited {
			w.finish(process.StateFromExit(waitErr), "pool exited")
			return nil
		}

		switch w.proc.TakeSignal() {
		case process.SignalStop:
			_ = child.Kill()
			waitErr := child.Wait()
			w.finish(process.StateFromExit(waitErr), "pool stopped")
			return nil
		case process.SignalRestart:
			w.proc.SetState(process.Middle)
			_ = child.Kill()
			_ = child.Wait()
			w.tel.AppendConsoleLine(banner("pool restarting"))
			w.proc.SetState(process.Waiting)
			return nil
		}

		for _, line := range w.proc.DrainInput() {
			if err := child.WriteLine(line); err != nil {
				w.logger.Error("failed to write pool stdin", "error", err)
			}
		}

		w.runParser(statsPath)

		if elapsed := time.Since(start); elapsed < targetPeriod {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(targetPeriod - elapsed):
			}
		}
	}
}

func (w *Watchdog) onLine(line string) {
	w.parseBuf.AppendLine(line)
	w.tel.AppendConsoleLine(line)
}

func (w *Watchdog) finish(state process.State, reason string) {
	w.tel.AppendConsoleLine(banner(reason))
	w.proc.SetState(state)
}

func banner(reason string) string {
	return fmt.Sprintf("------------------------------------------------------------\n%s\n------------------------------------------------------------", reason)
}

// runParser drains parse_buf through the payout regex, accumulates the
// running totals, reads the stats file, and publishes the merged result as
// public telemetry.
func (w *Watchdog) runParser(statsPath string) {
	text := w.parseBuf.Drain()
	if text != "" {
		count, sum := parser.ParsePayouts(text, w.logger)
		w.payoutCount += count
		w.payoutXMR += sum
	}

	elapsed := time.Since(w.proc.StartTime()).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	data := telemetry.PoolData{
		Uptime:       telemetry.HumanTime(time.Since(w.proc.StartTime())),
		Payouts:      w.payoutCount,
		XMR:          w.payoutXMR,
		PayoutsHour:  float64(w.payoutCount) / elapsed * 3600,
		PayoutsDay:   float64(w.payoutCount) / elapsed * 3600 * 24,
		PayoutsMonth: float64(w.payoutCount) / elapsed * 3600 * 24 * 30,
		XMRHour:      w.payoutXMR / elapsed * 3600,
		XMRDay:       w.payoutXMR / elapsed * 3600 * 24,
		XMRMonth:     w.payoutXMR / elapsed * 3600 * 24 * 30,
	}

	stats, err := parser.ReadPoolStatsFile(statsPath)
	if err != nil {
		w.logger.Warn("pool stats file unavailable this epoch", "path", statsPath, "error", err)
		prev := w.tel.Stats()
		fillDerived(&data, prev)
		w.tel.SetPublic(data)
		return
	}

	raw := stats.ToTelemetry()
	w.tel.UpdateStats(raw)
	fillDerived(&data, raw)
	w.tel.SetPublic(data)
}

func fillDerived(data *telemetry.PoolData, raw telemetry.PoolStats) {
	data.Hashrate15m = telemetry.FromUint64(raw.Hashrate15m) + " H/s"
	data.Hashrate1h = telemetry.FromUint64(raw.Hashrate1h) + " H/s"
	data.Hashrate24h = telemetry.FromUint64(raw.Hashrate24h) + " H/s"
	data.SharesFound = raw.SharesFound
	data.AverageEffort = telemetry.ToPercent(raw.AverageEffort)
	data.CurrentEffort = telemetry.ToPercent(raw.CurrentEffort)
	data.Connections = raw.Connections
}

// buildArgs constructs the pool CLI per spec §6, applying advanced-mode
// token overrides first when cfg.Advanced is non-empty.
func buildArgs(cfg config.PoolConfig) []string {
	if cfg.Advanced != "" {
		cfg = applyAdvanced(cfg, cfg.Advanced)
	}

	args := []string{
		"--wallet", cfg.Wallet,
		"--host", cfg.Host,
		"--rpc-port", strconv.Itoa(cfg.RPCPort),
		"--zmq-port", strconv.Itoa(cfg.ZMQPort),
		"--data-api", cfg.DataAPI,
		"--local-api",
		"--no-color",
	}
	if cfg.Mini {
		args = append(args, "--mini")
	}
	if cfg.LogLevel != 0 {
		args = append(args, "--loglevel", strconv.Itoa(cfg.LogLevel))
	}
	if cfg.OutPeers != 0 {
		args = append(args, "--out-peers", strconv.Itoa(cfg.OutPeers))
	}
	if cfg.InPeers != 0 {
		args = append(args, "--in-peers", strconv.Itoa(cfg.InPeers))
	}
	return args
}

// applyAdvanced parses a free-form advanced argument string token-by-token,
// recognizing the tokens named in spec §6 and overriding the matching field
// of a copy of cfg. Unrecognized tokens are ignored; the last recognized flag
// is remembered so the following token is consumed as its value.
func applyAdvanced(cfg config.PoolConfig, advanced string) config.PoolConfig {
	tokens := strings.Fields(advanced)
	var pending string

	for _, tok := range tokens {
		if pending != "" {
			switch pending {
			case "--wallet":
				cfg.Wallet = tok
			case "--host":
				cfg.Host = tok
			case "--rpc-port":
				if n, err := strconv.Atoi(tok); err == nil {
					cfg.RPCPort = n
				}
			case "--zmq-port":
				if n, err := strconv.Atoi(tok); err == nil {
					cfg.ZMQPort = n
				}
			case "--loglevel":
				if n, err := strconv.Atoi(tok); err == nil {
					cfg.LogLevel = n
				}
			case "--out-peers":
				if n, err := strconv.Atoi(tok); err == nil {
					cfg.OutPeers = n
				}
			case "--in-peers":
				if n, err := strconv.Atoi(tok); err == nil {
					cfg.InPeers = n
				}
			case "--data-api":
				cfg.DataAPI = tok
			}
			pending = ""
			continue
		}

		switch tok {
		case "--mini":
			cfg.Mini = true
		case "--wallet", "--host", "--rpc-port", "--zmq-port", "--loglevel", "--out-peers", "--in-peers", "--data-api":
			pending = tok
		}
	}

	return cfg
}
