// Package minerwatch implements the Miner Watchdog (spec §4.5): identical in
// structure to the Pool Watchdog, but the child is optionally launched and
// killed through a privileged-escalation helper, and telemetry is polled
// over HTTP instead of from a file.
package minerwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"minesup/config"
	"minesup/internal/buffer"
	"minesup/internal/parser"
	"minesup/internal/process"
	"minesup/internal/ptychild"
	"minesup/internal/telemetry"
)

const targetPeriod = 900 * time.Millisecond

// sudoGrace is how long the watchdog waits after spawning the privilege
// helper before writing the secret to its stdin, so the helper has reached
// its silent password prompt and the secret never echoes to the PTY.
const sudoGrace = 3 * time.Second

// Secret carries the user's privilege-escalation credential for exactly one
// Take call; the backing bytes are zeroed as soon as they're read.
type Secret struct {
	value []byte
}

// NewSecret wraps a credential for one-time, self-zeroing use.
func NewSecret(value string) *Secret {
	return &Secret{value: []byte(value)}
}

// Take returns the secret bytes and zeroes the backing array so the secret
// cannot be read twice.
func (s *Secret) Take() []byte {
	v := make([]byte, len(s.value))
	copy(v, s.value)
	wipe(s.value)
	return v
}

// Watchdog owns the Miner child for the lifetime of one Run call.
type Watchdog struct {
	cfg    config.MinerConfig
	proc   *process.Process
	tel    *telemetry.Miner
	logger *slog.Logger
	secret *Secret

	httpClient *http.Client
}

// New returns a Watchdog for the given configuration, Process record,
// telemetry triplet, and (platform-dependent, possibly nil) privileged-launch
// secret.
func New(cfg config.MinerConfig, proc *process.Process, tel *telemetry.Miner, logger *slog.Logger, secret *Secret) *Watchdog {
	return &Watchdog{
		cfg:        cfg,
		proc:       proc,
		tel:        tel,
		logger:     logger,
		secret:     secret,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Run spawns the miner child and services it until it exits or a Stop/Restart
// signal is observed.
func (w *Watchdog) Run(ctx context.Context) error {
	binary, args := buildLaunch(w.cfg)

	child, err := ptychild.Spawn(ctx, binary, args, ".", w.onLine)
	if err != nil {
		w.proc.SetState(process.Failed)
		return fmt.Errorf("miner spawn failed: %w", err)
	}

	if w.cfg.Privileged && w.secret != nil {
		go w.writeSudoSecret(child)
	}

	w.proc.MarkAlive(child)

	summaryURL := fmt.Sprintf("http://%s:%d/1/summary", w.cfg.HTTPHost, w.cfg.HTTPPort)

	for {
		start := time.Now()

		if exited, waitErr := child.TryWait(); exited {
			w.finish(process.StateFromExit(waitErr), "miner exited")
			return nil
		}

		switch w.proc.TakeSignal() {
		case process.SignalStop:
			w.kill(ctx, child)
			waitErr := child.Wait()
			w.finish(process.StateFromExit(waitErr), "miner stopped")
			return nil
		case process.SignalRestart:
			w.proc.SetState(process.Middle)
			w.kill(ctx, child)
			_ = child.Wait()
			w.tel.AppendConsoleLine(banner("miner restarting"))
			w.proc.SetState(process.Waiting)
			return nil
		}

		for _, line := range w.proc.DrainInput() {
			if err := child.WriteLine(line); err != nil {
				w.logger.Error("failed to write miner stdin", "error", err)
			}
		}

		w.pollSummary(ctx, summaryURL)

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
	// Miner output is never parsed (spec §4.3): only forwarded to console.
	w.tel.AppendConsoleLine(line)
}

func (w *Watchdog) finish(state process.State, reason string) {
	w.tel.AppendConsoleLine(banner(reason))
	w.proc.SetState(state)
}

func banner(reason string) string {
	return fmt.Sprintf("------------------------------------------------------------\n%s\n------------------------------------------------------------", reason)
}

// writeSudoSecret waits sudoGrace for the helper's password prompt, then
// writes the secret once to the PTY master (the helper's stdin) and wipes
// it. Called from its own goroutine so it never blocks the epoch loop.
func (w *Watchdog) writeSudoSecret(child *ptychild.Child) {
	time.Sleep(sudoGrace)
	secret := w.secret.Take()
	defer wipe(secret)
	if err := child.WriteLine(string(secret)); err != nil {
		w.logger.Error("failed to deliver privileged-launch secret", "error", err)
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// kill terminates the child: on the privileged platform it re-invokes the
// escalation helper with "kill -9 <pid>" and the secret; otherwise a direct
// PTY hangup suffices.
func (w *Watchdog) kill(ctx context.Context, child *ptychild.Child) {
	if !w.cfg.Privileged || w.secret == nil {
		if err := child.Kill(); err != nil {
			w.logger.Error("miner kill failed", "error", err)
		}
		return
	}

	killCmd, err := ptychild.Spawn(ctx, "sudo", []string{"--stdin", "kill", "-9", strconv.Itoa(child.PID())}, ".", func(string) {})
	if err != nil {
		w.logger.Error("privileged kill helper spawn failed", "error", err)
		_ = child.Kill()
		return
	}

	secret := w.secret.Take()
	defer wipe(secret)
	if err := killCmd.WriteLine(string(secret)); err != nil {
		w.logger.Error("privileged kill secret delivery failed", "error", err)
	}
	_ = killCmd.Wait()
	_ = child.Kill()
}

// pollSummary fetches the miner's /1/summary and, on success, updates
// telemetry. Failure is logged at warn and telemetry is left untouched.
func (w *Watchdog) pollSummary(ctx context.Context, url string) {
	reqCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		w.logger.Warn("miner summary request build failed", "error", err)
		return
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("miner summary request failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	summary, err := parser.DecodeMinerSummary(resp.Body)
	if err != nil {
		w.logger.Warn("miner summary decode failed", "error", err)
		return
	}

	raw := summary.ToTelemetry()
	w.tel.UpdateStats(raw)

	data := telemetry.MinerData{
		Uptime:      telemetry.HumanTime(time.Since(w.proc.StartTime())),
		WorkerID:    raw.WorkerID,
		LoadAverage: telemetry.FromLoad(raw.LoadAverage),
		HashrateVec: telemetry.FromHashrate(raw.HashrateTot),
		Pool:        raw.Pool,
		Difficulty:  telemetry.FromUint64(raw.Difficulty),
		Accepted:    raw.Accepted,
		Rejected:    raw.Rejected,
	}
	if v := raw.HashrateTot[0]; v != nil {
		data.Hashrate15m = v
	}
	if v := raw.HashrateTot[1]; v != nil {
		data.Hashrate1m = v
	}
	if v := raw.HashrateTot[2]; v != nil {
		data.HashrateInst = v
	}
	w.tel.SetPublic(data)
}

// Reconfigure repoints a running miner at target via HTTP PUT /2/config
// (spec §4.6 enactment, §6 control API); it is called by the donation
// scheduler, not the watchdog loop.
func Reconfigure(ctx context.Context, cfg config.MinerConfig, url, user string) error {
	body, err := json.Marshal(map[string]string{"url": url, "user": user})
	if err != nil {
		return fmt.Errorf("encode miner config body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("http://%s:%d/2/config", cfg.HTTPHost, cfg.HTTPPort)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build miner config request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Token)

	resp, err := (&http.Client{Timeout: cfg.RequestTimeout}).Do(req)
	if err != nil {
		return fmt.Errorf("miner config PUT failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("miner config PUT returned status %d", resp.StatusCode)
	}
	return nil
}

// buildLaunch returns the binary and args to spawn: on the privileged
// platform, the configured helper wraps the miner binary as its argument;
// otherwise the miner binary is launched directly. Only one privilege helper
// ("sudo") is modeled, matching spec §4.5's "one platform only".
func buildLaunch(cfg config.MinerConfig) (string, []string) {
	args := []string{
		"--url", cfg.PoolURL,
		"--user", cfg.RigID,
		"--threads", strconv.Itoa(cfg.Threads),
		"--rig-id", cfg.RigID,
		"--http-host", cfg.HTTPHost,
		"--http-port", strconv.Itoa(cfg.HTTPPort),
		"--no-color",
	}
	if cfg.TLS {
		args = append(args, "--tls")
	}
	if cfg.Keepalive {
		args = append(args, "--keepalive")
	}
	if cfg.PauseOnActive != 0 {
		args = append(args, "--pause-on-active", strconv.Itoa(cfg.PauseOnActive))
	}

	if cfg.Privileged {
		return "sudo", append([]string{"--stdin", cfg.Binary}, args...)
	}
	return cfg.Binary, args
}
