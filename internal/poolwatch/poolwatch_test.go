package poolwatch

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"minesup/config"
	"minesup/internal/process"
	"minesup/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.PoolConfig {
	return config.PoolConfig{
		Binary:  "/bin/sh",
		Wallet:  "wallet-addr",
		Host:    "127.0.0.1",
		RPCPort: 18081,
		ZMQPort: 18083,
		DataAPI: filepath.Join(t.TempDir(), "data"),
	}
}

func TestRunCapturesPayoutsAndStops(t *testing.T) {
	cfg := testConfig(t)
	proc := process.New(process.Pool)
	tel := telemetry.NewPool()
	w := New(cfg, proc, tel, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	script := `
echo "You received a payout of 5.000000000001 XMR in block 1"
echo "You received a payout of 5.000000000001 XMR in block 2"
echo "You received a payout of 5.000000000001 XMR in block 3"
sleep 5
`
	done := make(chan error, 1)
	go func() {
		done <- w.runChild(ctx, "/bin/sh", []string{"-c", script})
	}()

	deadline := time.After(3 * time.Second)
	for proc.State() != process.Alive {
		select {
		case <-deadline:
			t.Fatal("process never became Alive")
		case <-time.After(50 * time.Millisecond):
		}
	}

	// Give the watchdog loop a couple epochs to drain parse_buf.
	time.Sleep(2 * time.Second)

	proc.RequestSignal(process.SignalStop)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("watchdog did not stop in time")
	}

	if proc.State() != process.Dead && proc.State() != process.Failed {
		t.Errorf("state after stop = %v, want Dead or Failed", proc.State())
	}

	pub := tel.Public()
	if pub.Payouts != 3 {
		t.Errorf("Payouts = %d, want 3", pub.Payouts)
	}
}

func TestRestartSignalObservesMiddleThenWaiting(t *testing.T) {
	cfg := testConfig(t)
	proc := process.New(process.Pool)
	tel := telemetry.NewPool()
	w := New(cfg, proc, tel, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.runChild(ctx, "/bin/sh", []string{"-c", "sleep 5"})
	}()

	deadline := time.After(3 * time.Second)
	for proc.State() != process.Alive {
		select {
		case <-deadline:
			t.Fatal("process never became Alive")
		case <-time.After(50 * time.Millisecond):
		}
	}

	proc.RequestSignal(process.SignalRestart)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("watchdog did not return after restart signal")
	}

	if proc.State() != process.Waiting {
		t.Errorf("state after restart = %v, want Waiting", proc.State())
	}
	if !strings.Contains(tel.Public().Console, "pool restarting") {
		t.Errorf("console = %q, want restart banner", tel.Public().Console)
	}
}

func TestBuildArgsFixedMode(t *testing.T) {
	cfg := config.PoolConfig{
		Wallet: "w", Host: "h", RPCPort: 1, ZMQPort: 2, DataAPI: "d",
		Mini: true, LogLevel: 3, OutPeers: 4, InPeers: 5,
	}
	args := buildArgs(cfg)
	joined := strings.Join(args, " ")
	for _, want := range []string{"--wallet w", "--host h", "--rpc-port 1", "--zmq-port 2", "--data-api d", "--local-api", "--no-color", "--mini", "--loglevel 3", "--out-peers 4", "--in-peers 5"} {
		if !strings.Contains(joined, want) {
			t.Errorf("buildArgs() = %q, missing %q", joined, want)
		}
	}
}

func TestApplyAdvancedOverridesFields(t *testing.T) {
	cfg := config.PoolConfig{Wallet: "orig", RPCPort: 1, ZMQPort: 2, DataAPI: "d"}
	out := applyAdvanced(cfg, "--mini --wallet newwallet --rpc-port 9000")

	if !out.Mini {
		t.Error("expected --mini to set Mini=true")
	}
	if out.Wallet != "newwallet" {
		t.Errorf("Wallet = %q, want newwallet", out.Wallet)
	}
	if out.RPCPort != 9000 {
		t.Errorf("RPCPort = %d, want 9000", out.RPCPort)
	}
	if out.ZMQPort != 2 {
		t.Errorf("ZMQPort = %d, want unchanged 2", out.ZMQPort)
	}
}

func TestFillDerivedFormatsFields(t *testing.T) {
	data := &telemetry.PoolData{}
	fillDerived(data, telemetry.PoolStats{Hashrate1h: 1234, SharesFound: 9, AverageEffort: 0.0, Connections: 2})
	if data.Hashrate1h != "1,234 H/s" {
		t.Errorf("Hashrate1h = %q, want '1,234 H/s'", data.Hashrate1h)
	}
	if data.AverageEffort != "0%" {
		t.Errorf("AverageEffort = %q, want '0%%'", data.AverageEffort)
	}
	if data.SharesFound != 9 || data.Connections != 2 {
		t.Errorf("data = %+v", data)
	}
}
