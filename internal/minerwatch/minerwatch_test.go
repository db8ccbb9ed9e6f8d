package minerwatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

func TestSecretTakeZeroesAndIsOneShot(t *testing.T) {
	s := NewSecret("hunter2")
	got := s.Take()
	if string(got) != "hunter2" {
		t.Fatalf("Take() = %q, want hunter2", got)
	}
	second := s.Take()
	for _, b := range second {
		if b != 0 {
			t.Errorf("expected second Take() to be zeroed, got %v", second)
		}
	}
}

func TestBuildLaunchDirect(t *testing.T) {
	cfg := config.MinerConfig{Binary: "xmrig", PoolURL: "pool:3333", RigID: "rig1", Threads: 4, HTTPHost: "127.0.0.1", HTTPPort: 18088, TLS: true, Keepalive: true}
	binary, args := buildLaunch(cfg)
	if binary != "xmrig" {
		t.Errorf("binary = %q, want xmrig", binary)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"--url pool:3333", "--user rig1", "--threads 4", "--rig-id rig1", "--http-host 127.0.0.1", "--http-port 18088", "--tls", "--keepalive"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args = %q, missing %q", joined, want)
		}
	}
}

func TestBuildLaunchPrivileged(t *testing.T) {
	cfg := config.MinerConfig{Binary: "xmrig", Privileged: true, PoolURL: "pool:3333"}
	binary, args := buildLaunch(cfg)
	if binary != "sudo" {
		t.Errorf("binary = %q, want sudo", binary)
	}
	if args[0] != "--stdin" || args[1] != "xmrig" {
		t.Errorf("args = %v, want to start with [--stdin xmrig]", args)
	}
}

func TestPollSummaryUpdatesTelemetryOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"worker_id": "rig1",
			"resources": map[string]any{"load_average": []any{1.1, 1.2, 1.3}},
			"hashrate":  map[string]any{"total": []any{100.0, 200.0, 300.0}},
			"connection": map[string]any{
				"pool": "pool.example:443", "diff": 5000, "accepted": 10, "rejected": 0,
			},
		})
	}))
	defer srv.Close()

	cfg := config.MinerConfig{RequestTimeout: 500 * time.Millisecond}
	proc := process.New(process.Miner)
	proc.MarkAlive(&fakeChild{})
	tel := telemetry.NewMiner()
	w := New(cfg, proc, tel, testLogger(), nil)

	w.pollSummary(context.Background(), srv.URL)

	pub := tel.Public()
	if pub.WorkerID != "rig1" {
		t.Errorf("WorkerID = %q, want rig1", pub.WorkerID)
	}
	if pub.Accepted != 10 {
		t.Errorf("Accepted = %d, want 10", pub.Accepted)
	}
	if pub.Hashrate15m == nil || *pub.Hashrate15m != 100.0 {
		t.Errorf("Hashrate15m = %v, want 100.0", pub.Hashrate15m)
	}
}

func TestPollSummaryLeavesTelemetryOnFailure(t *testing.T) {
	cfg := config.MinerConfig{RequestTimeout: 100 * time.Millisecond}
	proc := process.New(process.Miner)
	tel := telemetry.NewMiner()
	w := New(cfg, proc, tel, testLogger(), nil)

	w.pollSummary(context.Background(), "http://127.0.0.1:1/unreachable")

	pub := tel.Public()
	if pub.WorkerID != "" {
		t.Errorf("expected telemetry untouched on failure, got WorkerID=%q", pub.WorkerID)
	}
}

type fakeChild struct{}

func (f *fakeChild) Kill() error { return nil }
func (f *fakeChild) PID() int    { return 1 }
