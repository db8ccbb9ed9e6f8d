package donation

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"minesup/config"
	"minesup/internal/rollingwindow"
	"minesup/internal/telemetry"
)

var thresholds = Thresholds{MinDonor: 1_000, MinVIP: 10_000, MinWhale: 100_000, MinMega: 1_000_000}

// baseInputs mirrors the scheduler scenarios table's shape (LHR=5000,
// mini=true, thresholds {1k,10k,100k,1M}) but with a Difficulty scaled so
// min_hr comes out near zero at pool_ehr=0, matching the table's implied
// "share easily kept" setup — the table's own literal D assumes PWS/SPB
// network constants this module's reference material does not retain.
func baseInputs() Inputs {
	return Inputs{
		LHR:        5_000,
		Difficulty: 18_000,
		Mini:       true,
		PoolEHR:    0,
		HeroMode:   false,
		Thresholds: thresholds,
		Epoch:      600 * time.Second,
	}
}

// Scenario 1: share in window, no hero mode, tier-snapped to NORMAL.
func TestScenario1TierSnappedToNormal(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = true

	got := Decide(in)
	if got < 100 || got > 140 {
		t.Errorf("Decide() = %v, want roughly 120 (NORMAL tier snap)", got)
	}
}

// Scenario 2: same inputs but hero mode — no tier snapping.
func TestScenario2HeroModeNoSnap(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = true
	in.HeroMode = true

	got := Decide(in)

	pws := float64(PWSMini)
	minHR := math.Max(0, (in.Difficulty/(pws*SPB))*BUFFER-in.PoolEHR)
	want := 600.0 * (1 - minHR/in.LHR)

	if math.Abs(got-want) > 1.0 {
		t.Errorf("Decide() = %v, want ≈%v", got, want)
	}
}

// Scenario 3: no share in window → always 0, regardless of other inputs.
func TestScenario3NoShareAlwaysZero(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = false
	in.HeroMode = true
	in.LHR = 999_999

	if got := Decide(in); got != 0 {
		t.Errorf("Decide() = %v, want 0 when ShareInWindow is false", got)
	}
}

// Scenario 4: high pool_ehr drives min_hr to 0, so spared is the full epoch
// before tier snapping kicks in.
func TestScenario4HighPoolEHRFullSpared(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = true
	in.PoolEHR = 20_000

	pws := float64(PWSMini)
	minHR := math.Max(0, (in.Difficulty/(pws*SPB))*BUFFER-in.PoolEHR)
	if minHR != 0 {
		t.Fatalf("test setup invalid: expected min_hr=0, got %v", minHR)
	}

	got := Decide(in)
	if got <= 0 || got > 600 {
		t.Errorf("Decide() = %v, want a tier-snapped value in (0, 600]", got)
	}
}

func TestDecideClampsToEpochBounds(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = true
	in.HeroMode = true
	in.Difficulty = 0

	got := Decide(in)
	if got < 0 || got > 600 {
		t.Errorf("Decide() = %v, want within [0, 600]", got)
	}
}

func TestDecideZeroLHRIsZero(t *testing.T) {
	in := baseInputs()
	in.ShareInWindow = true
	in.LHR = 0

	if got := Decide(in); got != 0 {
		t.Errorf("Decide() = %v, want 0 when LHR is 0", got)
	}
}

type stubExternal struct {
	share    bool
	poolEHR  float64
	donorEHR float64
}

func (s stubExternal) Reset()                                      {}
func (s stubExternal) ShareInWindow(context.Context) (bool, error) { return s.share, nil }
func (s stubExternal) PoolEHR(context.Context) (float64, error)    { return s.poolEHR, nil }
func (s stubExternal) DonorEHR(context.Context) (float64, error)   { return s.donorEHR, nil }

func TestRunEpochPicksUpShareInWindowFromExternalInputs(t *testing.T) {
	minerTel := telemetry.NewMiner()
	donorTel := telemetry.NewDonor()
	external := stubExternal{share: false}

	s := New(config.DonorConfig{Epoch: 600 * time.Second, MinDonor: 1_000, MinVIP: 10_000, MinWhale: 100_000, MinMega: 1_000_000},
		config.MinerConfig{}, config.PoolConfig{}, minerTel, donorTel, external, discardLogger())

	if err := s.RunEpoch(context.Background()); err != nil {
		t.Fatalf("RunEpoch failed: %v", err)
	}

	if donorTel.Target() != telemetry.TargetPool {
		t.Errorf("Target() = %v, want Pool when share is absent", donorTel.Target())
	}
	if got := donorTel.SentToDonor.Samples(); len(got) != 1 || got[0] != 0 {
		t.Errorf("SentToDonor samples = %v, want [0]", got)
	}
}

// TestEnactNoShareSplitsSampleAcrossBothWindows verifies the spec §9
// documented fix: the no-share branch pushes (LHR, 0) across the two
// distinct windows, not (LHR, LHR) or two pushes onto one window.
func TestEnactNoShareSplitsSampleAcrossBothWindows(t *testing.T) {
	donorTel := telemetry.NewDonor()
	s := &Scheduler{donorTel: donorTel, logger: discardLogger()}

	in := baseInputs()
	in.ShareInWindow = false
	in.LHR = 4242

	if err := s.enact(context.Background(), time.Now(), in, 0); err != nil {
		t.Fatalf("enact failed: %v", err)
	}

	if got := donorTel.SentToPool.Samples(); len(got) != 1 || got[0] != 4242 {
		t.Errorf("SentToPool samples = %v, want [4242]", got)
	}
	if got := donorTel.SentToDonor.Samples(); len(got) != 1 || got[0] != 0 {
		t.Errorf("SentToDonor samples = %v, want [0]", got)
	}
	if donorTel.Target() != telemetry.TargetPool {
		t.Errorf("Target() = %v, want Pool", donorTel.Target())
	}
}

func TestEnactZeroDonatedKeepsPoolTarget(t *testing.T) {
	donorTel := telemetry.NewDonor()
	s := &Scheduler{donorTel: donorTel, logger: discardLogger()}

	in := baseInputs()
	in.ShareInWindow = true
	in.LHR = 1000

	if err := s.enact(context.Background(), time.Now(), in, 0); err != nil {
		t.Fatalf("enact failed: %v", err)
	}

	if donorTel.Target() != telemetry.TargetPool {
		t.Errorf("Target() = %v, want Pool", donorTel.Target())
	}
	if got := donorTel.SentToPool.Samples(); len(got) != 1 || got[0] != 1000 {
		t.Errorf("SentToPool samples = %v, want [1000]", got)
	}
}

func TestEnactSuccessfulReconfigureSetsFastTargetWhenURLFastConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}

	donorTel := telemetry.NewDonor()
	s := &Scheduler{
		cfg:      config.DonorConfig{URLFast: "donor.fast:4444", URLNormal: "donor.normal:3333"},
		minerCfg: config.MinerConfig{HTTPHost: host, HTTPPort: port, RequestTimeout: time.Second, RigID: "rig"},
		donorTel: donorTel,
		logger:   discardLogger(),
	}

	in := baseInputs()
	in.ShareInWindow = true
	in.LHR = 5_000
	in.Epoch = 2 * time.Second

	if err := s.enact(context.Background(), time.Now(), in, 1); err != nil {
		t.Fatalf("enact failed: %v", err)
	}

	if donorTel.Target() != telemetry.TargetDonorFast {
		t.Errorf("Target() = %v, want TargetDonorFast (URLFast is configured and non-empty)", donorTel.Target())
	}
}

func TestDonorURLPrefersFastWhenConfigured(t *testing.T) {
	s := &Scheduler{cfg: config.DonorConfig{URLFast: "donor.fast:4444", URLNormal: "donor.normal:3333"}}
	if url, fast := s.donorURL(); url != "donor.fast:4444" || !fast {
		t.Errorf("donorURL() = (%q, %v), want (\"donor.fast:4444\", true)", url, fast)
	}

	s2 := &Scheduler{cfg: config.DonorConfig{URLNormal: "donor.normal:3333"}}
	if url, fast := s2.donorURL(); url != "donor.normal:3333" || fast {
		t.Errorf("donorURL() = (%q, %v), want (\"donor.normal:3333\", false)", url, fast)
	}
}

func TestRollingWindowCapacityIsSix(t *testing.T) {
	w := rollingwindow.New()
	for i := 0; i < 10; i++ {
		w.Push(float64(i))
	}
	if w.Len() != rollingwindow.Capacity {
		t.Errorf("Len() = %d, want %d", w.Len(), rollingwindow.Capacity)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
