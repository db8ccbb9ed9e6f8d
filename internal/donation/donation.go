// Package donation implements the Donation Scheduler (spec §4.6): every
// epoch it decides how many seconds of the next epoch the miner should be
// pointed at the Donor instead of the user's Pool, and enacts that decision
// over the miner's HTTP control API.
package donation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"minesup/config"
	"minesup/internal/minerwatch"
	"minesup/internal/telemetry"
)

// SPB is seconds per pool block.
const SPB = 10.0

// BUFFER absorbs estimation error in the minimum-hashrate calculation so a
// share is not lost to rounding.
const BUFFER = 1.2

// PWSMini and PWSMain are the PPLNS window sizes for mini and main pool
// chains. The original source assigns both the same value; two named
// constants are preserved per spec §9's open question rather than collapsed
// into one, pending product clarification on whether they were meant to
// differ.
const (
	PWSMini = 2160
	PWSMain = 2160
)

// Thresholds are the strictly-increasing donor-round hashrate thresholds.
type Thresholds struct {
	MinDonor float64
	MinVIP   float64
	MinWhale float64
	MinMega  float64
}

// Inputs are everything one decision needs (spec §4.6 "Inputs per decision").
type Inputs struct {
	LHR            float64 // local miner hashrate (15m → 1m → instant preference)
	Difficulty     float64
	Mini           bool
	PoolEHR        float64 // estimated hourly hashrate toward the user on the pool
	SentToPoolAvg  float64 // ehr_sent_pool: rolling 1h avg of "sent to pool" samples
	SentToDonorAvg float64 // ehr_sent_donor: rolling 1h avg of "sent to donor" samples
	DonorEHR       float64 // donor_1h_avg: hashrate already credited to the user on the donor pool
	HeroMode       bool
	ShareInWindow  bool
	Thresholds     Thresholds
	Epoch          time.Duration
}

// Decide runs the scheduler's algorithm (spec §4.6) and returns the number of
// seconds of the next epoch the miner should spend pointed at the Donor.
// Always 0 when ShareInWindow is false.
func Decide(in Inputs) float64 {
	if !in.ShareInWindow {
		return 0
	}

	epoch := in.Epoch.Seconds()

	pws := float64(PWSMain)
	if in.Mini {
		pws = float64(PWSMini)
	}

	ohr := in.PoolEHR - in.SentToPoolAvg
	minHR := math.Max(0, (in.Difficulty/(pws*SPB))*BUFFER-ohr)

	if in.LHR <= 0 {
		return 0
	}

	spared := epoch * (1 - minHR/in.LHR)
	if spared < 6 {
		return 0
	}

	if !in.HeroMode {
		spared = snapToHighestTier(spared, in, epoch)
	}

	if spared < 0 {
		spared = 0
	}
	if spared > epoch {
		spared = epoch
	}
	return spared
}

// snapToHighestTier shrinks spared to the smallest value that still lands
// the donor-credited hashrate in the highest reachable donor-round tier.
func snapToHighestTier(spared float64, in Inputs, epoch float64) float64 {
	hrForDonor := ((spared - 1) / epoch) * in.LHR
	ohrDonor := in.DonorEHR - in.SentToDonorAvg

	tiers := []float64{in.Thresholds.MinMega, in.Thresholds.MinWhale, in.Thresholds.MinVIP, in.Thresholds.MinDonor}
	for _, threshold := range tiers {
		minX := threshold - ohrDonor
		if hrForDonor > minX {
			return math.Ceil((minX / in.LHR) * epoch)
		}
	}
	return 0
}

// ExternalInputs supplies the decision inputs the scheduler cannot derive
// from local telemetry: whether the user currently holds a share in the
// pool's PPLNS window, the pool's estimated hourly hashrate toward the user,
// and the donor pool's 1h-average credited hashrate. These are external
// collaborators (spec §1): the supervisor consumes them, it does not own
// their implementation.
type ExternalInputs interface {
	// Reset drops any cached feed snapshot, so the accessors below fetch a
	// fresh one for the epoch about to start.
	Reset()
	ShareInWindow(ctx context.Context) (bool, error)
	PoolEHR(ctx context.Context) (float64, error)
	DonorEHR(ctx context.Context) (float64, error)
}

// Scheduler runs the donation control loop for the lifetime of one Run call.
type Scheduler struct {
	cfg      config.DonorConfig
	minerCfg config.MinerConfig
	poolCfg  config.PoolConfig
	minerTel *telemetry.Miner
	donorTel *telemetry.Donor
	external ExternalInputs
	logger   *slog.Logger
}

// New returns a Scheduler.
func New(cfg config.DonorConfig, minerCfg config.MinerConfig, poolCfg config.PoolConfig, minerTel *telemetry.Miner, donorTel *telemetry.Donor, external ExternalInputs, logger *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, minerCfg: minerCfg, poolCfg: poolCfg, minerTel: minerTel, donorTel: donorTel, external: external, logger: logger}
}

// Run loops forever, one epoch per iteration, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		epochStart := time.Now()
		if err := s.RunEpoch(ctx); err != nil {
			s.logger.Error("donation epoch failed", "error", err)
		}
		sleepUntil(ctx, epochStart, s.cfg.Epoch)
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// RunEpoch gathers inputs, decides, and enacts one epoch's donation; it
// blocks for up to cfg.Epoch while the miner is repointed.
func (s *Scheduler) RunEpoch(ctx context.Context) error {
	epochStart := time.Now()

	s.external.Reset()

	ui := s.minerTel.UI()
	lhr := ui.LocalHashrate()

	shareInWindow, err := s.external.ShareInWindow(ctx)
	if err != nil {
		s.logger.Warn("share-in-window check failed, assuming false this epoch", "error", err)
		shareInWindow = false
	}

	poolEHR, err := s.external.PoolEHR(ctx)
	if err != nil {
		s.logger.Warn("pool EHR fetch failed, using 0 this epoch", "error", err)
	}

	donorEHR, err := s.external.DonorEHR(ctx)
	if err != nil {
		s.logger.Warn("donor EHR fetch failed, using 0 this epoch", "error", err)
	}

	diff := float64(s.minerTel.Stats().Difficulty)

	in := Inputs{
		LHR:            lhr,
		Difficulty:     diff,
		Mini:           s.poolCfg.Mini,
		PoolEHR:        poolEHR,
		SentToPoolAvg:  s.donorTel.SentToPool.Average(),
		SentToDonorAvg: s.donorTel.SentToDonor.Average(),
		DonorEHR:       donorEHR,
		HeroMode:       s.cfg.HeroMode,
		ShareInWindow:  shareInWindow,
		Thresholds: Thresholds{
			MinDonor: s.cfg.MinDonor,
			MinVIP:   s.cfg.MinVIP,
			MinWhale: s.cfg.MinWhale,
			MinMega:  s.cfg.MinMega,
		},
		Epoch: s.cfg.Epoch,
	}

	donated := Decide(in)

	return s.enact(ctx, epochStart, in, donated)
}

// enact carries out the scheduler's decision (spec §4.6 "Enactment") and
// records the resulting samples in the donor telemetry's rolling windows.
// The no-share branch implements the spec §9-documented fix: the sample pair
// is split across the two distinct windows (LHR to sent_to_pool, 0 to
// sent_to_donor), not pushed twice onto the same one.
func (s *Scheduler) enact(ctx context.Context, epochStart time.Time, in Inputs, donated float64) error {
	if !in.ShareInWindow {
		s.donorTel.SentToPool.Push(in.LHR)
		s.donorTel.SentToDonor.Push(0)
		s.donorTel.SetTarget(telemetry.TargetPool)
		return nil
	}

	if donated == 0 {
		s.donorTel.SetTarget(telemetry.TargetPool)
		s.donorTel.SentToPool.Push(in.LHR)
		s.donorTel.SentToDonor.Push(0)
		return nil
	}

	epoch := in.Epoch.Seconds()

	s.donorTel.SetTarget(telemetry.TargetPool)
	sleepUntil(ctx, epochStart, time.Duration((epoch-donated)*float64(time.Second)))

	target, fast := s.donorURL()
	if err := minerwatch.Reconfigure(ctx, s.minerCfg, target, s.minerCfg.RigID); err != nil {
		s.donorTel.AppendConsoleLine(fmt.Sprintf("failed to reconfigure miner to donor: %v", err))
	} else if fast {
		s.donorTel.SetTarget(telemetry.TargetDonorFast)
	} else {
		s.donorTel.SetTarget(telemetry.TargetDonorNormal)
	}

	sleepUntil(ctx, epochStart, time.Duration(epoch*float64(time.Second)))

	s.donorTel.SentToPool.Push(in.LHR * (epoch - donated) / epoch)
	s.donorTel.SentToDonor.Push(in.LHR * donated / epoch)
	return nil
}

// donorURL returns the donor URL to reconfigure the miner to and whether it
// is the Fast donor (cfg.URLFast is preferred whenever it is set).
func (s *Scheduler) donorURL() (url string, fast bool) {
	if s.cfg.URLFast != "" {
		return s.cfg.URLFast, true
	}
	return s.cfg.URLNormal, false
}

// sleepUntil blocks until epochStart+d or ctx cancellation, whichever comes
// first.
func sleepUntil(ctx context.Context, epochStart time.Time, d time.Duration) {
	remaining := time.Until(epochStart.Add(d))
	if remaining <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(remaining):
	}
}
