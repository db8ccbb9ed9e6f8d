// Package sysinfo wraps gopsutil to provide the per-process and host
// telemetry the reconciliation loop refreshes once per second (spec §4.7):
// per-process CPU%/RSS, total CPU%, memory used/total, and CPU model+freq.
package sysinfo

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// ProcessUsage is one child's resource footprint.
type ProcessUsage struct {
	CPUPercent float64
	RSSBytes   uint64
}

// HostUsage is system-wide resource and identity telemetry.
type HostUsage struct {
	CPUPercent   float64
	MemUsedBytes uint64
	MemTotal     uint64
	CPUModel     string
	CPUMHz       float64
}

// Snapshot is everything the reconciliation loop refreshes in one pass.
type Snapshot struct {
	Pool  ProcessUsage
	Miner ProcessUsage
	Host  HostUsage
}

// Provider reads live system telemetry. Collect reads every field it can: a
// field whose read fails (a TransientIO failure, spec §7) is left zeroed in
// the returned Snapshot, and the first such error is returned with it. The
// reconciliation loop logs that error and keeps its previous snapshot.
type Provider struct{}

// NewProvider returns a Provider backed by gopsutil.
func NewProvider() *Provider {
	return &Provider{}
}

// Collect gathers a fresh Snapshot. poolPID/minerPID of 0 mean "not running"
// and are skipped (the usage field is left zeroed).
func (p *Provider) Collect(ctx context.Context, poolPID, minerPID int) (Snapshot, error) {
	var snap Snapshot
	var firstErr error

	if poolPID != 0 {
		if u, err := p.processUsage(ctx, poolPID); err == nil {
			snap.Pool = u
		} else if firstErr == nil {
			firstErr = fmt.Errorf("pool process usage: %w", err)
		}
	}
	if minerPID != 0 {
		if u, err := p.processUsage(ctx, minerPID); err == nil {
			snap.Miner = u
		} else if firstErr == nil {
			firstErr = fmt.Errorf("miner process usage: %w", err)
		}
	}

	host, err := p.hostUsage(ctx)
	if err == nil {
		snap.Host = host
	} else if firstErr == nil {
		firstErr = fmt.Errorf("host usage: %w", err)
	}

	return snap, firstErr
}

func (p *Provider) processUsage(ctx context.Context, pid int) (ProcessUsage, error) {
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessUsage{}, err
	}

	cpuPct, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, err
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, err
	}

	return ProcessUsage{CPUPercent: cpuPct, RSSBytes: memInfo.RSS}, nil
}

func (p *Provider) hostUsage(ctx context.Context) (HostUsage, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostUsage{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostUsage{}, err
	}

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return HostUsage{}, err
	}
	var model string
	var mhz float64
	if len(infos) > 0 {
		model = infos[0].ModelName
		mhz = infos[0].Mhz
	}

	return HostUsage{
		CPUPercent:   cpuPct,
		MemUsedBytes: vm.Used,
		MemTotal:     vm.Total,
		CPUModel:     model,
		CPUMHz:       mhz,
	}, nil
}
