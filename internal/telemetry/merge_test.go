package telemetry

import (
	"strings"
	"testing"
)

func TestPoolMergePreservesUIConsolePrefix(t *testing.T) {
	p := NewPool()
	p.AppendConsoleLine("line one")
	p.SetPublic(PoolData{Uptime: "1 minute"})
	p.MergeToUI()

	before := p.UI().Console

	p.AppendConsoleLine("line two")
	p.SetPublic(PoolData{Uptime: "2 minutes"})
	p.MergeToUI()

	after := p.UI().Console
	if !strings.HasPrefix(after, before) {
		t.Errorf("merge did not preserve ui.output prefix: before=%q after=%q", before, after)
	}
	if !strings.Contains(after, "line two") {
		t.Errorf("merge did not append new console content: %q", after)
	}
}

func TestPoolMergeUpdatesOtherFields(t *testing.T) {
	p := NewPool()
	p.SetPublic(PoolData{Uptime: "5 minutes", Payouts: 3})
	p.MergeToUI()

	ui := p.UI()
	if ui.Uptime != "5 minutes" || ui.Payouts != 3 {
		t.Errorf("UI() = %+v, want Uptime=5 minutes Payouts=3", ui)
	}
}

func TestMinerMergePreservesUIConsolePrefix(t *testing.T) {
	m := NewMiner()
	m.AppendConsoleLine("hashrate report")
	m.SetPublic(MinerData{WorkerID: "rig1"})
	m.MergeToUI()

	before := m.UI().Console

	m.AppendConsoleLine("another line")
	m.MergeToUI()

	after := m.UI().Console
	if !strings.HasPrefix(after, before) {
		t.Errorf("merge did not preserve ui.output prefix: before=%q after=%q", before, after)
	}
}

func TestMinerLocalHashratePreference(t *testing.T) {
	m15, m1 := 500.0, 400.0
	d := MinerData{Hashrate15m: &m15, Hashrate1m: &m1}
	if got := d.LocalHashrate(); got != 500.0 {
		t.Errorf("LocalHashrate() = %v, want 500 (15m preferred)", got)
	}

	d2 := MinerData{Hashrate1m: &m1}
	if got := d2.LocalHashrate(); got != 400.0 {
		t.Errorf("LocalHashrate() = %v, want 400 (1m fallback)", got)
	}

	d3 := MinerData{}
	if got := d3.LocalHashrate(); got != 0 {
		t.Errorf("LocalHashrate() = %v, want 0 (no data)", got)
	}
}
