package telemetry

import (
	"sync"

	"minesup/internal/buffer"
)

// MinerStats is the raw summary fetched from the miner's HTTP API, as
// retained per spec §4.2: worker id, 3-element nullable load average,
// 3-element nullable hashrate vector, current pool, difficulty, and
// accept/reject counters.
type MinerStats struct {
	WorkerID     string
	LoadAverage  [3]*float64
	HashrateTot  [3]*float64
	Pool         string
	Difficulty   uint64
	Accepted     uint64
	Rejected     uint64
}

// MinerData is the human-formatted view of MinerStats, plus the raw 15m/1m/
// instant hashrate the donation scheduler reads directly (spec §3: "used by
// scheduler", hence kept as float64 rather than formatted strings).
type MinerData struct {
	Console       string
	Uptime        string
	WorkerID      string
	LoadAverage   string
	HashrateVec   string
	Pool          string
	Difficulty    string
	Accepted      uint64
	Rejected      uint64
	Hashrate15m   *float64
	Hashrate1m    *float64
	HashrateInst  *float64
}

// LocalHashrate returns the scheduler's preferred local hashrate: the
// 15-minute average if present, else the 1-minute average, else the
// instantaneous reading, else 0.
func (d MinerData) LocalHashrate() float64 {
	if d.Hashrate15m != nil {
		return *d.Hashrate15m
	}
	if d.Hashrate1m != nil {
		return *d.Hashrate1m
	}
	if d.HashrateInst != nil {
		return *d.HashrateInst
	}
	return 0
}

// Miner holds the miner's telemetry triplet, mirroring Pool.
type Miner struct {
	console *buffer.Buffer

	statsMu sync.Mutex
	stats   MinerStats

	pubMu sync.Mutex
	pub   MinerData

	uiMu sync.Mutex
	ui   MinerData
}

// NewMiner returns a zeroed Miner telemetry triplet.
func NewMiner() *Miner {
	return &Miner{console: buffer.New()}
}

// AppendConsoleLine appends one line of child output to pub_buf. The miner's
// output is never parsed (spec §4.3), only forwarded to console.
func (m *Miner) AppendConsoleLine(line string) {
	m.console.AppendLine(line)
}

func (m *Miner) UpdateStats(s MinerStats) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats = s
}

func (m *Miner) Stats() MinerStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

func (m *Miner) SetPublic(d MinerData) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	d.Console = m.pub.Console
	m.pub = d
}

func (m *Miner) Public() MinerData {
	m.pubMu.Lock()
	d := m.pub
	m.pubMu.Unlock()
	d.Console = m.console.String()
	return d
}

// MergeToUI applies the console-merge rule (spec §4.8), identical to Pool.
func (m *Miner) MergeToUI() {
	m.pubMu.Lock()
	src := m.pub
	m.pubMu.Unlock()

	drained := m.console.Drain()

	m.uiMu.Lock()
	defer m.uiMu.Unlock()
	src.Console = m.ui.Console
	if drained != "" {
		src.Console += drained
	}
	m.ui = src
}

func (m *Miner) UI() MinerData {
	m.uiMu.Lock()
	defer m.uiMu.Unlock()
	return m.ui
}
