package telemetry

import (
	"sync"

	"minesup/internal/buffer"
)

// PoolStats is the raw on-disk stats snapshot the pool watchdog polls. The
// running payout totals are kept by the watchdog itself and published in
// PoolData.
type PoolStats struct {
	Hashrate15m   uint64
	Hashrate1h    uint64
	Hashrate24h   uint64
	SharesFound   uint64
	AverageEffort float64
	CurrentEffort float64
	Connections   uint32
}

// PoolData is the human-formatted view of PoolStats plus the rolling
// console, written by the watchdog (as "public") and copied into "ui" by the
// reconciliation loop.
type PoolData struct {
	Console       string
	Uptime        string
	Payouts       uint64
	XMR           float64
	PayoutsHour   float64
	PayoutsDay    float64
	PayoutsMonth  float64
	XMRHour       float64
	XMRDay        float64
	XMRMonth      float64
	Hashrate15m   string
	Hashrate1h    string
	Hashrate24h   string
	SharesFound   uint64
	AverageEffort string
	CurrentEffort string
	Connections   uint32
}

// Pool holds the pool's telemetry triplet: Stats (internal, raw), Public
// (derived, watchdog-written), and UI (reconciliation-written). console is
// the watchdog's pub_buf: the PTY reader appends to it continuously, and the
// reconciliation merge drains it into the UI's accumulated console.
type Pool struct {
	console *buffer.Buffer

	statsMu sync.Mutex
	stats   PoolStats

	pubMu sync.Mutex
	pub   PoolData

	uiMu sync.Mutex
	ui   PoolData
}

// NewPool returns a zeroed Pool telemetry triplet.
func NewPool() *Pool {
	return &Pool{console: buffer.New()}
}

// AppendConsoleLine appends one line of child output to pub_buf.
func (p *Pool) AppendConsoleLine(line string) {
	p.console.AppendLine(line)
}

// UpdateStats replaces the internal raw stats, e.g. after a successful
// stats-file poll.
func (p *Pool) UpdateStats(s PoolStats) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats = s
}

// Stats returns a copy of the current internal raw stats.
func (p *Pool) Stats() PoolStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// SetPublic replaces the watchdog-derived public telemetry fields (Console is
// ignored here; it is tracked separately in pub_buf and merged explicitly).
func (p *Pool) SetPublic(d PoolData) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	d.Console = p.pub.Console
	p.pub = d
}

// Public returns a copy of the watchdog-derived public telemetry, with
// Console reflecting the current (undrained) pub_buf contents.
func (p *Pool) Public() PoolData {
	p.pubMu.Lock()
	d := p.pub
	p.pubMu.Unlock()
	d.Console = p.console.String()
	return d
}

// MergeToUI copies Public into UI under the console-merge rule (spec §4.8):
// UI's accumulated console is never replaced wholesale; only newly-arrived
// console text (drained from pub_buf) is appended to it.
func (p *Pool) MergeToUI() {
	p.pubMu.Lock()
	src := p.pub
	p.pubMu.Unlock()

	drained := p.console.Drain()

	p.uiMu.Lock()
	defer p.uiMu.Unlock()
	src.Console = p.ui.Console
	if drained != "" {
		src.Console += drained
	}
	p.ui = src
}

// UI returns a copy of the UI-visible telemetry.
func (p *Pool) UI() PoolData {
	p.uiMu.Lock()
	defer p.uiMu.Unlock()
	return p.ui
}
