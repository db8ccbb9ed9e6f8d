package telemetry

import (
	"sync"

	"minesup/internal/buffer"
	"minesup/internal/rollingwindow"
)

// Target is which node the miner is currently configured to point at.
type Target string

const (
	TargetPool        Target = "pool"
	TargetDonorNormal Target = "donor_normal"
	TargetDonorFast   Target = "donor_fast"
)

// Donor holds the donor telemetry: a console, the current target, and the
// two rolling last-hour sample windows. It is written directly by the
// donation scheduler (it has no separate watchdog, so there is no
// internal/public/ui triplet to reconcile — the UI reads it straight).
type Donor struct {
	console *buffer.Buffer

	mu     sync.Mutex
	target Target

	SentToPool  *rollingwindow.Window
	SentToDonor *rollingwindow.Window
}

// NewDonor returns a Donor telemetry record targeting Pool by default.
func NewDonor() *Donor {
	return &Donor{
		console:     buffer.New(),
		target:      TargetPool,
		SentToPool:  rollingwindow.New(),
		SentToDonor: rollingwindow.New(),
	}
}

func (d *Donor) AppendConsoleLine(line string) {
	d.console.AppendLine(line)
}

func (d *Donor) Console() string {
	return d.console.String()
}

func (d *Donor) SetTarget(t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = t
}

func (d *Donor) Target() Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}
