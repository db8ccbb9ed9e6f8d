// Package process implements the supervised-child state machine shared
// between a watchdog and the UI: Dead/Alive/Failed/Middle/Waiting, a polled
// signal field, a pending-input queue, and the owning child handle.
package process

import (
	"sync"
	"time"
)

// Name identifies which child a Process record tracks.
type Name string

const (
	Pool  Name = "pool"
	Miner Name = "miner"
)

// State is a node in the supervised-child state machine.
type State string

const (
	Dead    State = "dead"
	Alive   State = "alive"
	Failed  State = "failed"
	Middle  State = "middle"
	Waiting State = "waiting"
)

// Signal is a UI-requested transition, observed by the watchdog at the top of
// its epoch loop. Observation is polling, not interrupt-driven.
type Signal string

const (
	SignalNone    Signal = "none"
	SignalStart   Signal = "start"
	SignalStop    Signal = "stop"
	SignalRestart Signal = "restart"
)

// ChildHandle is the minimal capability a Process needs over its owned child:
// the watchdog remains the sole owner of the underlying OS process and PTY;
// the record only ever asks it to terminate.
type ChildHandle interface {
	// Kill requests termination (PTY hangup, or signal delivery).
	Kill() error
	// PID returns the child's OS process id.
	PID() int
}

// Process is the shared record for one supervised child. A single mutex
// guards every field; lock-hold intervals must stay short (no I/O under the
// lock), per the global ordering discipline in the reconciliation loop.
type Process struct {
	mu sync.Mutex

	name      Name
	state     State
	signal    Signal
	startTime time.Time
	child     ChildHandle
	pending   []string
}

// New returns a Dead Process record for the named child.
func New(name Name) *Process {
	return &Process{name: name, state: Dead, signal: SignalNone}
}

func (p *Process) Name() Name {
	return p.name
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState transitions the record to s. A transition to Dead, Failed, or
// Waiting clears the child handle and signal. SetState does not check for a
// child handle when s is Alive; MarkAlive is the path that stores the handle
// together with the Alive state.
func (p *Process) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	if s == Dead || s == Failed || s == Waiting {
		p.child = nil
		p.signal = SignalNone
	}
}

// StartTime returns the time the child was last transitioned to Alive.
func (p *Process) StartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}

// MarkAlive stores the child handle and records the start time. Called by the
// watchdog immediately after a successful spawn.
func (p *Process) MarkAlive(child ChildHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.child = child
	p.startTime = time.Now()
	p.state = Alive
}

// Child returns the current child handle, or nil if none is owned.
func (p *Process) Child() ChildHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.child
}

// RequestSignal is called by the UI thread to request Start, Stop, or
// Restart. Issuing Stop/Restart on a Dead process is a documented no-op: it
// is only accepted while the record is Alive (Start is only meaningful while
// Dead/Failed, or Waiting after a restart kill).
func (p *Process) RequestSignal(s Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch s {
	case SignalStart:
		if p.state == Dead || p.state == Failed || p.state == Waiting {
			p.signal = s
		}
	case SignalStop, SignalRestart:
		if p.state == Alive {
			p.signal = s
		}
	}
}

// TakeSignal atomically reads and clears the pending signal. Called once per
// watchdog epoch.
func (p *Process) TakeSignal() Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.signal
	p.signal = SignalNone
	return s
}

// ClearSignal clears any pending signal without reading it first.
func (p *Process) ClearSignal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signal = SignalNone
}

// AppendInput enqueues a line to be written to the child's stdin on the next
// epoch.
func (p *Process) AppendInput(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, line)
}

// StateFromExit maps a child's wait error to the terminal state it implies:
// nil (clean exit) is Dead, anything else (nonzero exit or wait failure) is
// Failed.
func StateFromExit(err error) State {
	if err == nil {
		return Dead
	}
	return Failed
}

// DrainInput atomically returns and clears the pending-input queue.
func (p *Process) DrainInput() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	p.pending = nil
	return out
}
