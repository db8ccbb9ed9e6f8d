// Package rollingwindow implements the fixed-capacity sample queue backing
// the donor telemetry's last-hour hashrate windows: six 10-minute-epoch
// samples, the oldest evicted when a seventh is pushed.
package rollingwindow

import "sync"

// Capacity samples covering a rolling hour when pushed once per 10-minute epoch.
const Capacity = 6

// Window is a fixed-capacity FIFO of float64 samples.
type Window struct {
	mu      sync.Mutex
	samples []float64
}

// New returns an empty Window.
func New() *Window {
	return &Window{samples: make([]float64, 0, Capacity)}
}

// Push appends a sample, evicting the oldest if the window is already full.
func (w *Window) Push(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) >= Capacity {
		w.samples = append(w.samples[1:], v)
		return
	}
	w.samples = append(w.samples, v)
}

// Average returns the mean of all currently-held samples, or 0 if empty.
func (w *Window) Average() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.samples {
		sum += v
	}
	return sum / float64(len(w.samples))
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Samples returns a copy of the currently-held samples, oldest first.
func (w *Window) Samples() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}
