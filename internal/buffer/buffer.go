// Package buffer implements the bounded, self-resetting console buffer shared
// by every watchdog's public telemetry.
package buffer

import (
	"strings"
	"sync"
)

// MaxBytes is the cap on a console buffer's length. Once the buffer would
// grow past MaxBytes-resetThreshold on the next append, it is cleared and
// replaced with a rotation banner, and the append is written after it.
const MaxBytes = 500_000

// resetThreshold is how far below MaxBytes a pending append must stay before
// triggering a reset. The buffer stays within MaxBytes unless a single chunk
// is itself longer than MaxBytes minus the banner; such a chunk is written
// whole after the banner.
const resetThreshold = 1_000

const rule = "------------------------------------------------------------"

// Buffer is a mutex-guarded, append-only text log with a hard size cap. It
// never truncates mid-line: the size check happens before each append, not
// mid-append.
type Buffer struct {
	mu   sync.Mutex
	text strings.Builder
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// AppendLine appends one line (a trailing newline is added) to the buffer,
// resetting it first if the append would put it over MaxBytes.
func (b *Buffer) AppendLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfOversizedLocked(len(line) + 1)
	b.text.WriteString(line)
	b.text.WriteByte('\n')
}

// Append appends an arbitrary (possibly multi-line) chunk of already-merged
// text, resetting the buffer first if needed.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfOversizedLocked(len(text))
	b.text.WriteString(text)
}

// resetIfOversizedLocked must be called with mu held.
func (b *Buffer) resetIfOversizedLocked(incoming int) {
	if b.text.Len()+incoming <= MaxBytes-resetThreshold {
		return
	}
	b.text.Reset()
	b.text.WriteString(rule)
	b.text.WriteByte('\n')
	b.text.WriteString("log rotated: buffer exceeded size limit\n")
	b.text.WriteString(rule)
	b.text.WriteString("\n\n\n")
}

// String returns a snapshot of the buffer's contents.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

// Drain returns the buffer's contents and clears it atomically. Used by the
// telemetry parser, which consumes parse_buf and clears it after each pass.
func (b *Buffer) Drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.text.String()
	b.text.Reset()
	return s
}

// Len returns the current byte length of the buffer.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.Len()
}
