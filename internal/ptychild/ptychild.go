// Package ptychild opens a pseudo-terminal and spawns a binary inside it,
// giving the caller a line-oriented reader, a writer for stdin, and a
// wait-able handle — the PTY Child component of spec §4.3.
package ptychild

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Rows and Cols fix the pseudo-terminal geometry the pool and miner binaries
// are launched with.
const (
	Rows = 100
	Cols = 1000
)

// Child owns one spawned process's pseudo-terminal. The watchdog that spawns
// it is the sole owner; nothing else may write to ptmx or call Wait.
type Child struct {
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	done     chan struct{}
	waitErr  error
}

// Spawn opens a pseudo-terminal sized Rows×Cols, launches path with args in
// cwd as the slave process, and starts a background goroutine reading
// combined stdout+stderr line by line, invoking onLine for each line (the
// caller is responsible for fanning that out to parse_buf/pub_buf). It
// returns once the child has been started; the child's exit is observed
// later via Wait.
func Spawn(ctx context.Context, path string, args []string, cwd string, onLine func(line string)) (*Child, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = cwd
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: Rows, Cols: Cols})
	if err != nil {
		return nil, fmt.Errorf("pty open failed: %w", err)
	}

	c := &Child{cmd: cmd, ptmx: ptmx, done: make(chan struct{})}

	go c.readLoop(onLine)
	go c.waitLoop()

	return c, nil
}

func (c *Child) readLoop(onLine func(string)) {
	scanner := bufio.NewScanner(c.ptmx)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}

func (c *Child) waitLoop() {
	err := c.cmd.Wait()
	c.waitErr = err
	c.ptmx.Close()
	close(c.done)
}

// TryWait performs a non-blocking check for exit, returning (exited, err).
func (c *Child) TryWait() (exited bool, err error) {
	select {
	case <-c.done:
		return true, c.waitErr
	default:
		return false, nil
	}
}

// Wait blocks until the child has exited and returns its wait error (nil on
// clean exit, *exec.ExitError on a nonzero exit code).
func (c *Child) Wait() error {
	<-c.done
	return c.waitErr
}

// WriteLine writes s plus a trailing newline to the PTY master, i.e. to the
// child's stdin.
func (c *Child) WriteLine(s string) error {
	_, err := c.ptmx.WriteString(s + "\n")
	return err
}

// Kill closes the PTY master, sending the slave process a hangup. This is
// sufficient to terminate the pool; the miner watchdog uses a different
// (possibly privileged) kill path on some platforms.
func (c *Child) Kill() error {
	return c.ptmx.Close()
}

// PID returns the child's OS process id.
func (c *Child) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Signal delivers sig directly to the child process.
func (c *Child) Signal(sig os.Signal) error {
	if c.cmd.Process == nil {
		return fmt.Errorf("child has no process")
	}
	return c.cmd.Process.Signal(sig)
}
