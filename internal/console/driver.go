// Package console drives the VM's serial console: it buffers the incoming
// byte stream, matches boot-script patterns against it with per-step
// deadlines, writes payloads, and hands the channel to the user for
// interactive use.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const (
	// readChunk is the size of a single transport read.
	readChunk = 1536

	// defaultRetain caps how much unmatched history the receive buffer
	// keeps. ReadUntil raises the floor to the pattern length, so a
	// match can never straddle a discarded prefix.
	defaultRetain = 64 << 10

	// tailSnapshot bounds the diagnostic tail attached to errors.
	tailSnapshot = 512
)

// ErrDetached is returned by Interact when the user leaves the session
// with the escape sequence while the VM is still running.
var ErrDetached = errors.New("console: detached by escape sequence")

// TimeoutError reports a pattern that was not observed within its budget.
// Tail holds the unmatched end of the receive buffer for diagnostics.
type TimeoutError struct {
	Pattern string
	Budget  time.Duration
	Tail    []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("console: pattern %s not seen within %s, tail %s",
		e.Pattern, e.Budget, strconv.Quote(string(e.Tail)))
}

// IOError reports an unexpected console transport failure.
type IOError struct {
	Err  error
	Tail []byte
}

func (e *IOError) Error() string { return "console: " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Driver owns one duplex byte channel to the VM console. A background
// reader appends incoming bytes to the receive buffer and mirrors them to
// the echo writer; the control thread consumes the buffer through
// ReadUntil. Single producer, single consumer.
type Driver struct {
	conn io.ReadWriter
	echo io.Writer
	log  *slog.Logger

	mu      sync.Mutex
	buf     []byte
	need    int // pattern length an active ReadUntil requires retained
	readErr error

	wake chan struct{} // coalesced new-data signal
	done chan struct{} // closed when the reader loop exits
}

// NewDriver starts a driver over the given channel. Incoming bytes are
// mirrored to echo (the user's terminal and the instance log) as they
// arrive, matching the original console transcript behavior.
func NewDriver(conn io.ReadWriter, echo io.Writer, log *slog.Logger) *Driver {
	d := &Driver{
		conn: conn,
		echo: echo,
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *Driver) readLoop() {
	defer close(d.done)
	chunk := make([]byte, readChunk)
	for {
		n, err := d.conn.Read(chunk)
		if n > 0 {
			if d.echo != nil {
				d.echo.Write(chunk[:n])
			}
			d.mu.Lock()
			d.buf = append(d.buf, chunk[:n]...)
			d.trimLocked()
			d.mu.Unlock()
			d.signal()
		}
		if err != nil {
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
			d.signal()
			return
		}
	}
}

// trimLocked discards the oldest already-echoed bytes beyond the retention
// window. Bytes a pending match may still need are always kept.
func (d *Driver) trimLocked() {
	keep := defaultRetain
	if d.need > keep {
		keep = d.need
	}
	if over := len(d.buf) - keep; over > 0 {
		d.buf = append([]byte(nil), d.buf[over:]...)
	}
}

func (d *Driver) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Tail returns a bounded snapshot of the unconsumed buffer for diagnostics.
func (d *Driver) Tail() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := 0
	if len(d.buf) > tailSnapshot {
		start = len(d.buf) - tailSnapshot
	}
	return append([]byte(nil), d.buf[start:]...)
}

// Done is closed when the transport reaches EOF or fails, which for a VM
// console means the process went away.
func (d *Driver) Done() <-chan struct{} { return d.done }

// ReadUntil blocks until the receive buffer contains the pattern or the
// budget elapses. Matching is performed on the accumulated stream, so the
// result is independent of how the transport chunks reads. On success
// everything up to and including the first match is consumed and returned.
// A zero or negative budget checks the buffer once and then fails.
func (d *Driver) ReadUntil(ctx context.Context, p Pattern, budget time.Duration) ([]byte, error) {
	want := p.Bytes()
	if len(want) == 0 {
		return nil, fmt.Errorf("console: empty pattern")
	}

	d.mu.Lock()
	d.need = len(want)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.need = 0
		d.mu.Unlock()
	}()

	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		if i := bytes.Index(d.buf, want); i >= 0 {
			end := i + len(want)
			consumed := append([]byte(nil), d.buf[:end]...)
			d.buf = append([]byte(nil), d.buf[end:]...)
			d.mu.Unlock()
			if d.log != nil {
				d.log.Debug("pattern matched", "pattern", p.String(), "consumed", len(consumed))
			}
			return consumed, nil
		}
		readErr := d.readErr
		d.mu.Unlock()

		if readErr != nil {
			return nil, &IOError{Err: readErr, Tail: d.Tail()}
		}
		if budget <= 0 {
			return nil, &TimeoutError{Pattern: p.String(), Budget: budget, Tail: d.Tail()}
		}

		select {
		case <-d.wake:
		case <-deadline.C:
			return nil, &TimeoutError{Pattern: p.String(), Budget: budget, Tail: d.Tail()}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Write transmits payload bytes without waiting for any acknowledgment.
func (d *Driver) Write(p []byte) (int, error) {
	n, err := d.conn.Write(p)
	if err != nil {
		return n, &IOError{Err: err}
	}
	return n, nil
}

// Wait sleeps for the given duration. The background reader keeps
// appending during the wait, so no console output is lost.
func (d *Driver) Wait(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interact suspends pattern matching and leaves the channel to the user.
// Incoming bytes keep flowing to the echo writer and the input pump keeps
// feeding keystrokes, so nothing needs re-wiring; Interact simply blocks
// until the VM side closes, the user escapes, or the context ends. It is
// terminal for the run: no later boot step executes after it.
func (d *Driver) Interact(ctx context.Context, escaped <-chan struct{}) error {
	select {
	case <-d.done:
		return nil
	case <-escaped:
		return ErrDetached
	case <-ctx.Done():
		return ctx.Err()
	}
}
