package console

import (
	"io"
	"sync"
	"time"
)

const (
	// escapeChar is Ctrl+] (0x1D).
	escapeChar = 0x1D

	// escapeCount is the number of consecutive escape chars needed.
	escapeCount = 2

	// escapeWindow is the maximum time between escape key presses.
	escapeWindow = 500 * time.Millisecond
)

// EscapeReader wraps the user's stdin and watches for the detach sequence
// (Ctrl+] pressed twice quickly). Escape chars are withheld from the
// stream while a sequence may still complete; a lone escape char is
// forwarded once the window expires or another key arrives. After the
// sequence fires, Read returns io.EOF and the Escaped channel is closed.
type EscapeReader struct {
	r    io.Reader
	once sync.Once
	esc  chan struct{}

	mu      sync.Mutex
	pending int
	last    time.Time
}

// NewEscapeReader wraps r with detach-sequence detection.
func NewEscapeReader(r io.Reader) *EscapeReader {
	return &EscapeReader{r: r, esc: make(chan struct{})}
}

// Escaped is closed when the detach sequence is seen.
func (e *EscapeReader) Escaped() <-chan struct{} { return e.esc }

func (e *EscapeReader) fire() {
	e.once.Do(func() { close(e.esc) })
}

func (e *EscapeReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if n == 0 {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Flushed escape chars from a previous read can push the output past
	// the bytes just scanned, so scan a copy while rewriting p in place.
	in := append([]byte(nil), p[:n]...)
	out := 0
	now := time.Now()
	for _, b := range in {
		if b == escapeChar {
			if e.pending > 0 && now.Sub(e.last) > escapeWindow {
				// Stale half-sequence: forward it late.
				out += flushEscapes(p, out, e.pending)
				e.pending = 0
			}
			e.pending++
			e.last = now
			if e.pending >= escapeCount {
				e.fire()
				if out > 0 {
					return out, nil
				}
				return 0, io.EOF
			}
			continue
		}
		if e.pending > 0 {
			out += flushEscapes(p, out, e.pending)
			e.pending = 0
		}
		p[out] = b
		out++
	}

	if out == 0 {
		// Everything read is withheld escape chars; let the caller retry.
		return 0, nil
	}
	return out, err
}

// flushEscapes writes n withheld escape chars into p at off. The rewrite
// never outruns the bytes already consumed, so p has room.
func flushEscapes(p []byte, off, n int) int {
	wrote := 0
	for i := 0; i < n && off+wrote < len(p); i++ {
		p[off+wrote] = escapeChar
		wrote++
	}
	return wrote
}
