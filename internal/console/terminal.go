package console

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Terminal wraps the host terminal the scripted session runs in.
type Terminal struct {
	stdin  *os.File
	stdout *os.File
	fd     int
}

// CurrentTerminal returns the process's controlling terminal.
func CurrentTerminal() *Terminal {
	return &Terminal{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		fd:     int(os.Stdin.Fd()),
	}
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// SetRaw puts the terminal into raw mode and returns a restore function.
// The whole scripted session runs raw so the user's keystrokes reach the
// guest unmangled while automation is in progress.
func (t *Terminal) SetRaw() (func(), error) {
	old, err := term.MakeRaw(t.fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(t.fd, old) }, nil
}

// Size returns the current terminal dimensions.
func (t *Terminal) Size() (cols, rows int, err error) {
	return term.GetSize(t.fd)
}

// Stdout returns the terminal's output side, used as the console echo.
func (t *Terminal) Stdout() io.Writer { return t.stdout }

// Feed pumps the user's keystrokes to the console for the lifetime of the
// run, wrapped in detach detection. It mirrors the original term-feed
// loop: input flows during scripted automation as well as during interact.
// The pump stops at stdin EOF, on detach, or when writing to the console
// fails (VM gone).
func (t *Terminal) Feed(d *Driver) *EscapeReader {
	esc := NewEscapeReader(t.stdin)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := esc.Read(buf)
			if n > 0 {
				if _, werr := d.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return esc
}
