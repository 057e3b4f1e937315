// Package timing measures the phases of a VM run for performance
// inspection, enabled through the QEMU_COMPOSE_TIMING setting.
package timing

import (
	"fmt"
	"io"
	"time"
)

// Timer tracks durations of named phases. A nil Timer is valid and
// records nothing, so callers need no guards when timing is off.
type Timer struct {
	start  time.Time
	last   time.Time
	phases []Phase
}

// Phase is one recorded span.
type Phase struct {
	Name     string
	Duration time.Duration
}

// New creates a Timer starting from now.
func New() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// Mark records a phase ending now, measured since the previous mark.
func (t *Timer) Mark(name string) {
	if t == nil {
		return
	}
	now := time.Now()
	t.phases = append(t.phases, Phase{Name: name, Duration: now.Sub(t.last)})
	t.last = now
}

// Total returns the elapsed time since the timer was created.
func (t *Timer) Total() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.start)
}

// Phases returns the recorded phases.
func (t *Timer) Phases() []Phase {
	if t == nil {
		return nil
	}
	return t.phases
}

// Report writes the phase table to w.
func (t *Timer) Report(w io.Writer) {
	if t == nil {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Timing ===")
	for _, p := range t.phases {
		fmt.Fprintf(w, "  %-20s %s\n", p.Name+":", formatDuration(p.Duration))
	}
	fmt.Fprintf(w, "  %-20s %s\n", "TOTAL:", formatDuration(t.Total()))
	fmt.Fprintln(w, "==============")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
