package qemu

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"
)

// dialRetryInterval paces attempts to reach the machine's sockets
// right after launch.
const dialRetryInterval = 50 * time.Millisecond

// Machine is a running qemu process with its console and control
// sockets connected.
type Machine struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	console net.Conn
	qmp     net.Conn
	waitCh  chan error
}

// Launch starts the emulator and dials its console and control
// sockets. On any failure the process is killed before returning.
func Launch(ctx context.Context, cfg Config) (*Machine, error) {
	cmd := exec.CommandContext(ctx, cfg.binary(), cfg.commandLine()...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.binary(), err)
	}

	m := &Machine{cmd: cmd, stderr: stderr, waitCh: make(chan error, 1)}
	go func() {
		m.waitCh <- cmd.Wait()
	}()

	var err error
	if m.console, err = m.dial(ctx, cfg.consolePath()); err != nil {
		m.Kill()
		return nil, fmt.Errorf("connect console: %w", err)
	}
	if m.qmp, err = m.dial(ctx, cfg.qmpPath()); err != nil {
		m.console.Close()
		m.Kill()
		return nil, fmt.Errorf("connect control socket: %w", err)
	}
	return m, nil
}

// dial connects to a unix socket the emulator creates shortly after
// start, giving up when the process dies or the context ends.
func (m *Machine) dial(ctx context.Context, path string) (net.Conn, error) {
	ticker := time.NewTicker(dialRetryInterval)
	defer ticker.Stop()
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		select {
		case waitErr := <-m.waitCh:
			// Put it back for Wait callers.
			m.waitCh <- waitErr
			return nil, fmt.Errorf("qemu exited during startup: %v: %s",
				waitErr, strings.TrimSpace(m.stderr.String()))
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Console returns the guest serial console stream.
func (m *Machine) Console() net.Conn { return m.console }

// QMP returns the control protocol stream.
func (m *Machine) QMP() net.Conn { return m.qmp }

// Pid returns the emulator's process ID.
func (m *Machine) Pid() int {
	if m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// Wait delivers the process exit status once.
func (m *Machine) Wait() <-chan error { return m.waitCh }

// Kill force-stops the emulator. It is the teardown fallback when a
// graceful quit did not end the process.
func (m *Machine) Kill() error {
	if m.cmd.Process == nil {
		return nil
	}
	return m.cmd.Process.Kill()
}
