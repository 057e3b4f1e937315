package vm

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/javanstorm/qemu-compose/internal/config"
)

// runScript executes shell lines from before_script or after_script in
// order, stopping at the first failure. Placeholders expand against the
// runtime bindings before the shell sees the line.
func (o *Orchestrator) runScript(ctx context.Context, label string, lines []string, env map[string]string) error {
	for i, line := range lines {
		command, err := config.Expand(line, env)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", label, i, err)
		}
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		o.log.Info(label, "command", command)

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Stdout = o.opts.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s line %d (%s): %w", label, i, command, err)
		}
	}
	return nil
}
