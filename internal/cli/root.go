// Package cli provides the command-line interface for qemu-compose.
package cli

import (
	"fmt"

	"github.com/javanstorm/qemu-compose/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qemu-compose",
	Short: "qemu-compose - declarative QEMU virtual machines",
	Long: `qemu-compose boots QEMU virtual machines from a declarative compose
file: a qemu-compose.yml describes the machine, its boot automation
script, and the scripts to run around it.

The boot script drives the guest's serial console, waiting for prompts
and typing answers, and can hand the console over to you at any point.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}
		return config.LoadSettings()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(sshCmd)
}
