package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemu-compose/internal/config"
)

var sshCmd = &cobra.Command{
	Use:   "ssh VMID|NAME [COMMAND [ARG...]]",
	Short: "Open an SSH session into an instance over vsock",
	Long: `Connects to an instance as root using the per-instance key,
addressing the guest through its vsock CID. The identifier may be a
name, a full VMID, or a unique VMID prefix. Extra arguments are passed
through to ssh as the remote command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(config.Global)
		if err != nil {
			return err
		}

		inst, err := st.FindInstance(args[0])
		if err != nil {
			return err
		}
		if inst.CID == 0 {
			return fmt.Errorf("instance %s has no vsock CID recorded", inst.VMID)
		}
		keyPath := st.SSHKeyPath(inst.VMID)
		if _, err := os.Stat(keyPath); err != nil {
			return fmt.Errorf("instance %s has no ssh key: %w", inst.VMID, err)
		}

		sshArgs := []string{
			"ssh",
			"-S", "none",
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=/dev/null",
			"-i", keyPath,
			fmt.Sprintf("root@vsock%%%d", inst.CID),
		}
		sshArgs = append(sshArgs, args[1:]...)

		path, err := exec.LookPath("ssh")
		if err != nil {
			return fmt.Errorf("ssh not found in PATH: %w", err)
		}
		// Replace the process so the session owns the terminal.
		return syscall.Exec(path, sshArgs, os.Environ())
	},
}
