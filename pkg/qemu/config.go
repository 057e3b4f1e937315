// Package qemu launches and supervises a qemu-system process, exposing
// its serial console and control sockets as stream connections.
package qemu

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultBinary is used when the compose file names no emulator.
const DefaultBinary = "qemu-system-x86_64"

// ArgBlock is one expanded qemu_args entry: a flag and its optional
// value, in compose-file order.
type ArgBlock struct {
	Flag  string
	Value string
}

// Config describes one machine to launch.
type Config struct {
	// Binary is the emulator executable; empty means DefaultBinary.
	Binary string

	// Name is the VM name, passed as -name and turned into the guest
	// hostname credential.
	Name string

	// Network selects the network mode: "" or "user" adds a user-mode
	// netdev, "none" adds nothing.
	Network string

	// Args are the compose file's qemu_args after placeholder
	// expansion. Flags matching a built-in default override it in
	// place; everything else is appended in order.
	Args []ArgBlock

	// GuestCID, when nonzero, attaches a vhost-vsock device with that
	// context ID.
	GuestCID uint32

	// SSHAuthorizedKey is injected for root through an smbios systemd
	// credential.
	SSHAuthorizedKey []byte

	// RuntimeDir is the instance directory; the console and control
	// sockets are created there.
	RuntimeDir string
}

func (c *Config) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

func (c *Config) consolePath() string {
	return filepath.Join(c.RuntimeDir, "console.sock")
}

func (c *Config) qmpPath() string {
	return filepath.Join(c.RuntimeDir, "qmp.sock")
}

// defaultArgKeys fixes the emission order of the overridable defaults.
var defaultArgKeys = []string{"cpu", "machine", "accel", "m", "smp"}

// commandLine builds the full argument list.
func (c *Config) commandLine() []string {
	defaults := map[string]string{
		"cpu":     "max",
		"machine": "type=q35,hpet=off",
		"accel":   "kvm",
		"m":       "1G",
		"smp":     fmt.Sprintf("%d", runtime.NumCPU()),
	}
	for _, block := range c.Args {
		if _, ok := defaults[block.Flag]; ok {
			defaults[block.Flag] = block.Value
		}
	}

	var args []string
	for _, key := range defaultArgKeys {
		args = append(args, "-"+key, defaults[key])
	}
	for _, block := range c.Args {
		if _, ok := defaults[block.Flag]; ok {
			continue
		}
		args = append(args, "-"+block.Flag)
		if block.Value != "" {
			args = append(args, block.Value)
		}
	}

	hostname := ""
	if c.Name != "" {
		args = append(args, "-name", c.Name)
		hostname = ValidHostname(c.Name)
		args = append(args, "-smbios",
			"type=11,value=io.systemd.credential:system.hostname="+hostname)
	}

	if c.Network == "" || strings.EqualFold(c.Network, "user") {
		netdev := "user,id=user.qemu-compose"
		if hostname != "" {
			netdev += ",hostname=" + hostname
		}
		args = append(args,
			"-netdev", netdev,
			"-device", "virtio-net,netdev=user.qemu-compose")
	}

	if c.GuestCID != 0 {
		args = append(args, "-device",
			fmt.Sprintf("vhost-vsock-pci,id=vhost-vsock-pci0,guest-cid=%d", c.GuestCID))
	}

	if len(c.SSHAuthorizedKey) > 0 {
		args = append(args, "-smbios",
			"type=11,value=io.systemd.credential.binary:ssh.authorized_keys.root="+
				base64.StdEncoding.EncodeToString(c.SSHAuthorizedKey))
	}

	// Serial console and control socket; both are unix listeners the
	// host side dials after launch.
	args = append(args,
		"-chardev", fmt.Sprintf("socket,id=console,path=%s,server=on,wait=off", c.consolePath()),
		"-serial", "chardev:console",
		"-qmp", fmt.Sprintf("unix:%s,server=on,wait=off", c.qmpPath()),
		"-display", "none",
	)
	return args
}

// ValidHostname translates an arbitrary VM name into a valid hostname
// label: lowercase, [a-z0-9-] only, runs collapsed, at most 63 chars,
// falling back to "vm" when nothing survives.
func ValidHostname(name string) string {
	var b strings.Builder
	lastDash := true // swallow leading dashes
	for _, r := range strings.ToLower(name) {
		valid := r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !valid {
			r = '-'
		}
		if r == '-' {
			if lastDash {
				continue
			}
			lastDash = true
		} else {
			lastDash = false
		}
		b.WriteRune(r)
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > 63 {
		s = strings.TrimRight(s[:63], "-")
	}
	if s == "" {
		return "vm"
	}
	return s
}
