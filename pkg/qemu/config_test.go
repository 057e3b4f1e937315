package qemu

import (
	"encoding/base64"
	"slices"
	"strings"
	"testing"
)

// argValue returns the value following the first occurrence of flag.
func argValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestCommandLineDefaults(t *testing.T) {
	cfg := Config{RuntimeDir: "/run/x"}
	args := cfg.commandLine()

	for _, flag := range []string{"-cpu", "-machine", "-accel", "-m", "-smp"} {
		if _, ok := argValue(args, flag); !ok {
			t.Errorf("missing default %s in %v", flag, args)
		}
	}
	if v, _ := argValue(args, "-cpu"); v != "max" {
		t.Errorf("-cpu = %q", v)
	}
	if v, _ := argValue(args, "-accel"); v != "kvm" {
		t.Errorf("-accel = %q", v)
	}
	if v, _ := argValue(args, "-serial"); v != "chardev:console" {
		t.Errorf("-serial = %q", v)
	}
	if v, _ := argValue(args, "-qmp"); !strings.Contains(v, "/run/x/qmp.sock") || !strings.Contains(v, "wait=off") {
		t.Errorf("-qmp = %q", v)
	}
	if !slices.Contains(args, "-display") {
		t.Error("missing -display none")
	}
	// No name given, so no -name or hostname credential.
	if slices.Contains(args, "-name") {
		t.Error("unexpected -name")
	}
}

func TestCommandLineOverridesAndExtras(t *testing.T) {
	cfg := Config{
		RuntimeDir: "/run/x",
		Args: []ArgBlock{
			{Flag: "m", Value: "4G"},
			{Flag: "drive", Value: "file=disk.qcow2,if=virtio"},
			{Flag: "snapshot"},
		},
	}
	args := cfg.commandLine()

	if v, _ := argValue(args, "-m"); v != "4G" {
		t.Errorf("-m override = %q", v)
	}
	// The override must not duplicate the flag.
	count := 0
	for _, a := range args {
		if a == "-m" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("-m appears %d times", count)
	}
	if v, _ := argValue(args, "-drive"); v != "file=disk.qcow2,if=virtio" {
		t.Errorf("-drive = %q", v)
	}
	if !slices.Contains(args, "-snapshot") {
		t.Error("valueless flag dropped")
	}
}

func TestCommandLineIdentity(t *testing.T) {
	key := []byte("ssh-ed25519 AAAA test\n")
	cfg := Config{
		RuntimeDir:       "/run/x",
		Name:             "Happy Otter!",
		GuestCID:         1001,
		SSHAuthorizedKey: key,
	}
	args := cfg.commandLine()

	if v, _ := argValue(args, "-name"); v != "Happy Otter!" {
		t.Errorf("-name = %q", v)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "system.hostname=happy-otter") {
		t.Errorf("hostname credential missing: %v", args)
	}
	if !strings.Contains(joined, "hostname=happy-otter") || !strings.Contains(joined, "user,id=user.qemu-compose") {
		t.Errorf("user netdev missing hostname: %v", args)
	}
	if !strings.Contains(joined, "guest-cid=1001") {
		t.Errorf("vsock device missing: %v", args)
	}
	b64 := base64.StdEncoding.EncodeToString(key)
	if !strings.Contains(joined, "ssh.authorized_keys.root="+b64) {
		t.Errorf("ssh credential missing: %v", args)
	}
}

func TestCommandLineNetworkNone(t *testing.T) {
	cfg := Config{RuntimeDir: "/run/x", Network: "none"}
	args := cfg.commandLine()
	if slices.Contains(args, "-netdev") {
		t.Errorf("netdev added despite network none: %v", args)
	}
}

func TestValidHostname(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"happy-otter", "happy-otter"},
		{"Happy Otter!", "happy-otter"},
		{"--weird--", "weird"},
		{"a__b", "a-b"},
		{"", "vm"},
		{"!!!", "vm"},
		{strings.Repeat("x", 80), strings.Repeat("x", 63)},
	}
	for _, tt := range tests {
		if got := ValidHostname(tt.in); got != tt.want {
			t.Errorf("ValidHostname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
