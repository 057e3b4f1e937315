package store

import (
	"errors"
	"os"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAt: %v", err)
	}
	return s
}

func TestNewVMIDClaimsDirectory(t *testing.T) {
	s := testStore(t)

	a, err := s.NewVMID()
	if err != nil {
		t.Fatalf("NewVMID: %v", err)
	}
	b, err := s.NewVMID()
	if err != nil {
		t.Fatalf("NewVMID: %v", err)
	}
	if a == b {
		t.Fatalf("two ids collided: %s", a)
	}
	if len(a) != vmidLength {
		t.Errorf("vmid length = %d, want %d", len(a), vmidLength)
	}
	for _, c := range a {
		if !strings.ContainsRune(vmidCharset, c) {
			t.Errorf("vmid %q contains %q outside the charset", a, c)
		}
	}
	if fi, err := os.Stat(s.InstanceDir(a)); err != nil || !fi.IsDir() {
		t.Errorf("instance dir not created: %v", err)
	}
}

func TestResolveName(t *testing.T) {
	s := testStore(t)

	vmid, err := s.NewVMID()
	if err != nil {
		t.Fatalf("NewVMID: %v", err)
	}
	if err := s.WriteMeta(vmid, Meta{Name: "happy-otter"}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	if _, err := s.ResolveName("happy-otter"); err == nil {
		t.Error("duplicate name accepted")
	}

	got, err := s.ResolveName("fresh-name")
	if err != nil || got != "fresh-name" {
		t.Errorf("ResolveName(fresh-name) = %q, %v", got, err)
	}

	generated, err := s.ResolveName("")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	if generated == "" || generated == "happy-otter" {
		t.Errorf("generated name = %q", generated)
	}
	parts := strings.Split(generated, "-")
	if len(parts) < 2 {
		t.Errorf("generated name %q is not adjective-noun", generated)
	}
}

func TestInstancesAndRunning(t *testing.T) {
	s := testStore(t)

	alive, err := s.NewVMID()
	if err != nil {
		t.Fatalf("NewVMID: %v", err)
	}
	if err := s.WriteMeta(alive, Meta{Name: "calm-heron", Pid: os.Getpid(), CID: 1000}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	dead, err := s.NewVMID()
	if err != nil {
		t.Fatalf("NewVMID: %v", err)
	}
	// A pid far above the kernel's default pid_max.
	if err := s.WriteMeta(dead, Meta{Name: "tidy-comet", Pid: 1 << 30, CID: 1001}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	instances, err := s.Instances()
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}

	byID := map[string]Instance{}
	for _, inst := range instances {
		byID[inst.VMID] = inst
	}
	if inst := byID[alive]; !inst.Running() || inst.Name != "calm-heron" || inst.CID != 1000 {
		t.Errorf("alive instance = %+v", inst)
	}
	if inst := byID[dead]; inst.Running() {
		t.Errorf("dead instance reported running: %+v", inst)
	}
}

func TestNextCIDSkipsRunning(t *testing.T) {
	s := testStore(t)

	cid, err := s.NextCID()
	if err != nil {
		t.Fatalf("NextCID: %v", err)
	}
	if cid != firstGuestCID {
		t.Errorf("first cid = %d, want %d", cid, firstGuestCID)
	}

	running, _ := s.NewVMID()
	if err := s.WriteMeta(running, Meta{Pid: os.Getpid(), CID: firstGuestCID}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	exited, _ := s.NewVMID()
	if err := s.WriteMeta(exited, Meta{Pid: 1 << 30, CID: firstGuestCID + 1}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	cid, err = s.NextCID()
	if err != nil {
		t.Fatalf("NextCID: %v", err)
	}
	// 1000 is held by the live instance, 1001 is free again.
	if cid != firstGuestCID+1 {
		t.Errorf("cid = %d, want %d", cid, firstGuestCID+1)
	}
}

func TestFindInstance(t *testing.T) {
	s := testStore(t)

	vmid, _ := s.NewVMID()
	if err := s.WriteMeta(vmid, Meta{Name: "brisk-falcon"}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	if inst, err := s.FindInstance("brisk-falcon"); err != nil || inst.VMID != vmid {
		t.Errorf("by name: %+v, %v", inst, err)
	}
	if inst, err := s.FindInstance(vmid[:4]); err != nil || inst.VMID != vmid {
		t.Errorf("by prefix: %+v, %v", inst, err)
	}
	if _, err := s.FindInstance("no-such"); err == nil {
		t.Error("unknown key resolved")
	}
}

func TestLockExcludes(t *testing.T) {
	s := testStore(t)
	vmid, _ := s.NewVMID()
	dir := s.InstanceDir(vmid)

	l1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := AcquireLock(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire: %v, want ErrLocked", err)
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Errorf("double release: %v", err)
	}

	l2, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	l2.Release()
}

func TestPrepareSSHKey(t *testing.T) {
	s := testStore(t)
	vmid, _ := s.NewVMID()

	line, err := s.PrepareSSHKey(vmid)
	if err != nil {
		t.Fatalf("PrepareSSHKey: %v", err)
	}
	if !strings.HasPrefix(string(line), "ssh-ed25519 ") {
		t.Errorf("authorized key line = %q", line)
	}
	if !strings.HasSuffix(string(line), " qemu-compose-"+vmid+"\n") {
		t.Errorf("missing comment: %q", line)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(line); err != nil {
		t.Errorf("line does not parse as authorized_keys: %v", err)
	}

	fi, err := os.Stat(s.SSHKeyPath(vmid))
	if err != nil {
		t.Fatalf("private key missing: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0600 {
		t.Errorf("private key mode = %o, want 0600", perm)
	}
	priv, err := os.ReadFile(s.SSHKeyPath(vmid))
	if err != nil {
		t.Fatalf("read private key: %v", err)
	}
	if _, err := ssh.ParsePrivateKey(priv); err != nil {
		t.Errorf("private key does not parse: %v", err)
	}
}
