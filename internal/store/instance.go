package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// firstGuestCID is the lowest context ID handed to guests; CIDs below
// are reserved by the vsock spec (0-2) and kept clear of host tooling.
const firstGuestCID = 1000

// Instance is one entry under the instance root, read back from its
// metadata files.
type Instance struct {
	VMID string
	Name string
	Pid  int
	CID  uint32
	Dir  string
}

// Running reports whether the recorded QEMU process is still alive.
func (i Instance) Running() bool {
	if i.Pid <= 0 {
		return false
	}
	err := unix.Kill(i.Pid, 0)
	// EPERM means the pid exists but belongs to someone else.
	return err == nil || err == unix.EPERM
}

// Meta is what gets persisted right after a successful launch.
type Meta struct {
	Name string
	Pid  int
	CID  uint32
}

// WriteMeta records an instance's runtime metadata so ps and ssh can
// find it later.
func (s *Store) WriteMeta(vmid string, m Meta) error {
	dir := s.InstanceDir(vmid)
	files := map[string]string{
		"name":        m.Name,
		"qemu.pid":    strconv.Itoa(m.Pid),
		"cid":         strconv.FormatUint(uint64(m.CID), 10),
		"instance-id": vmid,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("write instance %s: %w", name, err)
		}
	}
	return nil
}

// Instances lists everything under the instance root, sorted by vmid.
// Entries missing metadata files still appear with zero values.
func (s *Store) Instances() ([]Instance, error) {
	root, err := s.InstanceRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	out := make([]Instance, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		inst := Instance{VMID: e.Name(), Dir: dir}
		inst.Name = readMetaFile(dir, "name")
		if pid, err := strconv.Atoi(readMetaFile(dir, "qemu.pid")); err == nil {
			inst.Pid = pid
		}
		if cid, err := strconv.ParseUint(readMetaFile(dir, "cid"), 10, 32); err == nil {
			inst.CID = uint32(cid)
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VMID < out[j].VMID })
	return out, nil
}

// FindInstance resolves a vmid prefix or exact name to one instance.
func (s *Store) FindInstance(key string) (Instance, error) {
	instances, err := s.Instances()
	if err != nil {
		return Instance{}, err
	}

	var matches []Instance
	for _, inst := range instances {
		if inst.Name == key || strings.HasPrefix(inst.VMID, key) {
			matches = append(matches, inst)
		}
	}
	switch len(matches) {
	case 0:
		return Instance{}, fmt.Errorf("no instance matches %q", key)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.VMID
		}
		return Instance{}, fmt.Errorf("%q is ambiguous: %s", key, strings.Join(ids, ", "))
	}
}

// NextCID picks the lowest guest context ID not claimed by a running
// instance. CIDs of dead instances are reusable immediately.
func (s *Store) NextCID() (uint32, error) {
	instances, err := s.Instances()
	if err != nil {
		return 0, err
	}
	used := make(map[uint32]bool)
	for _, inst := range instances {
		if inst.CID != 0 && inst.Running() {
			used[inst.CID] = true
		}
	}
	for cid := uint32(firstGuestCID); ; cid++ {
		if !used[cid] {
			return cid, nil
		}
	}
}

func readMetaFile(dir, name string) string {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
