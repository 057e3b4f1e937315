// Package store manages the on-disk layout under the user data
// directory: pulled images, per-instance runtime directories, instance
// metadata and locks.
package store

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// vmidCharset avoids visually ambiguous characters (0/O, 1/l/I).
const vmidCharset = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

const vmidLength = 12

// Store is the local data directory, laid out as:
//
//	<data>/image/<name>/       pulled image contents
//	<data>/instance/<vmid>/    per-instance runtime files
type Store struct {
	dataDir string
}

// Open places the store under XDG_DATA_HOME, falling back to
// ~/.local/share, and creates the data directory.
func Open() (*Store, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return OpenAt(filepath.Join(base, "qemu-compose"))
}

// OpenAt opens a store rooted at an explicit directory, creating it if
// needed.
func OpenAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dataDir: dir}, nil
}

// DataDir returns the store's root directory.
func (s *Store) DataDir() string { return s.dataDir }

// ImageRoot returns the directory holding all images, creating it if
// needed.
func (s *Store) ImageRoot() (string, error) {
	return s.ensure(filepath.Join(s.dataDir, "image"))
}

// ImageDir returns the directory of one image, creating it if needed.
func (s *Store) ImageDir(name string) (string, error) {
	root, err := s.ImageRoot()
	if err != nil {
		return "", err
	}
	return s.ensure(filepath.Join(root, name))
}

// InstanceRoot returns the directory holding all instances, creating it
// if needed.
func (s *Store) InstanceRoot() (string, error) {
	return s.ensure(filepath.Join(s.dataDir, "instance"))
}

// InstanceDir returns the directory of one instance. It does not create
// the directory; NewVMID does that atomically.
func (s *Store) InstanceDir(vmid string) string {
	return filepath.Join(s.dataDir, "instance", vmid)
}

// NewVMID picks a fresh random instance ID and claims it by creating
// its directory. The exclusive create makes concurrent callers safe.
func (s *Store) NewVMID() (string, error) {
	root, err := s.InstanceRoot()
	if err != nil {
		return "", err
	}
	for {
		vmid, err := randomVMID()
		if err != nil {
			return "", err
		}
		err = os.Mkdir(filepath.Join(root, vmid), 0755)
		if err == nil {
			return vmid, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("claim instance directory: %w", err)
		}
	}
}

func randomVMID() (string, error) {
	raw := make([]byte, vmidLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate vmid: %w", err)
	}
	for i, b := range raw {
		raw[i] = vmidCharset[int(b)%len(vmidCharset)]
	}
	return string(raw), nil
}

func (s *Store) ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}
