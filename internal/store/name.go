package store

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

var nameAdjectives = []string{
	"agile", "brisk", "calm", "daring", "eager",
	"fancy", "gentle", "happy", "jolly", "kind",
	"lively", "merry", "nimble", "proud", "quick",
	"ready", "smart", "tidy", "upbeat", "vivid",
}

var nameNouns = []string{
	"badger", "beacon", "clover", "comet", "falcon",
	"feather", "harbor", "heron", "island", "jungle",
	"meadow", "nebula", "otter", "prairie", "quartz",
	"ranger", "spruce", "talon", "valley", "willow",
}

const nameSuffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// ExistingNames maps every instance name in use to the vmid holding it.
// Instances without a name file are skipped.
func (s *Store) ExistingNames() (map[string]string, error) {
	root, err := s.InstanceRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	names := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(root, e.Name(), "name"))
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(string(raw)); name != "" {
			names[name] = e.Name()
		}
	}
	return names, nil
}

// ResolveName returns the requested name after checking it is free, or
// generates an unused one when the request is empty. The duplicate
// check runs before launch so two instances never share a name.
func (s *Store) ResolveName(requested string) (string, error) {
	existing, err := s.ExistingNames()
	if err != nil {
		return "", err
	}
	if requested != "" {
		if vmid, taken := existing[requested]; taken {
			return "", fmt.Errorf("name %q is already in use by instance %s", requested, vmid)
		}
		return requested, nil
	}
	return generateName(existing), nil
}

// generateName picks an unused adjective-noun pair, degrading to a
// random suffix once the pair space is exhausted.
func generateName(existing map[string]string) string {
	maxAttempts := len(nameAdjectives) * len(nameNouns)
	for i := 0; i < maxAttempts; i++ {
		candidate := nameAdjectives[rand.IntN(len(nameAdjectives))] +
			"-" + nameNouns[rand.IntN(len(nameNouns))]
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
	for {
		suffix := make([]byte, 4)
		for i := range suffix {
			suffix[i] = nameSuffixCharset[rand.IntN(len(nameSuffixCharset))]
		}
		candidate := nameAdjectives[rand.IntN(len(nameAdjectives))] +
			"-" + nameNouns[rand.IntN(len(nameNouns))] +
			"-" + string(suffix)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
