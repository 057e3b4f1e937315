// Package image reads VM image manifests out of the local store and
// resolves user-supplied references to them.
package image

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RepoTag is a docker-style repository:tag reference.
type RepoTag struct {
	Repo string
	Tag  string
}

// ParseRepoTag splits "repo:tag", defaulting the tag to latest.
func ParseRepoTag(s string) RepoTag {
	if repo, tag, ok := strings.Cut(s, ":"); ok {
		return RepoTag{Repo: repo, Tag: tag}
	}
	return RepoTag{Repo: s, Tag: "latest"}
}

func (t RepoTag) String() string { return t.Repo + ":" + t.Tag }

// DiskSpec names one disk file of an image. Manifests may spell it as
// an array ["file.qcow2", "qcow2", "opts"] or as an object.
type DiskSpec struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Opts     string `json:"opts"`
}

func (d *DiskSpec) UnmarshalJSON(raw []byte) error {
	if len(raw) > 0 && raw[0] == '[' {
		var arr []string
		if err := json.Unmarshal(raw, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return fmt.Errorf("empty disk entry")
		}
		d.Filename = arr[0]
		d.Format = "qcow2"
		if len(arr) > 1 {
			d.Format = arr[1]
		}
		if len(arr) > 2 {
			d.Opts = arr[2]
		}
		return nil
	}
	type plain DiskSpec
	return json.Unmarshal(raw, (*plain)(d))
}

// Manifest describes one image in the store.
type Manifest struct {
	ID           string     `json:"id"`
	Architecture string     `json:"architecture"`
	OS           string     `json:"os"`
	Created      time.Time  `json:"created"`
	RepoTags     []string   `json:"repo_tags"`
	Disks        []DiskSpec `json:"disks"`
	QemuArgs     []string   `json:"qemu_args"`
	Digest       string     `json:"digest"`
	Comment      string     `json:"comment"`
}

// LoadManifest reads manifest.json from an image directory.
func LoadManifest(imageDir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(imageDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest in %s: %w", imageDir, err)
	}
	return &m, nil
}

// ShortID returns the first twelve hex digits of the digest, the way
// image listings abbreviate it.
func (m *Manifest) ShortID() string {
	d := m.Digest
	if d == "" {
		return "<none>"
	}
	if rest, ok := strings.CutPrefix(d, "sha256:"); ok {
		d = rest
	}
	if len(d) > 12 {
		d = d[:12]
	}
	return d
}

// DiskSize sums the on-disk size of the manifest's disk files.
func (m *Manifest) DiskSize(imageDir string) int64 {
	var total int64
	for _, d := range m.Disks {
		if fi, err := os.Stat(filepath.Join(imageDir, d.Filename)); err == nil {
			total += fi.Size()
		}
	}
	return total
}
