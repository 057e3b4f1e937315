package image

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CreateOverlay makes a copy-on-write qcow2 at overlayPath backed by
// the image's disk. The base image stays untouched; the instance owns
// the overlay.
func CreateOverlay(ctx context.Context, basePath, baseFormat, overlayPath string) error {
	if baseFormat == "" {
		baseFormat = "qcow2"
	}
	cmd := exec.CommandContext(ctx, "qemu-img", "create",
		"-b", basePath,
		"-f", "qcow2",
		"-F", baseFormat,
		overlayPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("qemu-img create %s: %w: %s", overlayPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// PrepareDisks creates one overlay per manifest disk inside instanceDir
// and returns the -drive parameter for each, combining the manifest's
// drive opts with the overlay path.
func PrepareDisks(ctx context.Context, e Entry, instanceDir string) ([]string, error) {
	var drives []string
	for _, spec := range e.Manifest.Disks {
		base := filepath.Join(e.Dir, spec.Filename)
		overlay := filepath.Join(instanceDir, spec.Filename)
		if err := CreateOverlay(ctx, base, spec.Format, overlay); err != nil {
			return nil, err
		}
		drives = append(drives, driveParam(overlay, spec))
	}
	return drives, nil
}

func driveParam(overlayPath string, spec DiskSpec) string {
	var opts []string
	if spec.Opts != "" {
		opts = strings.Split(spec.Opts, ",")
	}
	hasIf := false
	for _, o := range opts {
		if strings.HasPrefix(o, "if=") {
			hasIf = true
			break
		}
	}
	if !hasIf {
		opts = append([]string{"if=virtio"}, opts...)
	}
	opts = append(opts, "format=qcow2", "file="+overlayPath)
	return strings.Join(opts, ",")
}
