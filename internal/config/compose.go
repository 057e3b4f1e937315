// Package config loads the per-project compose file and the user-level
// tool settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// composeFileNames are probed in order when no file is given explicitly.
var composeFileNames = []string{"qemu-compose.yml", "qemu-compose.yaml"}

// HTTPServe configures the built-in file server the guest can fetch
// provisioning files from during boot.
type HTTPServe struct {
	Listen   string `yaml:"listen"`
	Port     *int   `yaml:"port"`
	Root     string `yaml:"root"`
	AccessIP string `yaml:"access_ip"`
}

// Compose is one project's VM description. Env values, qemu_args
// values and script lines may carry {NAME} placeholders resolved
// against the runtime environment.
type Compose struct {
	Name         string            `yaml:"name"`
	Binary       string            `yaml:"binary"`
	Network      string            `yaml:"network"`
	Image        string            `yaml:"image"`
	Env          map[string]string `yaml:"env"`
	QemuArgs     []map[string]any  `yaml:"qemu_args"`
	BootCommands []any             `yaml:"boot_commands"`
	BootTimeout  float64           `yaml:"boot_timeout"`
	BeforeScript []string          `yaml:"before_script"`
	AfterScript  []string          `yaml:"after_script"`
	HTTPServe    *HTTPServe        `yaml:"http_serve"`
}

// LoadCompose reads and validates one compose file.
//
// The file is decoded with yaml.v3 directly rather than through viper:
// viper lowercases all keys, which would corrupt the case-sensitive
// environment names under env.
func LoadCompose(path string) (*Compose, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	var c Compose
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindCompose locates the compose file in dir, trying the .yml spelling
// first.
func FindCompose(dir string) (string, error) {
	for _, name := range composeFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found in %s", composeFileNames[0], dir)
}
