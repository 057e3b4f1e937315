package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings are the user-level tool settings, distinct from the
// per-project compose file. They come from an optional config file
// under the user config directory and QEMU_COMPOSE_* environment
// variables.
type Settings struct {
	// StorePath overrides the data directory. Empty means the default
	// XDG location.
	StorePath string `mapstructure:"store_path"`

	// BootTimeout is the default budget in seconds for each read_until
	// boot step that carries no timeout of its own.
	BootTimeout float64 `mapstructure:"boot_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// Timing enables per-phase timing output on stderr.
	Timing bool `mapstructure:"timing"`
}

// Global holds the loaded settings.
var Global *Settings

// ConfigDir returns the user config directory for the tool.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qemu-compose"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "qemu-compose"), nil
}

// LoadSettings reads tool settings from file, environment, and
// defaults.
func LoadSettings() error {
	viper.SetDefault("store_path", "")
	viper.SetDefault("boot_timeout", 3600.0)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("timing", false)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if dir, err := ConfigDir(); err == nil {
		viper.AddConfigPath(dir)
	}

	// QEMU_COMPOSE_LOG_LEVEL, QEMU_COMPOSE_TIMING, and so on.
	viper.SetEnvPrefix("QEMU_COMPOSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read settings: %w", err)
		}
		// No settings file is fine, defaults apply.
	}

	Global = &Settings{}
	if err := viper.Unmarshal(Global); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	return nil
}
