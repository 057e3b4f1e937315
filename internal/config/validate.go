package config

import (
	"fmt"
)

var networkModes = map[string]bool{
	"":     true, // defaults to user
	"user": true,
	"none": true,
}

// Validate rejects compose files the runner could not act on. Boot
// command shapes are checked later when they are parsed into steps;
// here only the coarse structure matters.
func (c *Compose) Validate() error {
	if !networkModes[c.Network] {
		return fmt.Errorf("network must be \"user\" or \"none\", got %q", c.Network)
	}
	if c.BootTimeout < 0 {
		return fmt.Errorf("boot_timeout must not be negative, got %v", c.BootTimeout)
	}
	for i, block := range c.QemuArgs {
		if len(block) != 1 {
			return fmt.Errorf("qemu_args entry %d must have exactly one key, got %d", i, len(block))
		}
	}
	if h := c.HTTPServe; h != nil && h.Port != nil {
		if *h.Port < 0 || *h.Port > 65535 {
			return fmt.Errorf("http_serve.port %d out of range", *h.Port)
		}
	}
	return nil
}
