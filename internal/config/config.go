// Package config loads and validates the daemon's YAML configuration
// file (§6). This is thin glue over gopkg.in/yaml.v3: the core consumes
// only the resulting Config values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SharedMount names a host directory exposed to the guest under a guest
// path. The core does not implement shared-folder semantics; this is
// carried through configuration for the platform glue that does.
type SharedMount struct {
	HostPath  string `yaml:"host_path"`
	GuestPath string `yaml:"guest_path"`
}

// Config is the daemon's configuration surface (§6).
type Config struct {
	MemoryMB       uint32      `yaml:"memory_mb"`
	RingBufMB      uint32      `yaml:"ringbuf_mb"`
	VBLKBacking    string      `yaml:"vblk_backing"`
	VBLKQueueDepth int         `yaml:"vblk_queue_depth"`
	VNetMode       string      `yaml:"vnet_mode"`
	ConsoleMode    string      `yaml:"console_mode"`
	Shared         SharedMount `yaml:"shared"`
	TickBudget     uint32      `yaml:"tick_budget"`
}

// Load reads and validates a Config from the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field against the bounds in §6. It also requires
// the backing file to already exist, mirroring the reference config
// loader's behavior of failing fast before the daemon ever opens the
// device.
func (c Config) Validate() error {
	if c.MemoryMB < 256 || c.MemoryMB > 65536 {
		return fmt.Errorf("memory_mb %d out of range [256, 65536]", c.MemoryMB)
	}
	if c.RingBufMB < 4 || c.RingBufMB > 1024 {
		return fmt.Errorf("ringbuf_mb %d out of range [4, 1024]", c.RingBufMB)
	}
	if c.VBLKBacking == "" {
		return fmt.Errorf("vblk_backing must be set")
	}
	if _, err := os.Stat(c.VBLKBacking); err != nil {
		return fmt.Errorf("vblk_backing not found: %s", c.VBLKBacking)
	}
	if c.VBLKQueueDepth < 1 || c.VBLKQueueDepth > 1024 {
		return fmt.Errorf("vblk_queue_depth %d out of range [1, 1024]", c.VBLKQueueDepth)
	}
	if c.TickBudget < 1 || c.TickBudget > 100000 {
		return fmt.Errorf("tick_budget %d out of range [1, 100000]", c.TickBudget)
	}
	return nil
}
