// Package netconfig loads the tunables a netsync host needs at startup:
// tick pacing, rollback and correction depth, packet redundancy, the
// bandwidth quota, and per-channel delivery settings (spec.md §6
// "External interfaces / Configuration").
package netconfig

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// RollbackPolicy selects what triggers a client-side resimulation.
type RollbackPolicy struct {
	// State rolls back on a confirmed/predicted state mismatch.
	State bool `toml:"state"`
	// Input rolls back when a remote player's input arrives late and
	// differs from the guessed value used for ticks already simulated.
	Input bool `toml:"input"`
}

// ChannelConfig configures one named channel's delivery mode, send
// priority, and send frequency divisor.
type ChannelConfig struct {
	Mode          string  `toml:"mode"`
	Priority      float32 `toml:"priority"`
	SendFrequency int     `toml:"send_frequency"`
}

// Config is the full set of tunables loaded from a TOML file, with
// defaults filled in by Default() for anything the file omits.
type Config struct {
	TickDuration  time.Duration `toml:"tick_duration"`
	SendInterval  time.Duration `toml:"send_interval"`
	PingInterval  time.Duration `toml:"ping_interval"`
	InputDelayTicks   int `toml:"input_delay_ticks"`
	MaxRollbackTicks  int `toml:"max_rollback_ticks"`
	CorrectionTicks   int `toml:"correction_ticks"`
	PacketRedundancy  int `toml:"packet_redundancy"`

	BandwidthQuotaBytesPerSec int `toml:"bandwidth_quota_bytes_per_sec"`

	RollbackPolicy RollbackPolicy `toml:"rollback_policy"`

	Channels map[string]ChannelConfig `toml:"channels"`
}

// Default returns the configuration spec.md §6 lists as sane defaults for
// a 64-tick-per-second simulation.
func Default() Config {
	return Config{
		TickDuration:              time.Second / 64,
		SendInterval:              time.Second / 32,
		PingInterval:              100 * time.Millisecond,
		InputDelayTicks:           0,
		MaxRollbackTicks:          100,
		CorrectionTicks:           0,
		PacketRedundancy:          2,
		BandwidthQuotaBytesPerSec: 0,
		RollbackPolicy:            RollbackPolicy{State: true, Input: true},
		Channels:                  map[string]ChannelConfig{},
	}
}

// Load reads path as TOML over top of Default(), the way the teacher's
// core/main.go loadConfig seeds a literal struct, generalized here to a
// file so a deployment can override individual fields without touching
// code.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("netconfig: decode %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that would violate the wire-format and
// algorithmic invariants elsewhere in the module (e.g. a rollback depth
// the ack bitfield and history buffers can't represent).
func (c Config) Validate() error {
	if c.TickDuration <= 0 {
		return fmt.Errorf("netconfig: tick_duration must be positive")
	}
	if c.MaxRollbackTicks < 0 || c.MaxRollbackTicks > 1000 {
		return fmt.Errorf("netconfig: max_rollback_ticks must be in [0,1000], got %d", c.MaxRollbackTicks)
	}
	if c.PacketRedundancy < 1 {
		return fmt.Errorf("netconfig: packet_redundancy must be >= 1, got %d", c.PacketRedundancy)
	}
	if c.BandwidthQuotaBytesPerSec < 0 {
		return fmt.Errorf("netconfig: bandwidth_quota_bytes_per_sec must be >= 0")
	}
	for name, ch := range c.Channels {
		switch ch.Mode {
		case "unreliable_unordered", "unreliable_sequenced", "unreliable_with_ack", "reliable_unordered", "reliable_ordered":
		default:
			return fmt.Errorf("netconfig: channel %q has unknown mode %q", name, ch.Mode)
		}
		if ch.SendFrequency < 1 {
			return fmt.Errorf("netconfig: channel %q send_frequency must be >= 1, got %d", name, ch.SendFrequency)
		}
	}
	return nil
}
