// Package config loads server and game-balance tuning from an optional
// YAML file, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Balance holds the starting state handed to new players.
type Balance struct {
	StartingCredits int `yaml:"starting_credits"`
	StartingHolds   int `yaml:"starting_holds"`
	StartingHull    int `yaml:"starting_hull"`
	StartingShields int `yaml:"starting_shields"`
	StartingBank    int `yaml:"starting_bank"`
}

// Config is the full server configuration.
type Config struct {
	ListenAddr       string  `yaml:"listen_addr"`
	SaveDir          string  `yaml:"save_dir"`
	GalaxySize       int     `yaml:"galaxy_size"`
	StartSector      int     `yaml:"start_sector"`
	AutosaveSeconds  int     `yaml:"autosave_seconds"`
	HeartbeatSeconds int     `yaml:"heartbeat_seconds"`
	IdleTickSeconds  int     `yaml:"idle_tick_seconds"`
	SessionSecret    string  `yaml:"session_secret"`
	SessionTTLHours  int     `yaml:"session_ttl_hours"`
	Balance          Balance `yaml:"game_balance"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8765",
		SaveDir:          "saves",
		GalaxySize:       200,
		StartSector:      1,
		AutosaveSeconds:  300,
		HeartbeatSeconds: 10,
		IdleTickSeconds:  1,
		SessionSecret:    "dev-session-secret",
		SessionTTLHours:  72,
		Balance: Balance{
			StartingCredits: 1000,
			StartingHolds:   100,
			StartingHull:    100,
			StartingShields: 10,
			StartingBank:    0,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// one exists, then environment overrides. A missing file is fine; a
// malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No tuning file; defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STARTRADER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STARTRADER_SAVE_DIR"); v != "" {
		cfg.SaveDir = v
	}
	if v := os.Getenv("STARTRADER_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("STARTRADER_GALAXY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GalaxySize = n
		}
	}
}

// AutosaveInterval is the autosave tick period.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveSeconds) * time.Second
}

// HeartbeatInterval is the per-connection heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// IdleTickInterval is the world-simulation tick period (currently a
// no-op, reserved for future simulation).
func (c *Config) IdleTickInterval() time.Duration {
	return time.Duration(c.IdleTickSeconds) * time.Second
}

// SessionTTL is the session token lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}
