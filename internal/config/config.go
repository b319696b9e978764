// Package config loads the tracker's YAML configuration and validates
// the timing parameters the pipeline depends on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timekeep/internal/session"
)

// Config holds all tunables. Durations are stored in their natural
// units and exposed as time.Duration through the accessor methods.
type Config struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`
	Timezone   string `yaml:"timezone"`

	EngineTickMS  int     `yaml:"engine_tick_ms"`
	StatusPollSec int     `yaml:"status_poll_sec"`
	SleepMargin   float64 `yaml:"sleep_margin"`
	FlushMS       int     `yaml:"flush_ms"`

	TabDebounceMS   int `yaml:"tab_debounce_ms"`
	TabTransienceMS int `yaml:"tab_transience_ms"`
	TabQueueMax     int `yaml:"tab_queue_max"`

	BrowserProcesses  []string `yaml:"browser_processes"`
	ProductiveExes    []string `yaml:"productive_exes"`
	ProductiveDomains []string `yaml:"productive_domains"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:           filepath.Join(defaultDataDir(), "timekeep.db"),
		ListenAddr:       "127.0.0.1:52180",
		EngineTickMS:     1000,
		StatusPollSec:    10,
		SleepMargin:      0.5,
		FlushMS:          250,
		TabDebounceMS:    500,
		TabTransienceMS:  300,
		TabQueueMax:      32,
		BrowserProcesses: []string{"chrome", "chromium", "msedge", "firefox", "brave"},
	}
}

// Load reads path over the defaults. A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run safely with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.EngineTickMS <= 0 {
		return fmt.Errorf("engine_tick_ms must be positive")
	}
	if c.StatusPollSec <= 0 {
		return fmt.Errorf("status_poll_sec must be positive")
	}
	if c.SleepMargin <= 0 {
		return fmt.Errorf("sleep_margin must be positive")
	}
	if flush := c.FlushInterval(); flush > time.Second {
		return &session.WayTooLongWaitError{Interval: flush, Max: time.Second}
	}
	if c.TabTransienceMS >= c.TabDebounceMS {
		return fmt.Errorf("tab_transience_ms must be below tab_debounce_ms")
	}
	return nil
}

func (c *Config) EngineTick() time.Duration {
	return time.Duration(c.EngineTickMS) * time.Millisecond
}

func (c *Config) StatusPoll() time.Duration {
	return time.Duration(c.StatusPollSec) * time.Second
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushMS) * time.Millisecond
}

func (c *Config) TabDebounce() time.Duration {
	return time.Duration(c.TabDebounceMS) * time.Millisecond
}

func (c *Config) TabTransience() time.Duration {
	return time.Duration(c.TabTransienceMS) * time.Millisecond
}

// Location resolves the configured timezone, defaulting to the local
// zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ProductiveExe reports whether the exe path is on the productive list.
func (c *Config) ProductiveExe(exePath string) bool {
	base := strings.ToLower(filepath.Base(exePath))
	for _, p := range c.ProductiveExes {
		p = strings.ToLower(p)
		if p == base || p == strings.ToLower(exePath) {
			return true
		}
	}
	return false
}

// ProductiveDomain reports whether the domain is on the productive list.
func (c *Config) ProductiveDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range c.ProductiveDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".timekeep")
}
