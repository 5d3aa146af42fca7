// Package config provides configuration loading, validation and defaults
// for the sigrelay daemon.
//
// Configuration is a TOML file holding logging, webhook and watcher settings
// plus an ordered list of rules. Each rule maps signal-name glob patterns
// (for example "SIGUSR*") to the action the relay performs on delivery.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/sigrelay/internal/atomicfile"
	"tools.zach/dev/sigrelay/internal/signals"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Actions
// ///////////////////////////////////////////////

// Action names what the relay does for a matched signal.
type Action string

const (
	// ActionLog logs each delivery.
	ActionLog Action = "log"
	// ActionNotify logs each delivery and posts it to the webhook.
	ActionNotify Action = "notify"
	// ActionReload re-reads the config file and re-applies the rules.
	ActionReload Action = "reload"
	// ActionShutdown stops the relay.
	ActionShutdown Action = "shutdown"
	// ActionIgnore sets the disposition to ignore; no handler runs.
	ActionIgnore Action = "ignore"
	// ActionDefault restores the platform default disposition.
	ActionDefault Action = "default"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionLog, ActionNotify, ActionReload, ActionShutdown, ActionIgnore, ActionDefault:
		return true
	}
	return false
}

// Handled reports whether a installs a handler that forwards deliveries to
// the relay, as opposed to only changing the disposition.
func (a Action) Handled() bool {
	return a != ActionIgnore && a != ActionDefault
}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Notify holds webhook settings used by the notify action.
	Notify NotifyConfig `toml:"notify"`
	// Watch holds config file watcher settings.
	Watch WatchConfig `toml:"watch"`
	// Rules maps signals to actions. Later rules win for the same signal.
	Rules []Rule `toml:"rules"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// NotifyConfig holds webhook settings.
type NotifyConfig struct {
	// URL receives a JSON POST per delivery; empty disables notification.
	URL string `toml:"url"`
	// RetryMax is the number of retries after a failed POST.
	RetryMax int `toml:"retry_max"`
	// TimeoutSeconds bounds each HTTP attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// WatchConfig holds config file watcher settings.
type WatchConfig struct {
	// Enabled reloads the rules when the config file changes on disk.
	Enabled bool `toml:"enabled"`
	// PollIntervalSeconds is the polling interval used when fsnotify is
	// unavailable.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Rule binds signal patterns to an action.
type Rule struct {
	// Signals lists signal names or doublestar patterns ("SIGUSR*").
	Signals []string `toml:"signals"`
	// Action is what the relay does on delivery.
	Action Action `toml:"action"`
	// Flags are registration flags: onstack, restart, oneshot.
	Flags []string `toml:"flags,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with the shipped defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Notify: NotifyConfig{
			RetryMax:       2,
			TimeoutSeconds: 10,
		},
		Watch: WatchConfig{
			Enabled:             true,
			PollIntervalSeconds: 2,
		},
		Rules: defaultRules(),
	}
}

func defaultRules() []Rule {
	return []Rule{
		{Signals: []string{"SIGINT", "SIGTERM"}, Action: ActionShutdown},
		{Signals: []string{"SIGHUP"}, Action: ActionReload},
		{Signals: []string{"SIGUSR*"}, Action: ActionLog},
		{Signals: []string{"SIGPIPE"}, Action: ActionIgnore},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and validates the configuration file at path. A missing file
// yields DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data over the defaults and validates the result. When
// the data defines any rules they replace the default rules entirely.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Rules = nil

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if !md.IsDefined("rules") {
		cfg.Rules = defaultRules()
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path as TOML using an atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d is newer than supported version %d", c.Version, CurrentVersion)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Notify.URL != "" {
		u, err := url.Parse(c.Notify.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid notify.url %q: must be an http or https URL", c.Notify.URL)
		}
	}
	if c.Notify.RetryMax < 0 {
		return fmt.Errorf("notify.retry_max must be >= 0, got %d", c.Notify.RetryMax)
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be > 0, got %d", c.Notify.TimeoutSeconds)
	}

	if c.Watch.PollIntervalSeconds <= 0 {
		return fmt.Errorf("watch.poll_interval_seconds must be > 0, got %d", c.Watch.PollIntervalSeconds)
	}

	for i, r := range c.Rules {
		if err := r.validate(c); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

func (r Rule) validate(c *Config) error {
	if len(r.Signals) == 0 {
		return fmt.Errorf("signals must not be empty")
	}
	for _, p := range r.Signals {
		if !doublestar.ValidatePattern(strings.ToUpper(p)) {
			return fmt.Errorf("invalid signal pattern %q", p)
		}
	}
	if !r.Action.Valid() {
		return fmt.Errorf("invalid action %q: must be log, notify, reload, shutdown, ignore, or default", r.Action)
	}
	if r.Action == ActionNotify && c.Notify.URL == "" {
		return fmt.Errorf("action notify requires notify.url")
	}
	if _, err := signals.ParseFlags(r.Flags); err != nil {
		return err
	}
	if len(r.Flags) > 0 && !r.Action.Handled() {
		return fmt.Errorf("flags have no effect with action %q", r.Action)
	}
	return nil
}
