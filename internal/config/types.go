// Package config provides configuration types for joat.
package config

import (
	"time"

	"github.com/flynn-ai/joat/internal/classifier"
	"github.com/flynn-ai/joat/internal/model"
)

// Config represents the main joat configuration.
type Config struct {
	Backend    BackendConfig         `toml:"backend"`
	Routing    RoutingConfig         `toml:"routing"`
	Generation model.GenerateOptions `toml:"generation"`
	Context    ContextConfig         `toml:"context"`
	Classifier ClassifierConfig      `toml:"classifier"`
	Paths      PathsConfig           `toml:"paths"`
	Logging    LoggingConfig         `toml:"logging"`
}

// BackendConfig configures the inference backend.
type BackendConfig struct {
	URL         string   `toml:"url"`
	Timeout     Duration `toml:"timeout"`      // whole invocation
	PingTimeout Duration `toml:"ping_timeout"` // reachability check
	AutoInstall bool     `toml:"auto_install"` // pull missing models on demand
}

// RoutingConfig selects and defines profiles.
type RoutingConfig struct {
	// Profile forces a profile; empty means auto-detect.
	Profile string `toml:"profile"`

	// MappingFile is an optional JSON file in the
	// {"small_sized_models": {...}, "regular_sized_models": {...}} format.
	// Its tables replace same-named tables from Profiles.
	MappingFile string `toml:"mapping_file"`

	// Profiles maps profile name -> task category -> model id.
	Profiles map[string]map[string]string `toml:"profiles"`
}

// ContextConfig bounds conversation state.
type ContextConfig struct {
	MaxTurns   int      `toml:"max_turns"`   // per model, per session
	SessionTTL Duration `toml:"session_ttl"` // 0 keeps sessions forever
	Archive    bool     `toml:"archive"`     // journal turns to Paths.ArchiveDB
}

// ClassifierConfig overrides the built-in rule order.
// An empty Rules list keeps the defaults.
type ClassifierConfig struct {
	Rules []classifier.Rule `toml:"rules"`
}

// PathsConfig contains file path settings.
type PathsConfig struct {
	DataDir   string `toml:"data_dir"`
	ArchiveDB string `toml:"archive_db"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Duration is a time.Duration written as "90s" or "2m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
