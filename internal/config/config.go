// Package config handles joat configuration loading and management.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/flynn-ai/joat/internal/classifier"
	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/model"
)

// Environment variables read by ApplyEnv.
const (
	EnvProfile    = "JOAT_PROFILE"
	EnvBackendURL = "JOAT_BACKEND_URL"
	EnvOllamaHost = "OLLAMA_HOST"
	EnvLogLevel   = "JOAT_LOG_LEVEL"
)

// Names used by the JSON mapping file.
const (
	legacySmallProfile   = "small_sized_models"
	legacyRegularProfile = "regular_sized_models"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".joat")

	return &Config{
		Backend: BackendConfig{
			URL:         model.DefaultOllamaURL,
			Timeout:     Duration{model.DefaultInvokeTimeout},
			PingTimeout: Duration{model.DefaultPingTimeout},
			AutoInstall: true,
		},
		Routing: RoutingConfig{
			Profiles: model.DefaultProfiles().Raw(),
		},
		Generation: model.DefaultGenerateOptions(),
		Context: ContextConfig{
			MaxTurns:   20,
			SessionTTL: Duration{time.Hour},
			Archive:    true,
		},
		Paths: PathsConfig{
			DataDir:   dataDir,
			ArchiveDB: filepath.Join(dataDir, "archive.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.joat/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".joat", "config.toml")
}

// Load loads the configuration from the given path, then applies the
// mapping file and environment overrides. If the file doesn't exist,
// defaults are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Try to read config file
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.CodeConfigNotFound, "failed to read config file", errors.CategoryUser).
			WithContext("path", configPath)
	}

	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to parse config file", errors.CategoryUser).
				WithContext("path", configPath)
		}
	}

	cfg.expandPaths()

	if cfg.Routing.MappingFile != "" {
		tables, err := LoadMappingFile(cfg.Routing.MappingFile)
		if err != nil {
			return nil, err
		}
		if cfg.Routing.Profiles == nil {
			cfg.Routing.Profiles = make(map[string]map[string]string)
		}
		for name, table := range tables {
			cfg.Routing.Profiles[name] = table
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write TOML
	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvProfile)); v != "" {
		c.Routing.Profile = NormalizeProfile(v)
	}

	if v := strings.TrimSpace(getenv(EnvBackendURL)); v != "" {
		c.Backend.URL = v
	} else if v := strings.TrimSpace(getenv(EnvOllamaHost)); v != "" {
		c.Backend.URL = hostURL(v)
	}

	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = v
	}
}

// hostURL accepts OLLAMA_HOST forms such as "0.0.0.0:11434".
func hostURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// NormalizeProfile maps the mapping-file profile names onto the built-in ones.
func NormalizeProfile(name string) string {
	switch name {
	case legacySmallProfile:
		return model.ProfileLightweight
	case legacyRegularProfile:
		return model.ProfileComprehensive
	default:
		return name
	}
}

// Validate checks settings that would otherwise fail late.
// Profile tables are validated separately by Profiles, because one bad
// profile must not prevent the others from being used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.ConfigurationError("backend.url must be an http(s) URL").
			WithContext("url", c.Backend.URL)
	}
	if c.Backend.Timeout.Duration <= 0 {
		return errors.ConfigurationError("backend.timeout must be positive").
			WithContext("timeout", c.Backend.Timeout.String())
	}
	if c.Backend.PingTimeout.Duration <= 0 {
		return errors.ConfigurationError("backend.ping_timeout must be positive").
			WithContext("ping_timeout", c.Backend.PingTimeout.String())
	}
	if c.Context.MaxTurns <= 0 {
		return errors.ConfigurationError("context.max_turns must be positive").
			WithContext("max_turns", c.Context.MaxTurns)
	}
	if c.Context.SessionTTL.Duration < 0 {
		return errors.ConfigurationError("context.session_ttl must not be negative").
			WithContext("session_ttl", c.Context.SessionTTL.String())
	}
	if c.Context.Archive && c.Paths.ArchiveDB == "" {
		return errors.ConfigurationError("context.archive is on but paths.archive_db is empty")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.ConfigurationError("logging.level is not a known level").
			WithContext("level", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.ConfigurationError("logging.format must be text or json").
			WithContext("format", c.Logging.Format)
	}
	return nil
}

// Profiles returns the valid profiles. Invalid ones are left out and
// reported in the error.
func (c *Config) Profiles() (model.Profiles, error) {
	raw := make(map[string]map[string]string, len(c.Routing.Profiles))
	for name, table := range c.Routing.Profiles {
		raw[NormalizeProfile(name)] = table
	}
	return model.ParseProfiles(raw)
}

// BuildClassifier compiles the configured rules, or the defaults when none are set.
func (c *Config) BuildClassifier() (*classifier.Classifier, error) {
	if len(c.Classifier.Rules) == 0 {
		return classifier.NewClassifier(classifier.DefaultRules())
	}
	return classifier.NewClassifier(c.Classifier.Rules)
}

// InvokerConfig converts the backend section for model.NewInvoker.
func (c *Config) InvokerConfig() *model.InvokerConfig {
	ic := model.DefaultInvokerConfig()
	ic.Timeout = c.Backend.Timeout.Duration
	ic.PingTimeout = c.Backend.PingTimeout.Duration
	ic.AutoInstall = c.Backend.AutoInstall
	return ic
}

// LoadMappingFile reads a JSON mapping file of the form
// {"<profile>": {"<category>": "<model>", ...}, ...}.
// small_sized_models and regular_sized_models are renamed to
// lightweight and comprehensive.
func LoadMappingFile(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigNotFound, "failed to read mapping file", errors.CategoryUser).
			WithContext("path", path)
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "invalid mapping file: each profile must be an object of task to model pairs", errors.CategoryUser).
			WithContext("path", path)
	}

	out := make(map[string]map[string]string, len(raw))
	for name, table := range raw {
		out[NormalizeProfile(name)] = table
	}
	return out, nil
}

// expandPaths expands ~ in paths.
func (c *Config) expandPaths() {
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.ArchiveDB = expandHome(c.Paths.ArchiveDB)
	c.Routing.MappingFile = expandHome(c.Routing.MappingFile)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(homeDir, p[1:])
	}
	return p
}

// String renders the config as TOML.
func (c *Config) String() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return sb.String()
}
