package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/model"
	"github.com/flynn-ai/joat/pkg/protocol"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvProfile, EnvBackendURL, EnvOllamaHost, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	profiles, err := cfg.Profiles()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultProfiles(), profiles)

	assert.Equal(t, model.DefaultGenerateOptions(), cfg.Generation)
	assert.Equal(t, 120*time.Second, cfg.Backend.Timeout.Duration)
	assert.Equal(t, 20, cfg.Context.MaxTurns)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultOllamaURL, cfg.Backend.URL)
	assert.Empty(t, cfg.Routing.Profile)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[backend]
url = "http://gpu-box:11434"
timeout = "45s"
auto_install = false

[routing]
profile = "lightweight"

[generation]
max_tokens = 256
temperature = 0.0

[context]
max_turns = 6
session_ttl = "30m"

[logging]
level = "debug"
format = "json"

[[classifier.rules]]
id = "only_code"
category = "coding_generation"
keywords = ["code"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Backend.URL)
	assert.Equal(t, 45*time.Second, cfg.Backend.Timeout.Duration)
	assert.Equal(t, model.DefaultPingTimeout, cfg.Backend.PingTimeout.Duration)
	assert.False(t, cfg.Backend.AutoInstall)
	assert.Equal(t, model.ProfileLightweight, cfg.Routing.Profile)
	assert.Equal(t, 256, cfg.Generation.MaxTokens)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.Equal(t, 0.0, *cfg.Generation.Temperature)
	assert.Equal(t, 0.9, cfg.Generation.TopP)
	assert.Equal(t, 6, cfg.Context.MaxTurns)
	assert.Equal(t, 30*time.Minute, cfg.Context.SessionTTL.Duration)
	assert.Equal(t, "json", cfg.Logging.Format)

	c, err := cfg.BuildClassifier()
	require.NoError(t, err)
	assert.Equal(t, protocol.CategoryCoding, c.Classify("write code"))
	assert.Equal(t, protocol.DefaultTaskCategory, c.Classify("solve 2 + 2"))

	ic := cfg.InvokerConfig()
	assert.Equal(t, 45*time.Second, ic.Timeout)
	assert.False(t, ic.AutoInstall)
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[backend\nurl ="},
		{"bad duration", "[backend]\ntimeout = \"soon\""},
		{"bad url", "[backend]\nurl = \"localhost\""},
		{"zero turns", "[context]\nmax_turns = 0"},
		{"bad level", "[logging]\nlevel = \"loud\""},
		{"bad format", "[logging]\nformat = \"xml\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.toml", tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestProfilesDropsIncompleteTable(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[routing.profiles.comprehensive]
coding_generation = "codellama"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	profiles, err := cfg.Profiles()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Contains(t, profiles, model.ProfileLightweight)
	assert.NotContains(t, profiles, model.ProfileComprehensive)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvProfile:    "regular_sized_models",
		EnvOllamaHost: "0.0.0.0:11434",
		EnvLogLevel:   "warn",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, model.ProfileComprehensive, cfg.Routing.Profile)
	assert.Equal(t, "http://0.0.0.0:11434", cfg.Backend.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)

	env[EnvBackendURL] = "https://ollama.internal"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "https://ollama.internal", cfg.Backend.URL)
}

func TestLoadAppliesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProfile, "small_sized_models")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, model.ProfileLightweight, cfg.Routing.Profile)
}

func TestLoadMappingFile(t *testing.T) {
	clearEnv(t)
	raw := mappingJSON(t)
	mappingPath := writeFile(t, "models_mapping.json", raw)

	tables, err := LoadMappingFile(mappingPath)
	require.NoError(t, err)
	assert.Contains(t, tables, model.ProfileLightweight)
	assert.Contains(t, tables, model.ProfileComprehensive)
	assert.Equal(t, "tinyllama", tables[model.ProfileLightweight]["dialogue_systems"])

	cfgPath := writeFile(t, "config.toml", "[routing]\nmapping_file = \""+filepath.ToSlash(mappingPath)+"\"\n")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	profiles, err := cfg.Profiles()
	require.NoError(t, err)
	assert.Equal(t, "tinyllama", profiles[model.ProfileLightweight][protocol.CategoryDialogue])
}

func TestLoadMappingFileErrors(t *testing.T) {
	_, err := LoadMappingFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigNotFound, errors.GetCode(err))

	_, err = LoadMappingFile(writeFile(t, "bad.json", `{"small_sized_models": ["not", "an", "object"]}`))
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Backend.URL = "http://10.0.0.2:11434"
	cfg.Context.SessionTTL = Duration{15 * time.Minute}
	cfg.Generation.Temperature = model.Float64(0.2)

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Backend, loaded.Backend)
	assert.Equal(t, cfg.Context, loaded.Context)
	assert.Equal(t, cfg.Generation, loaded.Generation)
	assert.Equal(t, cfg.Routing.Profiles, loaded.Routing.Profiles)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".joat", "a.db"), expandHome("~/.joat/a.db"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "", expandHome(""))
}

// mappingJSON renders the built-in profiles in the JSON mapping
// format, with one lightweight entry changed.
func mappingJSON(t *testing.T) string {
	t.Helper()
	return `{
  "small_sized_models": {
    "coding_generation": "qwen2.5-coder:1.5b",
    "text_generation": "llama3.2:3b",
    "mathematical_reasoning": "qwen2-math:1.5b",
    "commonsense_reasoning": "phi3:mini",
    "question_answering": "llama3.2:3b",
    "dialogue_systems": "tinyllama",
    "summarization": "llama3.2:3b",
    "sentiment_analysis": "phi3:mini",
    "visual_question_answering": "moondream",
    "video_question_answering": "llama3.2:3b"
  },
  "regular_sized_models": {
    "coding_generation": "codellama",
    "text_generation": "llama3",
    "mathematical_reasoning": "wizard-math",
    "commonsense_reasoning": "phi3",
    "question_answering": "mistral",
    "dialogue_systems": "llama3",
    "summarization": "mixtral",
    "sentiment_analysis": "phi3",
    "visual_question_answering": "llava",
    "video_question_answering": "llama3"
  }
}`
}
