// Package model provides types for routing and inference.
package model

import "time"

// Built-in profile names.
const (
	ProfileLightweight   = "lightweight"
	ProfileComprehensive = "comprehensive"
)

// GenerateOptions tune one generation call. They never affect routing.
type GenerateOptions struct {
	MaxTokens     int      `toml:"max_tokens" json:"num_predict"`
	Temperature   *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP          float64  `toml:"top_p" json:"top_p"`
	RepeatPenalty float64  `toml:"repeat_penalty" json:"repeat_penalty"`
}

// DefaultGenerateOptions returns the stock generation settings.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxTokens:     1000,
		Temperature:   Float64(0.7),
		TopP:          0.9,
		RepeatPenalty: 1.1,
	}
}

// Float64 returns a pointer to v, for setting Temperature.
func Float64(v float64) *float64 { return &v }

// WithDefaults fills each unset field from DefaultGenerateOptions.
// MaxTokens, TopP and RepeatPenalty are unset when <= 0. Temperature is
// unset when nil, so an explicit 0 keeps greedy decoding.
func (o GenerateOptions) WithDefaults() GenerateOptions {
	def := DefaultGenerateOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Temperature == nil {
		o.Temperature = def.Temperature
	}
	if o.TopP <= 0 {
		o.TopP = def.TopP
	}
	if o.RepeatPenalty <= 0 {
		o.RepeatPenalty = def.RepeatPenalty
	}
	return o
}

// GenerateRequest is one call to Backend.Generate.
type GenerateRequest struct {
	Model   string
	Prompt  string
	Options GenerateOptions
}

// GenerateResponse is what the backend returned.
type GenerateResponse struct {
	Text       string
	Model      string
	TokensUsed int
	Duration   time.Duration
}

// Result is the normalized outcome of Invoker.Invoke.
type Result struct {
	Text       string        `json:"text"`
	Model      string        `json:"model"` // model that actually served the request
	Latency    time.Duration `json:"latency"`
	TokensUsed int           `json:"tokens_used"`
}

// Selection is the active profile and its mapping.
// It is passed explicitly to routing rather than held globally.
type Selection struct {
	Profile string
	Mapping Mapping
	Reason  string // For transparency
}

// ModelStatus represents the status of a model.
type ModelStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// BackendStatus summarizes the backend for status displays.
type BackendStatus struct {
	Endpoint  string         `json:"endpoint"`
	Reachable bool           `json:"reachable"`
	Installed []string       `json:"installed"`
	Models    []*ModelStatus `json:"models"`
	Error     string         `json:"error,omitempty"`
	Circuit   string         `json:"circuit"`
}
