package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flynn-ai/joat/internal/errors"
)

// DefaultOllamaURL is where a local Ollama listens by default.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	BaseURL string // Default: http://localhost:11434

	// HTTPClient overrides the transport. Request deadlines come from
	// the context passed to each call, not from the client.
	HTTPClient *http.Client
}

// OllamaClient implements Backend over the Ollama HTTP API.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg *OllamaConfig) *OllamaClient {
	if cfg == nil {
		cfg = &OllamaConfig{}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &OllamaClient{
		baseURL: baseURL,
		client:  client,
	}
}

// Endpoint returns the base URL.
func (c *OllamaClient) Endpoint() string {
	return c.baseURL
}

// Ping checks that the Ollama server answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	var version struct {
		Version string `json:"version"`
	}
	return c.do(ctx, http.MethodGet, "/api/version", nil, &version)
}

// ListModels returns installed model names, e.g. "llama3:latest".
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	var tags ollamaTagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate sends a single non-streaming completion request.
func (c *OllamaClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || req.Model == "" {
		return nil, errors.User(errors.CodeInvalidInput, "generate request requires a model")
	}

	opts := req.Options.WithDefaults()
	body := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: opts,
	}

	var resp ollamaGenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/generate", body, &resp); err != nil {
		if errors.GetCode(err) == errors.CodeBackendFailed && isModelNotFound(err) {
			return nil, errors.ModelUnavailable(req.Model, err)
		}
		return nil, err
	}

	if resp.Error != "" {
		return nil, errors.NewBuilder(errors.CodeBackendFailed, "backend reported an error").
			Temporary().
			WithContext("model", req.Model).
			WithContext("backend_error", resp.Error).
			Build()
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return &GenerateResponse{
		Text:       resp.Response,
		Model:      model,
		TokensUsed: resp.PromptEvalCount + resp.EvalCount,
		Duration:   time.Duration(resp.TotalDuration),
	}, nil
}

// Pull downloads a model and blocks until the backend reports completion.
func (c *OllamaClient) Pull(ctx context.Context, model string) error {
	var resp ollamaPullResponse
	body := ollamaPullRequest{Model: model, Stream: false}
	if err := c.do(ctx, http.MethodPost, "/api/pull", body, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.NewBuilder(errors.CodeBackendFailed, "model pull failed").
			Temporary().
			WithContext("model", model).
			WithContext("backend_error", resp.Error).
			Build()
	}
	if resp.Status != "" && resp.Status != "success" {
		return errors.NewBuilder(errors.CodeBackendFailed, "model pull did not complete").
			Temporary().
			WithContext("model", model).
			WithContext("status", resp.Status).
			Build()
	}
	return nil
}

// do performs one JSON round trip. Transport failures become
// BACKEND_UNAVAILABLE unless the context ended first, in which case the
// context error is returned wrapped so callers can map it to a timeout.
func (c *OllamaClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, errors.CodeValidationFailed, "failed to marshal request", errors.CategoryPermanent)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.CodeConfigInvalid, "failed to create HTTP request", errors.CategoryUser)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	r, err := c.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return errors.BackendUnavailable(c.baseURL, err)
	}
	defer r.Body.Close()

	b, err := io.ReadAll(r.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return errors.Wrap(err, errors.CodeBackendFailed, "failed to read response body", errors.CategoryTemporary)
	}

	if r.StatusCode != http.StatusOK {
		return errors.NewBuilder(errors.CodeBackendFailed, fmt.Sprintf("backend error (status %d)", r.StatusCode)).
			Temporary().
			WithContext("path", path).
			WithContext("status", r.StatusCode).
			WithContext("response", apiErrorMessage(b)).
			Build()
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.NewBuilder(errors.CodeModelParseError, "failed to parse backend response").
			Permanent().
			Wrap(err).
			WithContext("path", path).
			WithContext("response_body", string(b)).
			Build()
	}
	return nil
}

func apiErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func isModelNotFound(err error) bool {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	if status, _ := appErr.Context["status"].(int); status == http.StatusNotFound {
		return true
	}
	msg, _ := appErr.Context["response"].(string)
	return strings.Contains(msg, "not found")
}

// ============================================================
// Ollama API Types
// ============================================================

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Model      string `json:"model"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
