package model

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/logging"
	"github.com/flynn-ai/joat/internal/prompt"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// Timeouts for backend calls.
const (
	DefaultInvokeTimeout = 120 * time.Second
	DefaultPingTimeout   = 5 * time.Second
)

// InvokerConfig configures the invocation client.
type InvokerConfig struct {
	// Timeout bounds one whole Invoke call, including any model install.
	Timeout time.Duration

	// PingTimeout bounds the reachability check.
	PingTimeout time.Duration

	// AutoInstall pulls a missing model on demand.
	AutoInstall bool

	// Breaker configures the circuit breaker around Ping. Nil uses defaults.
	Breaker *errors.CircuitBreakerConfig

	Prompt *prompt.Builder
	Logger logrus.FieldLogger
}

// DefaultInvokerConfig returns default configuration for the invoker.
func DefaultInvokerConfig() *InvokerConfig {
	return &InvokerConfig{
		Timeout:     DefaultInvokeTimeout,
		PingTimeout: DefaultPingTimeout,
		AutoInstall: true,
		Breaker:     errors.DefaultCircuitBreakerConfig(),
	}
}

// Invoker sends one query plus a model's history to the backend.
// It holds no conversation state; callers own the context.
type Invoker struct {
	backend Backend
	cfg     InvokerConfig
	breaker *errors.CircuitBreaker
	pulls   singleflight.Group
	prompt  *prompt.Builder
	log     logrus.FieldLogger
}

// NewInvoker creates a new invoker over backend.
func NewInvoker(backend Backend, cfg *InvokerConfig) *Invoker {
	if cfg == nil {
		cfg = DefaultInvokerConfig()
	}
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = DefaultInvokeTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}

	pb := c.Prompt
	if pb == nil {
		pb = prompt.NewBuilder()
	}
	log := c.Logger
	if log == nil {
		log = logging.Log
	}

	return &Invoker{
		backend: backend,
		cfg:     c,
		breaker: errors.NewCircuitBreaker("backend", c.Breaker),
		prompt:  pb,
		log:     log,
	}
}

// Backend returns the underlying backend.
func (iv *Invoker) Backend() Backend {
	return iv.backend
}

// Invoke generates a reply from modelID given its history and the new query.
// It makes a single attempt; retrying is left to the caller.
func (iv *Invoker) Invoke(ctx context.Context, modelID string, history []protocol.Turn, query string, opts GenerateOptions) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, iv.cfg.Timeout)
	defer cancel()

	start := time.Now()
	log := iv.log.WithField("model", modelID)

	if err := iv.ping(ctx); err != nil {
		return nil, iv.mapErr(ctx, modelID, err)
	}

	if err := iv.ensureModel(ctx, modelID); err != nil {
		return nil, iv.mapErr(ctx, modelID, err)
	}

	req := &GenerateRequest{
		Model:   modelID,
		Prompt:  iv.prompt.Transcript(history, query),
		Options: opts.WithDefaults(),
	}
	log.WithFields(logrus.Fields{
		"history_turns": len(history),
		"prompt_chars":  len(req.Prompt),
	}).Debug("invoking backend")

	resp, err := iv.backend.Generate(ctx, req)
	if err != nil {
		return nil, iv.mapErr(ctx, modelID, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, errors.NewBuilder(errors.CodeModelInvalidResponse, "model returned an empty response").
			Temporary().
			WithContext("model", modelID).
			Build()
	}

	served := resp.Model
	if served == "" {
		served = modelID
	}

	result := &Result{
		Text:       text,
		Model:      served,
		Latency:    time.Since(start),
		TokensUsed: resp.TokensUsed,
	}
	log.WithFields(logrus.Fields{
		"latency_ms": result.Latency.Milliseconds(),
		"tokens":     result.TokensUsed,
	}).Debug("backend answered")

	return result, nil
}

// InstalledModels lists installed models after checking reachability.
func (iv *Invoker) InstalledModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, iv.cfg.Timeout)
	defer cancel()

	if err := iv.ping(ctx); err != nil {
		return nil, iv.mapErr(ctx, "", err)
	}
	installed, err := iv.backend.ListModels(ctx)
	if err != nil {
		return nil, iv.mapErr(ctx, "", err)
	}
	return installed, nil
}

// Status reports reachability and which of models are installed.
// An unreachable backend is reported in the status, not as an error.
func (iv *Invoker) Status(ctx context.Context, models []string) *BackendStatus {
	status := &BackendStatus{Endpoint: iv.backend.Endpoint()}

	installed, err := iv.InstalledModels(ctx)
	if err != nil {
		status.Error = errors.FormatUserMessage(err)
	} else {
		status.Reachable = true
		status.Installed = installed
	}

	available := Installed(installed)
	for _, id := range models {
		status.Models = append(status.Models, &ModelStatus{
			Name:      id,
			Available: status.Reachable && available(id),
		})
	}
	status.Circuit = iv.breaker.State().String()
	return status
}

// ping checks reachability through the circuit breaker, so a backend that
// keeps failing is rejected without waiting for PingTimeout each time.
func (iv *Invoker) ping(ctx context.Context) error {
	err := iv.breaker.Execute(func() error {
		pctx, cancel := context.WithTimeout(ctx, iv.cfg.PingTimeout)
		defer cancel()
		return iv.backend.Ping(pctx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.IsBackendUnavailable(err) {
		return err
	}
	unavailable := errors.BackendUnavailable(iv.backend.Endpoint(), err)
	if errors.Is(err, errors.ErrCircuitOpen) {
		unavailable.RetryAfter = iv.breaker.RetryAfter()
	}
	return unavailable
}

// ResetBreaker forgets earlier ping failures so the next call reaches
// the backend even if the breaker was open.
func (iv *Invoker) ResetBreaker() {
	iv.breaker.Reset()
}

func (iv *Invoker) ensureModel(ctx context.Context, modelID string) error {
	installed, err := iv.backend.ListModels(ctx)
	if err != nil {
		return err
	}
	if Installed(installed)(modelID) {
		return nil
	}

	if !iv.cfg.AutoInstall {
		return errors.ModelUnavailable(modelID, nil).
			WithContext("auto_install", false)
	}

	iv.log.WithField("model", modelID).Info("model not installed, pulling")
	_, err, shared := iv.pulls.Do(modelID, func() (any, error) {
		return nil, iv.backend.Pull(ctx, modelID)
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errors.ModelUnavailable(modelID, err)
	}
	iv.log.WithFields(logrus.Fields{"model": modelID, "shared": shared}).Info("model pulled")

	installed, err = iv.backend.ListModels(ctx)
	if err != nil {
		return err
	}
	if !Installed(installed)(modelID) {
		return errors.ModelUnavailable(modelID, nil).
			WithContext("installed", installed)
	}
	return nil
}

// mapErr turns an expired deadline into BACKEND_TIMEOUT and leaves every
// other error as the backend reported it.
func (iv *Invoker) mapErr(ctx context.Context, modelID string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.BackendTimeout(modelID, iv.cfg.Timeout, err)
	}
	if ctx.Err() == context.Canceled {
		return errors.Wrap(err, errors.CodeBackendFailed, "request canceled", errors.CategoryPermanent)
	}
	return err
}
