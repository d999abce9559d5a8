package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/flynn-ai/joat/internal/agent"
	"github.com/flynn-ai/joat/internal/config"
	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/logging"
	"github.com/flynn-ai/joat/internal/memory"
	"github.com/flynn-ai/joat/internal/model"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// newAgent builds the agent described by c. An archive that cannot be
// opened is logged and skipped; an invalid profile table is logged and
// left out, and only a config without any usable profile is fatal.
func newAgent(ctx context.Context, c *config.Config, log logrus.FieldLogger) (*agent.Agent, error) {
	profiles, err := c.Profiles()
	if err != nil {
		log.WithError(err).Warn("ignoring invalid profiles")
	}
	if len(profiles) == 0 {
		return nil, errors.ConfigurationError("no valid profile is configured")
	}

	cls, err := c.BuildClassifier()
	if err != nil {
		return nil, err
	}

	icfg := c.InvokerConfig()
	icfg.Logger = log
	backend := model.NewOllamaClient(&model.OllamaConfig{BaseURL: c.Backend.URL})

	var archive *memory.Store
	if c.Context.Archive {
		archive, err = memory.Open(c.Paths.ArchiveDB)
		if err != nil {
			log.WithError(err).Warn("conversation archive disabled")
			archive = nil
		}
	}

	sessions := memory.NewSessions(c.Context.MaxTurns, c.Context.SessionTTL.Duration)
	a, err := agent.New(ctx, &agent.Config{
		Classifier: cls,
		Profiles:   profiles,
		Profile:    c.Routing.Profile,
		Invoker:    model.NewInvoker(backend, icfg),
		Sessions:   sessions,
		Archive:    archive,
		Generation: c.Generation,
		Logger:     log,
	})
	if err != nil {
		sessions.Close()
		_ = archive.Close()
		return nil, err
	}
	return a, nil
}

// ask runs one query, retrying only failures that may clear up on their own.
// The response of the last attempt is returned even when it failed.
func ask(ctx context.Context, a *agent.Agent, query, sessionID string, retries int) (*protocol.QueryResponse, error) {
	policy := errors.NoRetry()
	if retries > 0 {
		policy = errors.DefaultPolicy()
		policy.MaxAttempts = retries + 1
		policy.RetryIf = func(err error) bool {
			return errors.IsBackendUnavailable(err) || errors.IsBackendTimeout(err)
		}
	}

	attempt := 0
	return errors.DoWithResult(ctx, policy, func() (*protocol.QueryResponse, error) {
		attempt++
		resp, err := a.HandleQuery(ctx, query, sessionID)
		if err != nil {
			logging.Log.WithError(err).WithField("attempt", attempt).Debug("query attempt failed")
		}
		return resp, err
	})
}

func formatError(err error) string {
	return fmt.Sprintf("Error: %s", errors.FormatUserMessage(err))
}
