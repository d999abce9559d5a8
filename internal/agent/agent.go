// Package agent wires classification, routing, per-model context and
// backend invocation into one query handler.
package agent

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flynn-ai/joat/internal/classifier"
	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/logging"
	"github.com/flynn-ai/joat/internal/memory"
	"github.com/flynn-ai/joat/internal/model"
	"github.com/flynn-ai/joat/internal/stats"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// DefaultSessionID is used when a caller passes no session id.
const DefaultSessionID = "default"

// ProfileAuto asks SwitchProfile to re-run auto-detection.
const ProfileAuto = "auto"

// EmptyQueryMessage is returned for blank input.
const EmptyQueryMessage = "Please provide a query."

// Agent handles queries. It is safe for concurrent use.
type Agent struct {
	classifier *classifier.Classifier
	profiles   model.Profiles
	selection  atomic.Pointer[model.Selection]
	invoker    *model.Invoker
	sessions   *memory.Sessions
	archive    *memory.Store
	stats      *stats.Collector
	generation model.GenerateOptions
	log        logrus.FieldLogger
}

// Config configures the Agent.
type Config struct {
	Classifier *classifier.Classifier // nil uses classifier.Default()
	Profiles   model.Profiles
	Profile    string // explicit profile; empty auto-detects
	Invoker    *model.Invoker
	Sessions   *memory.Sessions // nil creates one with default bounds
	Archive    *memory.Store    // optional
	Generation model.GenerateOptions
	Logger     logrus.FieldLogger
}

// New creates an Agent and resolves the active profile once.
// Without an explicit profile, an unreachable backend selects lightweight.
func New(ctx context.Context, cfg *Config) (*Agent, error) {
	if cfg == nil || cfg.Invoker == nil {
		return nil, errors.ConfigurationError("agent requires an invoker")
	}
	if len(cfg.Profiles) == 0 {
		return nil, errors.ConfigurationError("agent requires at least one valid profile")
	}

	a := &Agent{
		classifier: cfg.Classifier,
		profiles:   cfg.Profiles,
		invoker:    cfg.Invoker,
		sessions:   cfg.Sessions,
		archive:    cfg.Archive,
		stats:      stats.NewCollector(),
		generation: cfg.Generation,
		log:        cfg.Logger,
	}
	if a.classifier == nil {
		a.classifier = classifier.Default()
	}
	if a.log == nil {
		a.log = logging.Log
	}

	if _, err := a.SwitchProfile(ctx, cfg.Profile); err != nil {
		return nil, err
	}

	if a.sessions == nil {
		a.sessions = memory.NewSessions(memory.DefaultMaxTurns, memory.DefaultSessionTTL)
	}
	return a, nil
}

// Close stops background work and closes the archive.
func (a *Agent) Close() error {
	a.sessions.Close()
	return a.archive.Close()
}

// HandleQuery classifies query, routes it under the active profile, sends
// it with the routed model's history, and records the exchange in that
// model's context. On failure the context is left untouched and a
// response with Failed set is returned alongside the error.
func (a *Agent) HandleQuery(ctx context.Context, query, sessionID string) (*protocol.QueryResponse, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	resp := &protocol.QueryResponse{
		SessionID: sessionID,
		Timestamp: start,
	}

	if strings.TrimSpace(query) == "" {
		err := errors.NewBuilder(errors.CodeInvalidInput, EmptyQueryMessage).
			User().
			WithContext("session", sessionID).
			Build()
		return a.fail(resp, start, err), err
	}

	match := a.classifier.Explain(query)
	resp.Category = match.Category
	resp.RuleID = match.RuleID

	// Load once so the whole query sees a single profile even if
	// SwitchProfile runs concurrently.
	sel := a.selection.Load()
	decision, err := model.Decide(match.Category, sel)
	resp.Profile = decision.Profile
	if err != nil {
		err = annotate(err, decision)
		a.stats.RecordError(decision.Category, "")
		return a.fail(resp, start, err), err
	}
	resp.Model = decision.Model

	log := a.log.WithFields(logrus.Fields{
		"session":  sessionID,
		"category": decision.Category,
		"rule":     match.RuleID,
		"model":    decision.Model,
		"profile":  decision.Profile,
	})
	log.WithField("query", logging.Truncate(query, 80)).Debug("routed query")

	store := a.sessions.Get(sessionID)
	history := store.History(decision.Model)

	result, err := a.invoker.Invoke(ctx, decision.Model, history, query, a.generation)
	if err != nil {
		err = annotate(err, decision)
		a.stats.RecordError(decision.Category, decision.Model)
		if errors.GetCategory(err) == errors.CategoryUser {
			log.WithError(err).Info("query rejected")
		} else {
			log.WithError(err).Warn("query failed")
		}
		return a.fail(resp, start, err), err
	}

	// The janitor may have dropped an idle session while the backend was
	// answering; Get re-registers it so the exchange is kept.
	store = a.sessions.Get(sessionID)
	turns := []protocol.Turn{
		{Role: protocol.RoleUser, Content: query, Timestamp: start},
		{Role: protocol.RoleAssistant, Content: result.Text, Timestamp: time.Now()},
	}
	store.Append(decision.Model, turns...)

	if a.archive != nil {
		if err := a.archive.Record(ctx, sessionID, decision.Model, turns...); err != nil {
			log.WithError(err).Warn("failed to archive turns")
		}
	}

	resp.Text = result.Text
	resp.Latency = time.Since(start)
	a.stats.RecordRequest(decision.Category, decision.Model, result.TokensUsed, resp.Latency)

	log.WithFields(logrus.Fields{
		"latency_ms": resp.Latency.Milliseconds(),
		"served_by":  result.Model,
	}).Info("query answered")

	return resp, nil
}

func (a *Agent) fail(resp *protocol.QueryResponse, start time.Time, err error) *protocol.QueryResponse {
	resp.Failed = true
	resp.Text = errors.FormatUserMessage(err)
	resp.Error = err.Error()
	resp.Suggestions = errors.GetSuggestions(err)
	resp.Latency = time.Since(start)
	return resp
}

// annotate attaches routing provenance to err.
func annotate(err error, d protocol.RoutingDecision) error {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.CodeBackendFailed, "query failed", errors.CategoryTemporary)
		err = appErr
	}
	appErr.WithContext("category", string(d.Category))
	if d.Model != "" {
		appErr.WithContext("model", d.Model)
	}
	if d.Profile != "" {
		appErr.WithContext("profile", d.Profile)
	}
	return err
}

// Selection returns the active profile.
func (a *Agent) Selection() *model.Selection {
	return a.selection.Load()
}

// Profiles returns the configured profiles.
func (a *Agent) Profiles() model.Profiles {
	return a.profiles
}

// Classifier returns the query classifier.
func (a *Agent) Classifier() *classifier.Classifier {
	return a.classifier
}

// SwitchProfile makes name the active profile. An empty name or "auto"
// re-runs auto-detection against the backend's installed models.
// Queries already in flight finish under the profile they started with.
func (a *Agent) SwitchProfile(ctx context.Context, name string) (*model.Selection, error) {
	var (
		sel *model.Selection
		err error
	)

	if name == "" || name == ProfileAuto {
		// An explicit re-detect should reach the backend even after failures.
		a.invoker.ResetBreaker()
		available := func(string) bool { return false }
		installed, lerr := a.invoker.InstalledModels(ctx)
		if lerr != nil {
			a.log.WithError(lerr).Warn("backend unreachable during profile detection, assuming nothing is installed")
		} else {
			available = model.Availability(installed)
		}
		sel, err = model.ResolveProfile(a.profiles, available, "")
	} else {
		sel, err = model.ResolveProfile(a.profiles, nil, name)
	}
	if err != nil {
		return nil, err
	}

	a.selection.Store(sel)
	a.log.WithFields(logrus.Fields{
		"profile": sel.Profile,
		"reason":  sel.Reason,
	}).Info("active profile selected")
	return sel, nil
}

// History returns a snapshot of one model's history in a session.
func (a *Agent) History(sessionID, modelID string) []protocol.Turn {
	store, ok := a.sessions.Lookup(sessionIDOrDefault(sessionID))
	if !ok {
		return []protocol.Turn{}
	}
	return store.History(modelID)
}

// Histories returns every non-empty model history in a session.
func (a *Agent) Histories(sessionID string) map[string][]protocol.Turn {
	out := make(map[string][]protocol.Turn)
	store, ok := a.sessions.Lookup(sessionIDOrDefault(sessionID))
	if !ok {
		return out
	}
	for _, id := range store.Models() {
		out[id] = store.History(id)
	}
	return out
}

// ClearHistory clears one model's history in a session, or every model's
// when modelID is empty. The archive is cleared to match.
func (a *Agent) ClearHistory(ctx context.Context, sessionID, modelID string) error {
	sessionID = sessionIDOrDefault(sessionID)
	if store, ok := a.sessions.Lookup(sessionID); ok {
		if modelID == "" {
			store.ClearAll()
		} else {
			store.Clear(modelID)
		}
	}

	if a.archive == nil {
		return nil
	}
	if modelID == "" {
		return a.archive.DeleteSession(ctx, sessionID)
	}
	return a.archive.ClearModel(ctx, sessionID, modelID)
}

// ResumeSession replaces a session's in-memory history with its archived
// turns and returns how many turns were restored. Each model keeps only
// its most recent turns up to the context bound.
func (a *Agent) ResumeSession(ctx context.Context, sessionID string) (int, error) {
	if a.archive == nil {
		return 0, errors.NewBuilder(errors.CodeArchiveUnavailable, "no conversation archive is configured").
			User().
			WithSuggestion("Set context.archive = true in your config").
			Build()
	}

	sessionID = sessionIDOrDefault(sessionID)
	archived, err := a.archive.Load(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	store := a.sessions.Get(sessionID)
	store.ClearAll()
	for modelID, turns := range archived {
		store.Append(modelID, turns...)
	}

	restored := 0
	for _, id := range store.Models() {
		restored += store.Len(id)
	}
	a.log.WithFields(logrus.Fields{"session": sessionID, "turns": restored}).Info("session resumed")
	return restored, nil
}

// Status describes the agent for status displays.
type Status struct {
	Profile  string               `json:"profile"`
	Reason   string               `json:"reason"`
	Mapping  model.Mapping        `json:"mapping"`
	Backend  *model.BackendStatus `json:"backend"`
	Sessions int                  `json:"sessions"`
	Stats    *stats.Stats         `json:"stats"`
}

// Status reports the active profile, backend reachability, which mapped
// models are installed, and query statistics.
func (a *Agent) Status(ctx context.Context) *Status {
	sel := a.selection.Load()
	return &Status{
		Profile:  sel.Profile,
		Reason:   sel.Reason,
		Mapping:  sel.Mapping,
		Backend:  a.invoker.Status(ctx, sel.Mapping.Models()),
		Sessions: a.sessions.Len(),
		Stats:    a.stats.Collect(),
	}
}

func sessionIDOrDefault(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}
