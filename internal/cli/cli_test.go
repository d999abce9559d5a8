package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/joat/internal/agent"
	"github.com/flynn-ai/joat/internal/config"
	"github.com/flynn-ai/joat/internal/logging"
	"github.com/flynn-ai/joat/internal/model"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// fakeOllama serves the subset of the Ollama API the client uses, with
// every lightweight model installed.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()

	installed := model.DefaultProfiles()[model.ProfileLightweight].Models()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"0.5.0"}`))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Models []map[string]string `json:"models"`
		}
		for _, name := range installed {
			body.Models = append(body.Models, map[string]string{"name": name})
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":    req.Model,
			"response": fmt.Sprintf("reply %d from %s", strings.Count(req.Prompt, "User:"), req.Model),
			"done":     true,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) *config.Config {
	c := config.Default()
	c.Backend.URL = url
	c.Context.Archive = false
	c.Context.SessionTTL = config.Duration{}
	return c
}

func newTestAgent(t *testing.T, c *config.Config) *agent.Agent {
	t.Helper()
	a, err := newAgent(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestReplSession(t *testing.T) {
	srv := fakeOllama(t)
	a := newTestAgent(t, testConfig(srv.URL))
	assert.Equal(t, model.ProfileLightweight, a.Selection().Profile)

	input := strings.Join([]string{
		"hello",
		"hello again",
		"Write a Python function to reverse a string",
		"history",
		"status",
		"profile huge",
		"clear",
		"history",
		"quit",
		"never read",
	}, "\n")
	var out bytes.Buffer

	r := &repl{agent: a, session: "t1", in: strings.NewReader(input), out: &out}
	require.NoError(t, r.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Assistant: reply 1 from llama3.2:1b")
	assert.Contains(t, text, "Assistant: reply 2 from llama3.2:1b", "second dialogue query must carry history")
	assert.Contains(t, text, "Assistant: reply 1 from qwen2.5-coder:1.5b", "coding model starts with empty history")
	assert.Contains(t, text, "== llama3.2:1b ==")
	assert.Contains(t, text, "== qwen2.5-coder:1.5b ==")
	assert.Contains(t, text, "Profile:  lightweight")
	assert.Contains(t, text, `unknown profile "huge"`)
	assert.Contains(t, text, "Conversation history cleared.")
	assert.Contains(t, text, "No conversation history.")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "Goodbye!"))
	assert.NotContains(t, text, "never read")
}

func TestReplBackendDown(t *testing.T) {
	srv := fakeOllama(t)
	c := testConfig(srv.URL)
	a := newTestAgent(t, c)
	srv.Close()

	var out bytes.Buffer
	r := &repl{agent: a, session: "t2", in: strings.NewReader("hello\n"), out: &out}
	require.NoError(t, r.run(context.Background()))

	assert.Contains(t, out.String(), "inference backend is not reachable")
	assert.Empty(t, a.Histories("t2"))
}

func TestAskRetriesOnlyTransientErrors(t *testing.T) {
	srv := fakeOllama(t)
	a := newTestAgent(t, testConfig(srv.URL))

	resp, err := ask(context.Background(), a, "   ", "s", 3)
	require.Error(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, agent.EmptyQueryMessage, resp.Text)

	resp, err = ask(context.Background(), a, "Solve 2x + 5 = 13", "s", 2)
	require.NoError(t, err)
	assert.Equal(t, protocol.CategoryMath, resp.Category)
}

func TestAskKeepsFailedResponseAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	a := newTestAgent(t, testConfig(url))

	resp, err := ask(context.Background(), a, "hello there", "s", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	require.NotNil(t, resp)
	assert.True(t, resp.Failed)
	assert.NotEmpty(t, resp.Suggestions)
	assert.Empty(t, a.History("s", resp.Model))
}

func TestPrintProfiles(t *testing.T) {
	c := config.Default()
	delete(c.Routing.Profiles[model.ProfileComprehensive], string(protocol.CategorySummary))

	var out bytes.Buffer
	printProfiles(&out, c)
	text := out.String()

	assert.Contains(t, text, "[comprehensive] INVALID")
	assert.Contains(t, text, "[lightweight] ok")
	assert.Contains(t, text, "(missing)")
	assert.Contains(t, text, "Profile is auto-detected")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "a b", preview("a\nb", 10))
	assert.Equal(t, "héllo...", preview("héllo world", 5))
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = testConfig("http://127.0.0.1:9999")

	var out bytes.Buffer
	configCmd.SetOut(&out)
	t.Cleanup(func() { configCmd.SetOut(nil) })

	require.NoError(t, configCmd.RunE(configCmd, nil))
	assert.Contains(t, out.String(), `url = "http://127.0.0.1:9999"`)
	assert.Contains(t, out.String(), "[routing.profiles.lightweight]")
}
