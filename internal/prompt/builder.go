// Package prompt assembles the linear transcript sent to the backend.
//
// The backend is stateless between calls, so the transcript is the only
// carrier of conversation continuity. Equal input must always render to
// byte-identical output.
package prompt

import (
	"strings"

	"github.com/flynn-ai/joat/pkg/protocol"
)

const (
	DefaultUserLabel      = "User"
	DefaultAssistantLabel = "Assistant"
)

// Builder renders histories into prompts.
type Builder struct {
	// System is an optional preamble placed before the first turn.
	System         string
	UserLabel      string
	AssistantLabel string
	Separator      string
}

// NewBuilder returns a builder with the default labels.
func NewBuilder() *Builder {
	return &Builder{
		UserLabel:      DefaultUserLabel,
		AssistantLabel: DefaultAssistantLabel,
		Separator:      "\n",
	}
}

// Transcript renders history followed by query as the newest user turn,
// and ends with an open assistant label for the model to complete:
//
//	User: hi
//	Assistant: hello
//	User: what is 2+2?
//	Assistant:
func (b *Builder) Transcript(history []protocol.Turn, query string) string {
	lines := make([]string, 0, len(history)+3)
	if s := strings.TrimSpace(b.System); s != "" {
		lines = append(lines, s)
	}

	for _, turn := range history {
		lines = append(lines, b.label(turn.Role)+": "+turn.Content)
	}
	lines = append(lines, nonEmpty(b.UserLabel, DefaultUserLabel)+": "+query)
	lines = append(lines, nonEmpty(b.AssistantLabel, DefaultAssistantLabel)+":")

	return strings.Join(lines, b.separator())
}

func (b *Builder) label(role protocol.Role) string {
	if role == protocol.RoleAssistant {
		return nonEmpty(b.AssistantLabel, DefaultAssistantLabel)
	}
	return nonEmpty(b.UserLabel, DefaultUserLabel)
}

func (b *Builder) separator() string {
	if b.Separator == "" {
		return "\n"
	}
	return b.Separator
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
