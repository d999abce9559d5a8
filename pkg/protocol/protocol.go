// Package protocol provides shared data structures used across joat components.
// These types can be imported by front-ends (CLI, HTTP, GUI) that consume the core.
package protocol

import (
	"fmt"
	"time"
)

// TaskCategory is the kind of request a query represents.
// The set is closed: adding a category means updating both the
// classifier rules and every profile mapping.
type TaskCategory string

const (
	CategoryCoding       TaskCategory = "coding_generation"
	CategoryText         TaskCategory = "text_generation"
	CategoryMath         TaskCategory = "mathematical_reasoning"
	CategoryCommonsense  TaskCategory = "commonsense_reasoning"
	CategoryQuestion     TaskCategory = "question_answering"
	CategoryDialogue     TaskCategory = "dialogue_systems"
	CategorySummary      TaskCategory = "summarization"
	CategorySentiment    TaskCategory = "sentiment_analysis"
	CategoryVisualQA     TaskCategory = "visual_question_answering"
	CategoryVideoQA      TaskCategory = "video_question_answering"
	DefaultTaskCategory               = CategoryDialogue
)

var categories = []TaskCategory{
	CategoryCoding,
	CategoryText,
	CategoryMath,
	CategoryCommonsense,
	CategoryQuestion,
	CategoryDialogue,
	CategorySummary,
	CategorySentiment,
	CategoryVisualQA,
	CategoryVideoQA,
}

// Categories returns every supported category in declaration order.
func Categories() []TaskCategory {
	out := make([]TaskCategory, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the supported categories.
func (c TaskCategory) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c TaskCategory) String() string {
	return string(c)
}

// ParseCategory converts a name into a TaskCategory, rejecting unknown names.
func ParseCategory(name string) (TaskCategory, error) {
	c := TaskCategory(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown task category %q", name)
	}
	return c, nil
}

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a model's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutingDecision records how a query was routed.
type RoutingDecision struct {
	Category TaskCategory `json:"category"`
	Model    string       `json:"model"`
	Profile  string       `json:"profile"`
}

// QueryResponse is returned to front-ends for every handled query.
// A failed query still carries a visible message in Text.
type QueryResponse struct {
	Text      string        `json:"response"`
	Category  TaskCategory  `json:"task_category"`
	RuleID    string        `json:"rule_id,omitempty"` // classifier rule that decided Category
	Model     string        `json:"model_used"`
	Profile   string        `json:"profile"`
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
	Failed    bool          `json:"failed"`
	Error     string        `json:"error,omitempty"`

	// Suggestions are recovery hints for a failed query.
	Suggestions []string `json:"suggestions,omitempty"`
}
