package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

func TestClassify_SampleQueries(t *testing.T) {
	c := Default()

	tests := []struct {
		name     string
		query    string
		expected protocol.TaskCategory
	}{
		{"reverse a string", "Write a function to reverse a string", protocol.CategoryCoding},
		{"linear equation", "Solve 2x + 5 = 13", protocol.CategoryMath},
		{"fibonacci", "Write a Python function to calculate fibonacci numbers", protocol.CategoryCoding},
		{"short story", "Write a short story about a robot learning to paint", protocol.CategoryText},
		{"equation with colon", "Solve the equation: 3x + 7 = 22", protocol.CategoryMath},
		{"coats in winter", "Why do people wear coats in winter?", protocol.CategoryCommonsense},
		{"capital of japan", "What is the capital of Japan?", protocol.CategoryQuestion},
		{"joke", "Tell me a joke", protocol.CategoryDialogue},
		{"summarize", "Summarize the key points of machine learning", protocol.CategorySummary},
		{"sentiment", "Analyze the sentiment of this text: 'I love this new phone!'", protocol.CategorySentiment},
		{"sunset", "Describe what you would see in a sunset", protocol.CategoryVisualQA},
		{"movie scene", "What happens in a typical movie scene", protocol.CategoryVideoQA},
		{"derivative", "Find the derivative of x^2", protocol.CategoryMath},
		{"code beats math terms", "Write a function that computes a derivative", protocol.CategoryCoding},
		{"no rule", "Good evening, friend", protocol.CategoryDialogue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.query))
		})
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	c := Default()

	for _, q := range []string{"", "   ", "\n\t"} {
		m := c.Explain(q)
		assert.Equal(t, protocol.DefaultTaskCategory, m.Category)
		assert.Equal(t, FallbackRuleID, m.RuleID)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := Default()
	query := "Compute 12 * 7 and explain the algorithm"

	first := c.Explain(query)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Explain(query))
	}
	assert.Equal(t, "math_expression", first.RuleID)
}

func TestClassify_WholeWordKeywords(t *testing.T) {
	c := Default()

	// "decode" contains "code" but is not the keyword
	assert.NotEqual(t, protocol.CategoryCoding, c.Classify("Help me decode my dreams"))
	assert.Equal(t, protocol.CategoryCoding, c.Classify("is c++ faster than go?"))
}

func TestNewClassifier_RuleOrderIsPrecedence(t *testing.T) {
	rules := []Rule{
		{ID: "first", Category: protocol.CategorySummary, Keywords: []string{"report"}},
		{ID: "second", Category: protocol.CategoryText, Keywords: []string{"report"}},
	}
	c, err := NewClassifier(rules)
	require.NoError(t, err)

	m := c.Explain("Draft a report")
	assert.Equal(t, protocol.CategorySummary, m.Category)
	assert.Equal(t, "first", m.RuleID)

	reversed, err := NewClassifier([]Rule{rules[1], rules[0]})
	require.NoError(t, err)
	assert.Equal(t, protocol.CategoryText, reversed.Classify("Draft a report"))
}

func TestNewClassifier_KeywordAndPatternMustBothMatch(t *testing.T) {
	c, err := NewClassifier([]Rule{
		{ID: "both", Category: protocol.CategoryMath, Keywords: []string{"add"}, Pattern: `\d+`},
	})
	require.NoError(t, err)

	assert.Equal(t, protocol.CategoryMath, c.Classify("add 3 and 4"))
	assert.Equal(t, protocol.DefaultTaskCategory, c.Classify("add three and four"))
	assert.Equal(t, protocol.DefaultTaskCategory, c.Classify("3 and 4"))
}

func TestNewClassifier_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"unknown category", []Rule{{ID: "x", Category: "poetry_slam", Keywords: []string{"a"}}}},
		{"bad pattern", []Rule{{ID: "x", Category: protocol.CategoryMath, Pattern: `(`}}},
		{"missing id", []Rule{{Category: protocol.CategoryMath, Keywords: []string{"a"}}}},
		{"duplicate id", []Rule{
			{ID: "x", Category: protocol.CategoryMath, Keywords: []string{"a"}},
			{ID: "x", Category: protocol.CategoryText, Keywords: []string{"b"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.rules)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigurationError(err))
		})
	}
}

func TestRules_ReturnsCopy(t *testing.T) {
	c := Default()
	rules := c.Rules()
	require.Len(t, rules, len(DefaultRules()))

	rules[0].Keywords[0] = "mutated"
	assert.NotEqual(t, "mutated", c.Rules()[0].Keywords[0])
}

func TestDefaultRules_CoverEveryCategory(t *testing.T) {
	covered := map[protocol.TaskCategory]bool{}
	for _, r := range DefaultRules() {
		covered[r.Category] = true
	}
	for _, cat := range protocol.Categories() {
		assert.True(t, covered[cat], "no rule for %s", cat)
	}
}
