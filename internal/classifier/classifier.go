// Package classifier maps free-text queries to a task category.
//
// Classification is an ordered walk over rules: the first rule that
// matches decides the category. When nothing matches, including for
// empty input, the query falls back to general dialogue.
package classifier

import (
	"regexp"
	"strings"

	apperrors "github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// FallbackRuleID is reported by Explain when no rule matched.
const FallbackRuleID = "fallback"

// Match is the outcome of classifying one query.
type Match struct {
	Category protocol.TaskCategory `json:"category"`
	RuleID   string                `json:"rule_id"`
}

// Classifier classifies queries with an ordered rule list.
// It is safe for concurrent use; rules are immutable after construction.
type Classifier struct {
	rules    []*Rule
	fallback protocol.TaskCategory
}

// NewClassifier compiles rules in the given order.
// An unknown category or an invalid pattern is a configuration error.
func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]*Rule, 0, len(rules))
	seen := make(map[string]bool, len(rules))

	for i := range rules {
		r := rules[i]
		if r.ID == "" {
			return nil, apperrors.ConfigurationError("classifier rule has no id").
				WithContext("index", i)
		}
		if seen[r.ID] {
			return nil, apperrors.ConfigurationError("duplicate classifier rule id").
				WithContext("rule", r.ID)
		}
		seen[r.ID] = true

		if err := r.compile(); err != nil {
			return nil, err
		}
		compiled = append(compiled, &r)
	}

	return &Classifier{
		rules:    compiled,
		fallback: protocol.DefaultTaskCategory,
	}, nil
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the category for query. It never fails.
func (c *Classifier) Classify(query string) protocol.TaskCategory {
	return c.Explain(query).Category
}

// Explain classifies query and reports which rule decided it.
func (c *Classifier) Explain(query string) Match {
	msg := strings.ToLower(strings.TrimSpace(query))
	if msg == "" {
		return Match{Category: c.fallback, RuleID: FallbackRuleID}
	}

	for _, rule := range c.rules {
		if rule.Matches(msg) {
			return Match{Category: rule.Category, RuleID: rule.ID}
		}
	}

	return Match{Category: c.fallback, RuleID: FallbackRuleID}
}

// Rules returns a copy of the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, Rule{
			ID:       r.ID,
			Category: r.Category,
			Keywords: append([]string(nil), r.Keywords...),
			Pattern:  r.Pattern,
		})
	}
	return out
}

// keywordRegexp builds one case-insensitive alternation that only matches
// whole words or phrases. RE2's \b is ASCII-only and fails next to
// symbols like "c++", so explicit non-word boundaries are used instead.
func keywordRegexp(keywords []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?:^|\W)(?:` + strings.Join(quoted, "|") + `)(?:\W|$)`)
}
