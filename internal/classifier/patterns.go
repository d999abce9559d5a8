package classifier

import (
	"regexp"

	apperrors "github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// Rule tags a category with the conditions that select it.
// A rule matches when any keyword occurs as a whole word or phrase
// (if Keywords is set) and Pattern matches (if Pattern is set).
// Both are applied to the lower-cased, trimmed query.
type Rule struct {
	ID       string                `toml:"id"`
	Category protocol.TaskCategory `toml:"category"`
	Keywords []string              `toml:"keywords"`
	Pattern  string                `toml:"pattern"`

	keywords *regexp.Regexp
	pattern  *regexp.Regexp
}

func (r *Rule) compile() error {
	if !r.Category.Valid() {
		return apperrors.ConfigurationError("classifier rule names an unknown category").
			WithContext("rule", r.ID).
			WithContext("category", string(r.Category))
	}

	kw, err := keywordRegexp(r.Keywords)
	if err != nil {
		return apperrors.ConfigurationError("classifier rule has an invalid keyword").
			WithContext("rule", r.ID)
	}
	r.keywords = kw

	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			appErr := apperrors.ConfigurationError("classifier rule has an invalid pattern").
				WithContext("rule", r.ID).
				WithContext("pattern", r.Pattern)
			appErr.Inner = err
			return appErr
		}
		r.pattern = re
	}
	return nil
}

// Matches checks the rule against an already lower-cased message.
func (r *Rule) Matches(msg string) bool {
	if r.keywords != nil && !r.keywords.MatchString(msg) {
		return false
	}
	if r.pattern != nil && !r.pattern.MatchString(msg) {
		return false
	}
	return true
}

// DefaultRules returns the built-in rules in evaluation order.
//
// Order is the only tie-break, so it encodes precedence:
//  1. math_expression   - a math verb plus an arithmetic expression ("solve 2x + 5 = 13")
//  2. code              - programming vocabulary; beats the math terms so that
//     "write a function to compute the derivative" goes to the coding model
//  3. math_terms        - mathematical vocabulary without an expression
//  4. summarization     - explicit summary requests
//  5. sentiment         - tone and emotion analysis
//  6. video             - checked before visual: "describe this video frame" is video
//  7. visual            - images and things to look at
//  8. creative_writing  - named written forms (story, poem, essay)
//  9. commonsense_why   - questions opening with why / how come
//  10. commonsense_terms - explicit reasoning vocabulary
//  11. factual_question  - questions opening with what / who / where / when / which
//  12. factual_terms     - definitions and lookups
//  13. chit_chat         - conversational openers, jokes, advice
//  14. free_writing      - bare write / compose / draft verbs
//
// Anything else falls back to dialogue_systems.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "math_expression",
			Category: protocol.CategoryMath,
			Keywords: []string{"solve", "calculate", "compute", "evaluate", "simplify", "what is", "what's", "how much", "work out", "factor"},
			Pattern:  `\d\s*[a-z]?\s*[-+*/^×÷]\s*\(?\s*[a-z]?\d`,
		},
		{
			ID:       "code",
			Category: protocol.CategoryCoding,
			Keywords: []string{
				"function", "functions", "code", "coding", "script", "program", "programming",
				"debug", "compile", "compiler", "bug", "algorithm", "data structure", "class",
				"method", "api", "regex", "sql", "python", "javascript", "typescript", "golang",
				"java", "rust", "c++", "html", "css", "json", "refactor", "implement",
				"unit test", "stack trace", "recursion", "variable", "array", "loop",
				"git", "docker", "endpoint", "leetcode",
			},
		},
		{
			ID:       "math_terms",
			Category: protocol.CategoryMath,
			Keywords: []string{
				"equation", "equations", "derivative", "integral", "theorem", "proof", "algebra",
				"calculus", "geometry", "trigonometry", "arithmetic", "probability", "statistics",
				"solve for", "square root", "logarithm", "factorial", "polynomial", "matrix",
				"fraction", "percentage", "prime number", "sqrt", "math", "mathematics",
			},
		},
		{
			ID:       "summarization",
			Category: protocol.CategorySummary,
			Keywords: []string{
				"summarize", "summarise", "summary", "sum up", "tl;dr", "tldr", "key points",
				"main points", "condense", "gist", "recap", "in a nutshell", "overview",
			},
		},
		{
			ID:       "sentiment",
			Category: protocol.CategorySentiment,
			Keywords: []string{
				"sentiment", "emotion", "emotions", "emotional", "mood", "tone", "attitude",
				"polarity", "positive or negative",
			},
		},
		{
			ID:       "video",
			Category: protocol.CategoryVideoQA,
			Keywords: []string{"video", "videos", "movie", "movies", "film", "clip", "footage", "trailer", "scene"},
		},
		{
			ID:       "visual",
			Category: protocol.CategoryVisualQA,
			Keywords: []string{
				"image", "images", "picture", "pictures", "photo", "photos", "photograph",
				"screenshot", "diagram", "visual", "look at", "what do you see", "would see",
			},
		},
		{
			ID:       "creative_writing",
			Category: protocol.CategoryText,
			Keywords: []string{
				"story", "stories", "poem", "poetry", "essay", "article", "blog post", "lyrics",
				"song", "haiku", "limerick", "novel", "cover letter", "narrative", "fiction",
				"creative writing", "slogan",
			},
		},
		{
			ID:       "commonsense_why",
			Category: protocol.CategoryCommonsense,
			Pattern:  `^(why|how come)\b`,
		},
		{
			ID:       "commonsense_terms",
			Category: protocol.CategoryCommonsense,
			Keywords: []string{
				"explain why", "common sense", "makes sense", "what would happen if", "reasoning",
				"logic", "cause and effect",
			},
		},
		{
			ID:       "factual_question",
			Category: protocol.CategoryQuestion,
			Pattern:  `^(what|who|where|when|which|whose|how (many|much|far|old|long|big|tall))\b`,
		},
		{
			ID:       "factual_terms",
			Category: protocol.CategoryQuestion,
			Keywords: []string{"capital of", "definition of", "define", "meaning of", "population of", "fact", "facts"},
		},
		{
			ID:       "chit_chat",
			Category: protocol.CategoryDialogue,
			Keywords: []string{
				"chat", "talk", "joke", "jokes", "hello", "hi", "hey", "good morning", "advice",
				"opinion", "how are you", "thanks", "thank you", "discuss", "conversation",
			},
		},
		{
			ID:       "free_writing",
			Category: protocol.CategoryText,
			Keywords: []string{"write", "compose", "draft", "generate", "rewrite"},
		},
	}
}
