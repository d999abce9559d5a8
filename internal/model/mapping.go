package model

import (
	"errors"
	"sort"

	apperrors "github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// Mapping assigns one model identifier to each task category.
type Mapping map[protocol.TaskCategory]string

// Profiles holds named mappings.
type Profiles map[string]Mapping

// Validate checks that every category has a non-empty model and that
// no unknown category is present.
func (m Mapping) Validate() error {
	for category := range m {
		if !category.Valid() {
			return apperrors.ConfigurationError("mapping references an unknown task category").
				WithContext("category", string(category))
		}
	}
	for _, category := range protocol.Categories() {
		if m[category] == "" {
			return apperrors.ConfigurationError("mapping has no model for a task category").
				WithContext("category", string(category))
		}
	}
	return nil
}

// Models returns the distinct model identifiers referenced by the mapping, sorted.
func (m Mapping) Models() []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, id := range m {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy that shares nothing with m.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Names returns profile names, sorted.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw converts profiles back to plain string tables.
func (p Profiles) Raw() map[string]map[string]string {
	out := make(map[string]map[string]string, len(p))
	for name, mapping := range p {
		table := make(map[string]string, len(mapping))
		for category, id := range mapping {
			table[string(category)] = id
		}
		out[name] = table
	}
	return out
}

// ParseProfiles converts raw {profile -> {category -> model}} tables into
// validated profiles. An invalid profile is dropped and reported in the
// returned error; the remaining valid profiles are still returned so that
// one bad table does not take the process down.
func ParseProfiles(raw map[string]map[string]string) (Profiles, error) {
	profiles := make(Profiles, len(raw))
	var errs []error

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mapping := make(Mapping, len(raw[name]))
		for key, id := range raw[name] {
			mapping[protocol.TaskCategory(key)] = id
		}
		if err := mapping.Validate(); err != nil {
			errs = append(errs, withProfile(err, name))
			continue
		}
		profiles[name] = mapping
	}

	if len(errs) > 0 {
		return profiles, errors.Join(errs...)
	}
	return profiles, nil
}

// DefaultProfiles returns the built-in lightweight and comprehensive profiles.
func DefaultProfiles() Profiles {
	return Profiles{
		ProfileLightweight: {
			protocol.CategoryCoding:      "qwen2.5-coder:1.5b",
			protocol.CategoryText:        "llama3.2:3b",
			protocol.CategoryMath:        "qwen2-math:1.5b",
			protocol.CategoryCommonsense: "phi3:mini",
			protocol.CategoryQuestion:    "llama3.2:3b",
			protocol.CategoryDialogue:    "llama3.2:1b",
			protocol.CategorySummary:     "llama3.2:3b",
			protocol.CategorySentiment:   "phi3:mini",
			protocol.CategoryVisualQA:    "moondream",
			protocol.CategoryVideoQA:     "llama3.2:3b",
		},
		ProfileComprehensive: {
			protocol.CategoryCoding:      "codellama",
			protocol.CategoryText:        "llama3",
			protocol.CategoryMath:        "wizard-math",
			protocol.CategoryCommonsense: "phi3",
			protocol.CategoryQuestion:    "mistral",
			protocol.CategoryDialogue:    "llama3",
			protocol.CategorySummary:     "mixtral",
			protocol.CategorySentiment:   "phi3",
			protocol.CategoryVisualQA:    "llava",
			protocol.CategoryVideoQA:     "llama3",
		},
	}
}

// withProfile tags err with the profile it concerns.
func withProfile(err error, profile string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.WithContext("profile", profile)
	}
	return err
}
