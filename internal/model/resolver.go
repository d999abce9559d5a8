package model

import (
	"fmt"
	"strings"

	apperrors "github.com/flynn-ai/joat/internal/errors"
)

// Installed returns a predicate that matches a model id against the
// installed names exactly or as "<id>:latest". Invocation and status use it.
func Installed(installed []string) func(string) bool {
	set := make(map[string]bool, len(installed))
	for _, name := range installed {
		set[name] = true
	}
	return func(id string) bool {
		return set[id] || set[id+":latest"]
	}
}

// Availability is the looser predicate used for profile auto-detection.
// Besides the Installed matches it accepts any installed tag of the same
// base name, so "llama3.2:1b" counts for "llama3.2:3b".
func Availability(installed []string) func(string) bool {
	exact := Installed(installed)
	bases := make(map[string]bool, len(installed))
	for _, name := range installed {
		bases[baseName(name)] = true
	}

	return func(id string) bool {
		return exact(id) || bases[baseName(id)]
	}
}

func baseName(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return id
}

// ResolveProfile picks the active profile.
//
// An explicit override wins and must name a known, complete profile.
// Otherwise the comprehensive profile is chosen only if every model it
// references is available; anything else falls back to lightweight.
func ResolveProfile(profiles Profiles, available func(string) bool, override string) (*Selection, error) {
	if override != "" {
		mapping, ok := profiles[override]
		if !ok {
			return nil, apperrors.ConfigurationError(fmt.Sprintf("unknown profile %q", override)).
				WithContext("profile", override).
				WithContext("known_profiles", profiles.Names())
		}
		if err := mapping.Validate(); err != nil {
			return nil, withProfile(err, override)
		}
		return &Selection{
			Profile: override,
			Mapping: mapping.Clone(),
			Reason:  "explicit override",
		}, nil
	}

	if available == nil {
		available = func(string) bool { return false }
	}

	reason := ""
	if comprehensive, ok := profiles[ProfileComprehensive]; ok {
		if err := comprehensive.Validate(); err != nil {
			reason = "comprehensive profile is invalid"
		} else if missing := missingModels(comprehensive, available); len(missing) > 0 {
			reason = fmt.Sprintf("comprehensive models not installed: %s", strings.Join(missing, ", "))
		} else {
			return &Selection{
				Profile: ProfileComprehensive,
				Mapping: comprehensive.Clone(),
				Reason:  "all comprehensive models installed",
			}, nil
		}
	} else {
		reason = "no comprehensive profile defined"
	}

	lightweight, ok := profiles[ProfileLightweight]
	if !ok {
		return nil, apperrors.ConfigurationError("no usable profile: lightweight profile is missing").
			WithContext("profile", ProfileLightweight).
			WithContext("reason", reason)
	}
	if err := lightweight.Validate(); err != nil {
		return nil, withProfile(err, ProfileLightweight)
	}

	return &Selection{
		Profile: ProfileLightweight,
		Mapping: lightweight.Clone(),
		Reason:  reason,
	}, nil
}

func missingModels(m Mapping, available func(string) bool) []string {
	var missing []string
	for _, id := range m.Models() {
		if !available(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
