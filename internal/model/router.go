package model

import (
	apperrors "github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// Route looks up the model for category. Mappings are validated at load
// time, but may have been edited since, so a missing entry is still
// reported as a configuration error instead of guessed around.
func Route(category protocol.TaskCategory, mapping Mapping) (string, error) {
	id, ok := mapping[category]
	if !ok || id == "" {
		return "", apperrors.ConfigurationError("active mapping has no model for task category").
			WithContext("category", string(category))
	}
	return id, nil
}

// Decide routes category under sel and records provenance.
func Decide(category protocol.TaskCategory, sel *Selection) (protocol.RoutingDecision, error) {
	decision := protocol.RoutingDecision{Category: category}
	if sel == nil {
		return decision, apperrors.ConfigurationError("no active profile").
			WithContext("category", string(category))
	}
	decision.Profile = sel.Profile

	id, err := Route(category, sel.Mapping)
	if err != nil {
		return decision, withProfile(err, sel.Profile)
	}
	decision.Model = id
	return decision, nil
}
