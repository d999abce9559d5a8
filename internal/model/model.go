// Package model provides the backend contract, profile resolution,
// routing and the invocation client.
package model

import "context"

// Backend is the inference service the core depends on.
// It is treated as opaque: only these operations are used.
type Backend interface {
	// Ping checks that the backend process is reachable.
	Ping(ctx context.Context) error

	// ListModels returns the identifiers of installed models.
	ListModels(ctx context.Context) ([]string, error)

	// Generate runs one completion. The backend keeps no state between calls.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Pull installs a model on the backend.
	Pull(ctx context.Context, model string) error

	// Endpoint describes where the backend lives, for error messages.
	Endpoint() string
}
