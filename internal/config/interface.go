package config

import "context"

// Loader is the interface for a format-specific graph definition loader.
type Loader interface {
	// Load reads a graph definition from the given path and translates it
	// into the format-agnostic model.
	Load(ctx context.Context, path string) (*Model, error)
}
