package config

import "context"

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads the definition at path and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*Definition, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) (*Definition, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, path string) (*Definition, error) {
	return f(ctx, path)
}
