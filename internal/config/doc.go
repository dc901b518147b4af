// Package config defines the format-agnostic pipeline definition model and
// the Loader interface implemented by each definition file format.
//
// The `config.Definition` is the single source of truth for the `pipeline`
// and `app` packages. Concrete loaders, such as for HCL or TOML, are provided
// in separate packages.
package config
