// Package hcl provides the HCL implementation of the config.Loader
// interface. It is responsible for file parsing, expression evaluation and
// the cty-to-Go conversion of entity options.
package hcl
