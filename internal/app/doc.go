// Package app contains the core application logic. It loads a pipeline
// definition, builds the pipeline against the registered modules and runs it
// once or on a schedule, decoupled from any specific entrypoint like a CLI.
package app
