// Package logging configures slog output for the daemon and provides the
// attribute helpers and context-derived fields used across the pipeline.
package logging
