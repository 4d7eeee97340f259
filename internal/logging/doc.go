// Package logging assembles the slog loggers used by the scanner daemon and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag lines with job IDs, stages and request IDs.
package logging
