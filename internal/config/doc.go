// Package config loads, normalizes and validates the scanner's TOML
// configuration, layering secrets from the environment and optional .env files.
package config
