// Package config loads, validates, and defaults the TOML configuration for
// the rinkreel daemon and CLI.
package config
