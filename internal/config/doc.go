// Package config loads the ace-monitor configuration.
//
// Configuration comes from built-in defaults, an optional YAML file and ACE_*
// environment variables (optionally seeded from .env files), in that order of
// precedence. The resulting Config is an immutable value handed to each component
// at construction time.
package config
