// Package config loads and merges quill configuration.
//
// The effective configuration is resolved once at pipeline entry by merging
// four layers in order: built-in defaults, the YAML config file, QUILL_*
// environment variables, and CLI flag overrides. Every optional field has a
// documented default in [Default]; nothing is probed at runtime.
package config
