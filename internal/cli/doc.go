// Package cli wires together the Cobra command tree for the quill binary.
//
// It defines the root command and all subcommands (generate, config,
// models, cache, version), binds flags, reads configuration, invokes the
// summarization pipeline, and returns deterministic exit codes.
package cli
