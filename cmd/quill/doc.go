// Quill generates git commit messages from diffs using LLM providers.
//
// Small diffs are summarized in a single provider call. Diffs larger than
// the model's context window run through a map-reduce pipeline that splits
// the diff at file, hunk, and line boundaries, summarizes chunks
// concurrently with a cheap model, and merges the partial summaries into
// the final message.
//
// Usage:
//
//	quill generate staged             # describe staged changes
//	quill generate unstaged           # describe working tree changes
//	quill generate commit <sha>       # rewrite an existing commit message
//	quill config init                 # create a default config file
//	quill models doctor               # validate provider credentials
//
// See https://github.com/quillgen/quill for full documentation.
package main
