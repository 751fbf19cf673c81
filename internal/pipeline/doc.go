// Package pipeline turns a change set into a commit message, handling
// diffs of any size.
//
// Small diffs go to the provider in a single call. Diffs that exceed the
// model's effective context limit run through a map-reduce pipeline: the
// diff is split into token-bounded chunks, each chunk is summarized
// concurrently with a cheap map-stage model, and the partial summaries are
// reduced into the final message with the primary model. When the pipeline
// is disabled, oversized diffs are truncated instead of split.
package pipeline
