// Package split partitions unified diff text into token-bounded chunks.
//
// Splitting is recursive at decreasing granularity: whole files first, then
// individual hunks, then greedy line groups, stopping at the first level
// where everything fits. A final greedy merge pass re-packs adjacent small
// chunks to minimize the number of LLM round-trips. Lines are never broken
// in half, and every chunk carries enough header context to be summarized
// on its own.
package split
