// Package gitctx extracts diffs and repository metadata from git.
//
// It supports the three generation modes — staged, unstaged, and commit —
// by shelling out to git with appropriate arguments. Diffs can be split
// into per-file [Change] values for filtering and redaction, reassembled
// with [Assemble], filtered by exclude glob patterns, and truncated to a
// configurable maximum byte size.
package gitctx
