package pipeline

import "time"

// ProcessConfig carries the map-stage knobs. Constructed once per
// invocation and read-only during execution.
type ProcessConfig struct {
	// Concurrency bounds parallel map-stage calls. Values below 1 are
	// treated as 1.
	Concurrency int
	// MaxRetries is the number of additional attempts per chunk after
	// the first.
	MaxRetries int
	// InitialRetryDelay is the delay before the first retry; each
	// subsequent retry doubles it.
	InitialRetryDelay time.Duration
	// MapModel overrides the provider's default model for map-stage
	// calls. Empty means no override.
	MapModel string
}

// ChunkSummary is the map-stage result for one chunk. A failed chunk is
// represented, not omitted, so the reduce stage and callers can observe
// partial failure.
type ChunkSummary struct {
	FilePath string
	Index    int
	Summary  string
	Success  bool
	Err      string
}
