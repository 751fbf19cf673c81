// Package filter removes noise from a diff before it is summarized:
// lock files, vendored and generated code, and binary file sections. The
// goal is to spend the model's context window on changes a human would
// actually describe in a commit message.
package filter

import (
	"strings"

	"github.com/quillgen/quill/internal/gitctx"
)

// noisePatterns match files whose diffs carry no commit-message signal.
var noisePatterns = []string{
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/Cargo.lock",
	"**/Gemfile.lock",
	"**/poetry.lock",
	"**/composer.lock",
	"**/flake.lock",
	"go.sum",
	"**/go.sum",
	"vendor/**",
	"**/node_modules/**",
	"**/dist/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.pb.go",
	"**/*.gen.go",
	"**/*_generated.go",
	"**/*.snap",
}

// Stats describes what the filter removed.
type Stats struct {
	FilesRemoved int
	BytesRemoved int64
}

// Apply drops noisy changes and returns the survivors plus removal stats.
// A diff where everything is noise comes back empty; callers decide
// whether that is an error.
func Apply(changes []gitctx.Change) ([]gitctx.Change, Stats) {
	var kept []gitctx.Change
	var stats Stats
	for _, c := range changes {
		if isNoise(c) {
			stats.FilesRemoved++
			stats.BytesRemoved += int64(len(c.Section))
			continue
		}
		kept = append(kept, c)
	}
	return kept, stats
}

func isNoise(c gitctx.Change) bool {
	if c.Path != "" && gitctx.MatchesAny(c.Path, noisePatterns) {
		return true
	}
	return isBinarySection(c.Section)
}

func isBinarySection(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "Binary files ") && strings.HasSuffix(line, " differ") {
			return true
		}
		if line == "GIT binary patch" {
			return true
		}
	}
	return false
}
