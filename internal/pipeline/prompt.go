package pipeline

import (
	"fmt"
	"strings"

	"github.com/quillgen/quill/internal/split"
)

const chunkSystemPrompt = `You are a senior engineer reading a portion of a larger code diff. Summarize what this portion changes in 2-4 short sentences.

Rules:
1. State what changed and where (files, functions, types).
2. Note the apparent intent when it is clear from the code; do not speculate.
3. Mention added/removed dependencies, config keys, or public API changes.
4. Plain prose only. No markdown, no headings, no bullet points.`

const mergeSystemPrompt = `You are a senior engineer combining partial summaries of one large code diff. Merge the given summaries into a single coherent summary of 3-6 sentences, deduplicating overlapping facts. Plain prose only.`

const commitSystemPrompt = `You are a senior engineer writing a git commit message for the changes described below.

Rules:
1. First line: a concise subject of at most 72 characters.
2. If the change needs explanation, add a blank line and a short body describing what changed and why.
3. Describe the change itself, never the process of making it.
4. Respond with ONLY the commit message. No markdown fences, no preamble.`

func conventionInstructions(convention string) string {
	switch convention {
	case "conventional":
		return "Use the Conventional Commits format: a type prefix (feat, fix, refactor, docs, test, chore, perf, build, ci), an optional scope in parentheses, then a colon and the subject."
	case "gitmoji":
		return "Start the subject with an appropriate gitmoji code such as :sparkles:, :bug:, :recycle:, or :memo:."
	default:
		return "Use plain imperative mood for the subject, e.g. \"Add retry to upload client\"."
	}
}

// buildChunkPrompt assembles the map-stage prompt for one chunk. The
// predecessor summary, when available, lets the model connect a chunk to
// the earlier part of the same file.
func buildChunkPrompt(c split.Chunk, prevSummary string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "File: %s\n", c.FilePath)
	fmt.Fprintf(&b, "Part %d of %d (split at %s level)\n", c.Index+1, c.Total, c.Level)
	if c.Context.Function != "" {
		fmt.Fprintf(&b, "Function: %s\n", c.Context.Function)
	}
	if len(c.Context.RelatedFiles) > 0 {
		fmt.Fprintf(&b, "Also touches: %s\n", strings.Join(c.Context.RelatedFiles, ", "))
	}
	if prevSummary != "" {
		fmt.Fprintf(&b, "Summary of the previous part of this file: %s\n", prevSummary)
	}
	b.WriteString("\nDiff portion:\n")
	b.WriteString(c.Content)
	return b.String()
}

// buildMergePrompt combines intermediate summaries for one reduce step.
func buildMergePrompt(texts []string) string {
	var b strings.Builder
	b.WriteString("Partial summaries of one code diff:\n\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	return b.String()
}

// styleExamples renders recent commit subjects as a style reference block.
// Empty input writes nothing.
func styleExamples(b *strings.Builder, recent []string) {
	if len(recent) == 0 {
		return
	}
	b.WriteString("\n\nRecent commit subjects from this repository, for style reference:\n")
	for _, s := range recent {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
}

// buildCommitFromSummaries is the final reduce step: partial summaries in,
// commit message out.
func buildCommitFromSummaries(texts []string, convention string, recent []string) string {
	var b strings.Builder
	b.WriteString(conventionInstructions(convention))
	styleExamples(&b, recent)
	b.WriteString("\n\nThe diff was too large to show directly. These summaries cover all of it:\n\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\nWrite the commit message.")
	return b.String()
}

// buildDirectPrompt asks for a commit message straight from the diff. The
// diff goes last so truncated input keeps its trailing marker visible.
func buildDirectPrompt(diff, convention string, recent []string) string {
	var b strings.Builder
	b.WriteString(conventionInstructions(convention))
	styleExamples(&b, recent)
	b.WriteString("\n\nWrite the commit message for this diff:\n\n")
	b.WriteString(diff)
	return b.String()
}
