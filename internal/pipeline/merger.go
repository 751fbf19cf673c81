package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/quillgen/quill/internal/providers"
	"github.com/quillgen/quill/internal/tokens"
)

const (
	mergeMaxTokens    = 1024
	commitMaxTokens   = 512
	mergeTemperature  = 0.2
	commitTemperature = 0.3
)

// ErrAllChunksFailed means the reduce stage had no successful summaries
// to work with.
var ErrAllChunksFailed = errors.New("all chunk summaries failed")

// Merger runs the reduce stage: partial summaries in, commit message out.
// When the combined summaries themselves exceed the token budget, it
// collapses them level by level until one call fits. Reduce-stage calls
// use the provider's primary model, never the map model.
type Merger struct {
	gen        providers.Generator
	est        *tokens.Estimator
	convention string
	recent     []string
}

// NewMerger creates a Merger. recent carries prior commit subjects used as
// style reference in the final prompt; nil is fine.
func NewMerger(gen providers.Generator, est *tokens.Estimator, convention string, recent []string) *Merger {
	return &Merger{gen: gen, est: est, convention: convention, recent: recent}
}

// Merge produces the final commit message from the map-stage results.
// Failed summaries are dropped; if none succeeded, ErrAllChunksFailed is
// returned. Errors from the provider propagate: there is no lower level
// to fall back to.
func (m *Merger) Merge(ctx context.Context, summaries []ChunkSummary) (string, error) {
	var texts []string
	for _, s := range summaries {
		if s.Success && strings.TrimSpace(s.Summary) != "" {
			texts = append(texts, labelSummary(s))
		}
	}
	if len(texts) == 0 {
		return "", ErrAllChunksFailed
	}

	texts, err := m.reduce(ctx, texts)
	if err != nil {
		return "", err
	}

	resp, err := m.gen.GenerateSummary(ctx, providers.SummaryRequest{
		System:      commitSystemPrompt,
		Prompt:      buildCommitFromSummaries(texts, m.convention, m.recent),
		MaxTokens:   commitMaxTokens,
		Temperature: commitTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func labelSummary(s ChunkSummary) string {
	if s.FilePath == "" {
		return s.Summary
	}
	return s.FilePath + ": " + s.Summary
}

// reduce collapses summary groups until the final prompt fits the token
// budget or no further collapse is possible.
func (m *Merger) reduce(ctx context.Context, texts []string) ([]string, error) {
	limit := m.est.EffectiveLimit()
	for len(texts) > 1 && m.est.Estimate(buildCommitFromSummaries(texts, m.convention, m.recent)) > limit {
		groups := m.partition(texts, limit)
		next := make([]string, 0, len(groups))
		for _, g := range groups {
			if len(g) == 1 {
				next = append(next, g[0])
				continue
			}
			resp, err := m.gen.GenerateSummary(ctx, providers.SummaryRequest{
				System:      mergeSystemPrompt,
				Prompt:      buildMergePrompt(g),
				MaxTokens:   mergeMaxTokens,
				Temperature: mergeTemperature,
			})
			if err != nil {
				return nil, err
			}
			next = append(next, strings.TrimSpace(resp.Content))
		}
		if len(next) >= len(texts) {
			// Every group was a singleton; nothing left to collapse.
			break
		}
		texts = next
	}
	return texts, nil
}

// partition packs texts greedily into groups whose combined estimate
// stays within the budget. An oversized single text gets its own group.
func (m *Merger) partition(texts []string, limit int) [][]string {
	var groups [][]string
	var current []string
	used := 0
	for _, t := range texts {
		cost := m.est.Estimate(t)
		if len(current) > 0 && used+cost > limit {
			groups = append(groups, current)
			current = nil
			used = 0
		}
		current = append(current, t)
		used += cost
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
