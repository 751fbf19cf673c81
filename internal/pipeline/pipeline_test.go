package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillgen/quill/internal/gitctx"
	"github.com/quillgen/quill/internal/providers"
	"github.com/quillgen/quill/internal/split"
	"github.com/quillgen/quill/internal/tokens"
)

// fakeGen records every request and answers via respond, or "ok" when
// respond is nil.
type fakeGen struct {
	mu      sync.Mutex
	calls   []providers.SummaryRequest
	respond func(req providers.SummaryRequest) (string, error)
}

func (f *fakeGen) GenerateSummary(_ context.Context, req providers.SummaryRequest) (providers.SummaryResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		content, err := f.respond(req)
		if err != nil {
			return providers.SummaryResponse{}, err
		}
		return providers.SummaryResponse{Content: content}, nil
	}
	return providers.SummaryResponse{Content: "ok"}, nil
}

func (f *fakeGen) Name() string { return "fake" }

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGen) requests() []providers.SummaryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]providers.SummaryRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func fastConfig() ProcessConfig {
	return ProcessConfig{
		Concurrency:       3,
		MaxRetries:        2,
		InitialRetryDelay: time.Millisecond,
	}
}

func chunk(path string, index, total int, content string) split.Chunk {
	return split.Chunk{
		Content:  content,
		FilePath: path,
		Index:    index,
		Total:    total,
		Level:    split.LevelHunk,
	}
}

func TestProcessChunks_RetryCount(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "", errors.New("boom")
	}}
	p := NewProcessor(gen, nil)

	results := p.ProcessChunks(context.Background(),
		[]split.Chunk{chunk("a.go", 0, 1, "+x")}, fastConfig())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Err, "boom")
	// 1 initial attempt + MaxRetries retries, exactly.
	assert.Equal(t, 3, gen.callCount())
}

func TestProcessChunks_ErrorIsolation(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		if strings.Contains(req.Prompt, "bad.go") {
			return "", errors.New("provider down")
		}
		return "fine", nil
	}}
	p := NewProcessor(gen, nil)

	chunks := []split.Chunk{
		chunk("a.go", 0, 3, "+a"),
		chunk("bad.go", 1, 3, "+b"),
		chunk("c.go", 2, 3, "+c"),
	}
	results := p.ProcessChunks(context.Background(), chunks, fastConfig())

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
}

func TestProcessChunks_PredecessorSummary(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		// Make each summary identifiable so the follow-up prompt can be
		// checked for it.
		if strings.Contains(req.Prompt, "first-hunk") {
			return "summary-of-part-one", nil
		}
		return "later", nil
	}}
	p := NewProcessor(gen, nil)

	chunks := []split.Chunk{
		chunk("a.go", 0, 2, "+first-hunk"),
		chunk("a.go", 1, 2, "+second-hunk"),
	}
	cfg := fastConfig()
	cfg.Concurrency = 4 // same-file chunks must still run in order
	results := p.ProcessChunks(context.Background(), chunks, cfg)

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	reqs := gen.requests()
	require.Len(t, reqs, 2)
	var second providers.SummaryRequest
	for _, r := range reqs {
		if strings.Contains(r.Prompt, "second-hunk") {
			second = r
		}
	}
	assert.Contains(t, second.Prompt, "summary-of-part-one",
		"second chunk of a file should see its predecessor's summary")
}

func TestProcessChunks_ModelOverride(t *testing.T) {
	gen := &fakeGen{}
	p := NewProcessor(gen, nil)

	cfg := fastConfig()
	cfg.MapModel = "gpt-4o-mini"
	p.ProcessChunks(context.Background(), []split.Chunk{chunk("a.go", 0, 1, "+x")}, cfg)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o-mini", reqs[0].Model)
}

func TestGroupByFile(t *testing.T) {
	chunks := []split.Chunk{
		chunk("a.go", 0, 5, "+a0"),
		chunk("a.go", 1, 5, "+a1"),
		chunk("b.go", 2, 5, "+b0"),
		chunk("c.go", 3, 5, "+c0"),
		chunk("c.go", 4, 5, "+c1"),
	}
	groups := groupByFile(chunks)
	require.Len(t, groups, 3)
	assert.Equal(t, []int{0, 1}, groups[0])
	assert.Equal(t, []int{2}, groups[1])
	assert.Equal(t, []int{3, 4}, groups[2])
}

func TestMerge_AllFailed(t *testing.T) {
	gen := &fakeGen{}
	est := tokens.NewEstimator("gpt-4o")
	m := NewMerger(gen, est, "conventional", nil)

	_, err := m.Merge(context.Background(), []ChunkSummary{
		{FilePath: "a.go", Success: false, Err: "x"},
	})
	assert.ErrorIs(t, err, ErrAllChunksFailed)
	assert.Zero(t, gen.callCount(), "no provider call when nothing succeeded")
}

func TestMerge_DropsFailedKeepsRest(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		assert.NotContains(t, req.Prompt, "broken.go")
		return "feat: combined", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	m := NewMerger(gen, est, "conventional", nil)

	msg, err := m.Merge(context.Background(), []ChunkSummary{
		{FilePath: "a.go", Index: 0, Summary: "did a thing", Success: true},
		{FilePath: "broken.go", Index: 1, Success: false, Err: "timeout"},
		{FilePath: "c.go", Index: 2, Summary: "did another", Success: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "feat: combined", msg)
	assert.Equal(t, 1, gen.callCount())
}

func TestMerge_RecursiveReduce(t *testing.T) {
	var mergeCalls, commitCalls int
	var mu sync.Mutex
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch req.System {
		case mergeSystemPrompt:
			mergeCalls++
			return "condensed", nil
		case commitSystemPrompt:
			commitCalls++
			return "fix: the final message", nil
		}
		return "", fmt.Errorf("unexpected system prompt")
	}}
	// Tiny budget so the combined summaries overflow and force a reduce
	// level before the final call.
	est := tokens.NewEstimator("gpt-4o",
		tokens.WithCustomLimit(60), tokens.WithSafetyMargin(100))
	m := NewMerger(gen, est, "conventional", nil)

	var summaries []ChunkSummary
	for i := 0; i < 8; i++ {
		summaries = append(summaries, ChunkSummary{
			FilePath: fmt.Sprintf("file%d.go", i),
			Index:    i,
			Summary:  strings.Repeat("changed something significant here ", 3),
			Success:  true,
		})
	}

	msg, err := m.Merge(context.Background(), summaries)
	require.NoError(t, err)
	assert.Equal(t, "fix: the final message", msg)
	assert.Greater(t, mergeCalls, 0, "should have collapsed at least one group")
	assert.Equal(t, 1, commitCalls)
}

func TestMerge_NoModelOverride(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "chore: ok", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	m := NewMerger(gen, est, "conventional", nil)

	_, err := m.Merge(context.Background(), []ChunkSummary{
		{FilePath: "a.go", Summary: "something", Success: true},
	})
	require.NoError(t, err)
	for _, r := range gen.requests() {
		assert.Empty(t, r.Model, "reduce stage must use the primary model")
	}
}

func makeDiff(path string, lines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@ func Handle\n", lines, lines)
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "+    line %d of %s with some realistic content\n", i, path)
	}
	return b.String()
}

func handlerOpts(enabled bool) Options {
	return Options{
		Enabled:    enabled,
		Provider:   "openai",
		Model:      "gpt-4",
		Convention: "conventional",
		Process:    fastConfig(),
	}
}

func TestHandle_EmptyChanges(t *testing.T) {
	est := tokens.NewEstimator("gpt-4o")
	h := NewHandler(&fakeGen{}, est, nil, handlerOpts(true))

	_, err := h.Handle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestHandle_FitsBranch(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "feat(api): small change", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	h := NewHandler(gen, est, nil, handlerOpts(true))

	diff := makeDiff("api.go", 5)
	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.Equal(t, "feat(api): small change", res.Message)
	assert.Zero(t, res.Chunks, "fits branch must not split")
	assert.Equal(t, 1, gen.callCount())
}

func TestHandle_RecentSubjectsInPrompt(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "fix(api): adjust handler", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	opts := handlerOpts(true)
	opts.Recent = []string{"feat(api): add pagination", "chore: bump deps"}
	h := NewHandler(gen, est, nil, opts)

	_, err := h.Handle(context.Background(), gitctx.SplitChanges(makeDiff("api.go", 5)))
	require.NoError(t, err)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "feat(api): add pagination")
	assert.Contains(t, reqs[0].Prompt, "chore: bump deps")
}

func TestHandle_DisabledTruncates(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "fix: truncated world", nil
	}}
	est := tokens.NewEstimator("gpt-4o",
		tokens.WithCustomLimit(500), tokens.WithSafetyMargin(100))
	h := NewHandler(gen, est, nil, handlerOpts(false))

	// Roughly 50 KB of diff.
	diff := makeDiff("big.go", 1100)
	require.Greater(t, len(diff), 50000)

	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Zero(t, res.Chunks)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Less(t, len(reqs[0].Prompt), len(diff),
		"generator must receive strictly less text than the raw diff")
	assert.True(t, strings.HasSuffix(reqs[0].Prompt, truncationNotice),
		"truncated prompt must end with the truncation marker")
}

func TestHandle_MapReduce(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		if req.System == commitSystemPrompt {
			return "refactor: rework three modules", nil
		}
		return "part summary", nil
	}}
	est := tokens.NewEstimator("gpt-4o",
		tokens.WithCustomLimit(500), tokens.WithSafetyMargin(100))
	h := NewHandler(gen, est, nil, handlerOpts(true))

	diff := makeDiff("alpha.go", 70) + makeDiff("beta.go", 70) + makeDiff("gamma.go", 70)
	require.Greater(t, len(diff), 10000)

	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.Equal(t, "refactor: rework three modules", res.Message)
	assert.GreaterOrEqual(t, res.Chunks, 3)
	assert.Zero(t, res.FailedChunks)
	// Unconfigured map model, openai + gpt-4: selector picks the cheap
	// default.
	assert.Equal(t, "gpt-4o-mini", res.MapModel)

	// Every file should have contributed to at least one map request.
	var sawAlpha, sawBeta, sawGamma bool
	for _, r := range gen.requests() {
		if r.System != chunkSystemPrompt {
			continue
		}
		sawAlpha = sawAlpha || strings.Contains(r.Prompt, "alpha.go")
		sawBeta = sawBeta || strings.Contains(r.Prompt, "beta.go")
		sawGamma = sawGamma || strings.Contains(r.Prompt, "gamma.go")
	}
	assert.True(t, sawAlpha && sawBeta && sawGamma)
}

func TestHandle_MapReduceLocalProviderKeepsPrimary(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		if req.System == commitSystemPrompt {
			return "chore: ok", nil
		}
		return "s", nil
	}}
	est := tokens.NewEstimator("qwen2.5-coder",
		tokens.WithCustomLimit(500), tokens.WithSafetyMargin(100))
	opts := handlerOpts(true)
	opts.Provider = "ollama"
	opts.Model = "qwen2.5-coder"
	h := NewHandler(gen, est, nil, opts)

	diff := makeDiff("huge.go", 300)
	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder", res.MapModel)
}

func TestHandle_FilterRemovesNoise(t *testing.T) {
	gen := &fakeGen{respond: func(req providers.SummaryRequest) (string, error) {
		assert.NotContains(t, req.Prompt, "package-lock.json")
		return "feat: ok", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	opts := handlerOpts(true)
	opts.FilterEnabled = true
	h := NewHandler(gen, est, nil, opts)

	diff := makeDiff("main.go", 5) + makeDiff("package-lock.json", 20)
	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilterStats.FilesRemoved)
}

func TestHandle_AllNoiseFallsBackToUnfiltered(t *testing.T) {
	gen := &fakeGen{respond: func(providers.SummaryRequest) (string, error) {
		return "chore: update lockfile", nil
	}}
	est := tokens.NewEstimator("gpt-4o")
	opts := handlerOpts(true)
	opts.FilterEnabled = true
	h := NewHandler(gen, est, nil, opts)

	diff := makeDiff("package-lock.json", 10)
	res, err := h.Handle(context.Background(), gitctx.SplitChanges(diff))
	require.NoError(t, err)
	assert.Equal(t, "chore: update lockfile", res.Message)
	assert.Zero(t, res.FilterStats.FilesRemoved)
}
