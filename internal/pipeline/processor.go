package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quillgen/quill/internal/feedback"
	"github.com/quillgen/quill/internal/providers"
	"github.com/quillgen/quill/internal/split"
)

const (
	chunkMaxTokens   = 1024
	chunkTemperature = 0.2
)

// Processor runs the map stage: one summary call per chunk, bounded
// concurrency across files, strict order within a file.
type Processor struct {
	gen  providers.Generator
	sink feedback.Sink
}

// NewProcessor creates a Processor. A nil sink discards feedback.
func NewProcessor(gen providers.Generator, sink feedback.Sink) *Processor {
	if sink == nil {
		sink = feedback.Nop{}
	}
	return &Processor{gen: gen, sink: sink}
}

// summaryCache holds completed chunk summaries within one ProcessChunks
// call, keyed by "filePath:index". Written once per key by the goroutine
// that completed the chunk.
type summaryCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *summaryCache) get(path string, index int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[fmt.Sprintf("%s:%d", path, index)]
}

func (c *summaryCache) put(path string, index int, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[fmt.Sprintf("%s:%d", path, index)] = summary
}

// ProcessChunks summarizes every chunk and returns one ChunkSummary per
// input chunk, in input order. Chunks belonging to different files run
// concurrently under a semaphore of cfg.Concurrency; chunks of the same
// file run sequentially so each sees its predecessor's summary. One
// chunk's failure never aborts its siblings.
func (p *Processor) ProcessChunks(ctx context.Context, chunks []split.Chunk, cfg ProcessConfig) []ChunkSummary {
	if len(chunks) == 0 {
		return nil
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]ChunkSummary, len(chunks))
	cache := &summaryCache{m: make(map[string]string)}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, group := range groupByFile(chunks) {
		wg.Add(1)
		go func(idxs []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			for _, i := range idxs {
				c := chunks[i]
				prev := ""
				if c.Index > 0 {
					prev = cache.get(c.FilePath, c.Index-1)
				}
				sum := p.processChunk(ctx, c, cfg, prev)
				results[i] = sum
				if sum.Success {
					cache.put(c.FilePath, c.Index, sum.Summary)
				}
				p.sink.Event(feedback.Progress(c.FilePath, c.Index, c.Total, sum.Success))
			}
		}(group)
	}
	wg.Wait()

	return results
}

// groupByFile partitions chunk indices into runs of consecutive chunks
// sharing a FilePath. Split output is file-ordered, so each run is one
// file's chunks (or one merged multi-file chunk).
func groupByFile(chunks []split.Chunk) [][]int {
	var groups [][]int
	var current []int
	for i, c := range chunks {
		if len(current) > 0 && chunks[current[len(current)-1]].FilePath != c.FilePath {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, i)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// processChunk summarizes one chunk with retry. Attempt n's delay is
// InitialRetryDelay doubled n-1 times.
func (p *Processor) processChunk(ctx context.Context, c split.Chunk, cfg ProcessConfig, prevSummary string) ChunkSummary {
	prompt := buildChunkPrompt(c, prevSummary)
	attempts := cfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.InitialRetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return failedSummary(c, ctx.Err())
			case <-time.After(delay):
			}
		}
		resp, err := p.gen.GenerateSummary(ctx, providers.SummaryRequest{
			System:      chunkSystemPrompt,
			Prompt:      prompt,
			Model:       cfg.MapModel,
			MaxTokens:   chunkMaxTokens,
			Temperature: chunkTemperature,
		})
		if err == nil {
			return ChunkSummary{
				FilePath: c.FilePath,
				Index:    c.Index,
				Summary:  resp.Content,
				Success:  true,
			}
		}
		lastErr = err
		if providers.IsAuthError(err) || ctx.Err() != nil {
			break
		}
	}
	return failedSummary(c, lastErr)
}

func failedSummary(c split.Chunk, err error) ChunkSummary {
	return ChunkSummary{
		FilePath: c.FilePath,
		Index:    c.Index,
		Success:  false,
		Err:      err.Error(),
	}
}
