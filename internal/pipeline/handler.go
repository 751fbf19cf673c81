package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quillgen/quill/internal/feedback"
	"github.com/quillgen/quill/internal/filter"
	"github.com/quillgen/quill/internal/gitctx"
	"github.com/quillgen/quill/internal/modelsel"
	"github.com/quillgen/quill/internal/providers"
	"github.com/quillgen/quill/internal/split"
	"github.com/quillgen/quill/internal/tokens"
)

// truncationNotice is appended when the disabled branch drops diff text.
const truncationNotice = "... (diff truncated to fit model context)"

// ErrNoChanges means the change set was empty after assembly.
var ErrNoChanges = errors.New("no changes to describe")

// Options configures one Handler.
type Options struct {
	// Enabled gates the map-reduce path. When false, oversized diffs are
	// truncated and summarized directly.
	Enabled bool
	// FilterEnabled turns on the noise-filtering pre-pass.
	FilterEnabled bool
	// Provider and Model identify the primary provider; the model
	// selector uses them to validate or choose a map-stage model.
	Provider string
	Model    string
	// Convention names the commit message style.
	Convention string
	// Recent holds prior commit subjects from the repository, shown to
	// the model as style reference. May be empty.
	Recent []string
	// Process carries the map-stage knobs.
	Process ProcessConfig
}

// Result is the outcome of one Handle call.
type Result struct {
	Message      string
	MapModel     string
	Chunks       int
	FailedChunks int
	FilterStats  filter.Stats
	Truncated    bool
	Elapsed      time.Duration
}

// Handler drives one change set through filtering, assembly, and
// whichever summarization branch its size demands.
type Handler struct {
	gen  providers.Generator
	est  *tokens.Estimator
	sink feedback.Sink
	opts Options
}

// NewHandler creates a Handler. A nil sink discards feedback.
func NewHandler(gen providers.Generator, est *tokens.Estimator, sink feedback.Sink, opts Options) *Handler {
	if sink == nil {
		sink = feedback.Nop{}
	}
	return &Handler{gen: gen, est: est, sink: sink, opts: opts}
}

// Handle turns a change set into a commit message. It never fails because
// the diff is too large; oversized input selects the truncation or
// map-reduce branch instead.
func (h *Handler) Handle(ctx context.Context, changes []gitctx.Change) (Result, error) {
	start := time.Now()
	var res Result

	if h.opts.FilterEnabled {
		kept, stats := filter.Apply(changes)
		if len(kept) > 0 {
			// A change set that is all noise still needs a message, so
			// only adopt the filtered set when something survived.
			changes = kept
			res.FilterStats = stats
			if stats.FilesRemoved > 0 {
				h.sink.Event(feedback.FilterStats(stats.FilesRemoved, stats.BytesRemoved))
			}
		}
	}

	text := gitctx.Assemble(changes)
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrNoChanges
	}

	switch {
	case !h.opts.Enabled:
		msg, truncated, err := h.truncateAndSummarize(ctx, text)
		if err != nil {
			return Result{}, err
		}
		res.Message = msg
		res.Truncated = truncated
	case !h.est.NeedsSplit(text):
		msg, err := h.summarizeDirect(ctx, text)
		if err != nil {
			return Result{}, err
		}
		res.Message = msg
	default:
		if err := h.mapReduce(ctx, text, start, &res); err != nil {
			return Result{}, err
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// truncateAndSummarize repeatedly drops the trailing 10% of lines until
// the text fits the effective limit, then summarizes directly. No model
// selection or splitting runs in this branch.
func (h *Handler) truncateAndSummarize(ctx context.Context, text string) (string, bool, error) {
	original := len(text)
	truncated := false
	for h.est.NeedsSplit(text) {
		lines := strings.Split(text, "\n")
		keep := len(lines) * 9 / 10
		if keep >= len(lines) {
			keep = len(lines) - 1
		}
		if keep <= 0 {
			break
		}
		text = strings.Join(lines[:keep], "\n")
		truncated = true
	}
	if truncated {
		text += "\n" + truncationNotice
		h.sink.Event(feedback.Truncation(original, len(text)))
	}
	msg, err := h.summarizeDirect(ctx, text)
	return msg, truncated, err
}

func (h *Handler) summarizeDirect(ctx context.Context, text string) (string, error) {
	resp, err := h.gen.GenerateSummary(ctx, providers.SummaryRequest{
		System:      commitSystemPrompt,
		Prompt:      buildDirectPrompt(text, h.opts.Convention, h.opts.Recent),
		MaxTokens:   commitMaxTokens,
		Temperature: commitTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (h *Handler) mapReduce(ctx context.Context, text string, start time.Time, res *Result) error {
	chunks := split.New(h.est).Split(text, h.est.EffectiveLimit())
	res.Chunks = len(chunks)

	cfg := h.opts.Process
	cfg.MapModel = modelsel.Select(modelsel.Selection{
		Provider:     h.opts.Provider,
		PrimaryModel: h.opts.Model,
		MapModel:     cfg.MapModel,
	}, h.sink)
	res.MapModel = cfg.MapModel

	h.sink.Event(feedback.Start(len(chunks), cfg.MapModel))

	summaries := NewProcessor(h.gen, h.sink).ProcessChunks(ctx, chunks, cfg)
	for _, s := range summaries {
		if !s.Success {
			res.FailedChunks++
		}
	}

	msg, err := NewMerger(h.gen, h.est, h.opts.Convention, h.opts.Recent).Merge(ctx, summaries)
	if err != nil {
		return err
	}
	res.Message = msg

	h.sink.Event(feedback.Done(time.Since(start), res.Chunks, res.FailedChunks))
	return nil
}
