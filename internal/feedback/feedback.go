// Package feedback carries structured pipeline notices to the user.
//
// The pipeline reports model-selection fallbacks, filtering statistics, and
// processing progress through a Sink. Sinks are purely informational: the
// default Nop sink discards everything and correctness never depends on one
// being present.
package feedback

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Kind classifies a notice.
type Kind string

// Notice kinds emitted by the pipeline.
const (
	KindModelFallback Kind = "model-fallback"
	KindFilterStats   Kind = "filter-stats"
	KindStart         Kind = "pipeline-start"
	KindProgress      Kind = "chunk-progress"
	KindDone          Kind = "pipeline-done"
	KindTruncation    Kind = "truncation"
)

// Event is one structured notice.
type Event struct {
	Kind    Kind
	Message string
}

// Sink receives pipeline notices. Implementations must be safe for
// concurrent use; map-stage workers report progress in parallel.
type Sink interface {
	Event(Event)
}

// Nop discards all notices.
type Nop struct{}

// Event implements Sink.
func (Nop) Event(Event) {}

// Console writes notices to w (normally stderr), one line each, with the
// kind rendered as a colored tag.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

var kindColors = map[Kind]*color.Color{
	KindModelFallback: color.New(color.FgYellow),
	KindFilterStats:   color.New(color.FgCyan),
	KindStart:         color.New(color.FgCyan),
	KindProgress:      color.New(color.FgHiBlack),
	KindDone:          color.New(color.FgGreen),
	KindTruncation:    color.New(color.FgYellow),
}

// Event implements Sink.
func (c *Console) Event(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := string(e.Kind)
	if col, ok := kindColors[e.Kind]; ok {
		tag = col.Sprint(tag)
	}
	fmt.Fprintf(c.w, "[%s] %s\n", tag, e.Message)
}

// ModelFallback builds a model-selection fallback notice.
func ModelFallback(reason, chosen string) Event {
	return Event{
		Kind:    KindModelFallback,
		Message: fmt.Sprintf("%s; using %s", reason, chosen),
	}
}

// FilterStats builds a noise-filtering summary notice.
func FilterStats(filesRemoved int, bytesRemoved int64) Event {
	return Event{
		Kind: KindFilterStats,
		Message: fmt.Sprintf("filtered %d noisy file(s), %s of diff",
			filesRemoved, humanize.Bytes(uint64(bytesRemoved))),
	}
}

// Start builds a map-stage start notice.
func Start(chunks int, mapModel string) Event {
	model := mapModel
	if model == "" {
		model = "primary model"
	}
	return Event{
		Kind:    KindStart,
		Message: fmt.Sprintf("summarizing %d chunk(s) with %s", chunks, model),
	}
}

// Progress builds a per-chunk completion notice.
func Progress(label string, index, total int, ok bool) Event {
	status := "done"
	if !ok {
		status = "failed"
	}
	return Event{
		Kind:    KindProgress,
		Message: fmt.Sprintf("chunk %d/%d (%s) %s", index+1, total, label, status),
	}
}

// Done builds a pipeline completion notice.
func Done(elapsed time.Duration, chunks, failed int) Event {
	msg := fmt.Sprintf("map-reduce finished in %s (%d chunk(s)",
		elapsed.Round(time.Millisecond), chunks)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	msg += ")"
	return Event{Kind: KindDone, Message: msg}
}

// Truncation builds a notice that the disabled-pipeline branch dropped text.
func Truncation(originalBytes, keptBytes int) Event {
	return Event{
		Kind: KindTruncation,
		Message: fmt.Sprintf("diff truncated from %s to %s to fit the context window",
			humanize.Bytes(uint64(originalBytes)), humanize.Bytes(uint64(keptBytes))),
	}
}
