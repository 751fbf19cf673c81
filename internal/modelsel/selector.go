package modelsel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quillgen/quill/internal/feedback"
)

// Selection carries the configuration the selector reads.
type Selection struct {
	Provider     string
	PrimaryModel string
	// MapModel is the user-configured model for the map stage. Empty means
	// unconfigured.
	MapModel string
}

// identPattern is the allowed syntax for model identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// cloudDefaults maps cloud providers to their lightweight map-stage model.
var cloudDefaults = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku-latest",
	"gemini":    "gemini-2.0-flash-lite",
	"google":    "gemini-2.0-flash-lite",
}

// providerPrefixes lists accepted model-name prefixes per cloud provider.
var providerPrefixes = map[string][]string{
	"openai":    {"gpt-", "o1", "o3", "o4", "chatgpt-"},
	"anthropic": {"claude-"},
	"gemini":    {"gemini-", "gemma-"},
	"google":    {"gemini-", "gemma-"},
}

// Select resolves the model to use for the map stage. It validates the
// configured map model and falls back to a per-provider default (cloud) or
// the primary model (local or unrecognized providers) on any doubt. Every
// fallback is reported through sink. Select always returns a usable model
// identifier and never fails.
func Select(sel Selection, sink feedback.Sink) string {
	if sink == nil {
		sink = feedback.Nop{}
	}
	provider := strings.ToLower(strings.TrimSpace(sel.Provider))

	if sel.MapModel == "" {
		fallback := fallbackModel(provider, sel.PrimaryModel)
		sink.Event(feedback.ModelFallback("no map model configured", fallback))
		return fallback
	}

	if !identPattern.MatchString(sel.MapModel) {
		fallback := fallbackModel(provider, sel.PrimaryModel)
		sink.Event(feedback.ModelFallback(
			fmt.Sprintf("map model %q has invalid syntax", sel.MapModel), fallback))
		return fallback
	}

	if !compatible(provider, sel.MapModel) {
		fallback := fallbackModel(provider, sel.PrimaryModel)
		sink.Event(feedback.ModelFallback(
			fmt.Sprintf("map model %q does not match provider %s", sel.MapModel, provider), fallback))
		return fallback
	}

	return sel.MapModel
}

// fallbackModel is the per-provider default lightweight model for cloud
// providers, or the primary model unchanged otherwise.
func fallbackModel(provider, primary string) string {
	if def, ok := cloudDefaults[provider]; ok {
		return def
	}
	return primary
}

// compatible reports whether a model identifier looks right for a provider.
// Local providers and unrecognized providers accept anything.
func compatible(provider, model string) bool {
	prefixes, ok := providerPrefixes[provider]
	if !ok {
		return true
	}
	lower := strings.ToLower(model)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
