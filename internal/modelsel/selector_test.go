package modelsel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillgen/quill/internal/feedback"
)

// recordingSink captures events for assertions.
type recordingSink struct {
	events []feedback.Event
}

func (r *recordingSink) Event(e feedback.Event) { r.events = append(r.events, e) }

func TestSelect_UnconfiguredOpenAI(t *testing.T) {
	sink := &recordingSink{}
	got := Select(Selection{Provider: "openai", PrimaryModel: "gpt-4"}, sink)
	assert.Equal(t, "gpt-4o-mini", got)
	require.Len(t, sink.events, 1)
	assert.Equal(t, feedback.KindModelFallback, sink.events[0].Kind)
}

func TestSelect_UnconfiguredOllama(t *testing.T) {
	got := Select(Selection{Provider: "ollama", PrimaryModel: "llama3.3"}, &recordingSink{})
	assert.Equal(t, "llama3.3", got)
}

func TestSelect_ValidMapModel(t *testing.T) {
	sink := &recordingSink{}
	got := Select(Selection{Provider: "openai", PrimaryModel: "gpt-4", MapModel: "gpt-4o-mini"}, sink)
	assert.Equal(t, "gpt-4o-mini", got)
	assert.Empty(t, sink.events, "valid selection should not report a fallback")
}

func TestSelect_InvalidSyntax(t *testing.T) {
	sink := &recordingSink{}
	got := Select(Selection{Provider: "anthropic", PrimaryModel: "claude-sonnet-4", MapModel: "bad model!"}, sink)
	assert.Equal(t, "claude-3-5-haiku-latest", got)
	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].Message, "invalid syntax")
}

func TestSelect_ProviderMismatch(t *testing.T) {
	sink := &recordingSink{}
	got := Select(Selection{Provider: "openai", PrimaryModel: "gpt-4", MapModel: "claude-3-5-haiku-latest"}, sink)
	assert.Equal(t, "gpt-4o-mini", got)
	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].Message, "does not match provider")
}

func TestSelect_LocalProviderAcceptsAnything(t *testing.T) {
	got := Select(Selection{Provider: "ollama", PrimaryModel: "llama3.3", MapModel: "my/custom.model:tag"}, nil)
	// Colons are not valid identifier syntax; the primary model wins.
	assert.Equal(t, "llama3.3", got)

	got = Select(Selection{Provider: "ollama", PrimaryModel: "llama3.3", MapModel: "qwen2.5-coder"}, nil)
	assert.Equal(t, "qwen2.5-coder", got)
}

func TestSelect_UnrecognizedProvider(t *testing.T) {
	sink := &recordingSink{}
	got := Select(Selection{Provider: "mystery", PrimaryModel: "whatever-1"}, sink)
	assert.Equal(t, "whatever-1", got)
}

func TestSelect_ProviderCaseInsensitive(t *testing.T) {
	got := Select(Selection{Provider: "OpenAI", PrimaryModel: "gpt-4"}, nil)
	assert.Equal(t, "gpt-4o-mini", got)
}

func TestSelect_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Select(Selection{Provider: "openai", PrimaryModel: "gpt-4"}, nil)
	})
}

func TestCompatible_Prefixes(t *testing.T) {
	cases := []struct {
		provider, model string
		want            bool
	}{
		{"openai", "gpt-4o-mini", true},
		{"openai", "o3-mini", true},
		{"openai", "claude-3", false},
		{"anthropic", "claude-3-5-haiku-latest", true},
		{"anthropic", "gpt-4", false},
		{"gemini", "gemini-2.0-flash-lite", true},
		{"gemini", "gemma-2-9b", true},
		{"ollama", "anything-goes", true},
		{"unknown", "anything-goes", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, compatible(tc.provider, tc.model), "%s/%s", tc.provider, tc.model)
	}
}
