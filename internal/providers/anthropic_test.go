package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropic_GenerateSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing or wrong x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "claude-sonnet-4" {
			t.Errorf("Model = %q, want %q", req.Model, "claude-sonnet-4")
		}

		resp := anthropicResponse{
			Content: []anthropicBlock{{Type: "text", Text: "fix: handle nil reader"}},
			Usage:   anthropicUsage{InputTokens: 40, OutputTokens: 10},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := &Anthropic{
		apiKey:  "test-key",
		model:   "claude-sonnet-4",
		baseURL: server.URL,
		client:  server.Client(),
	}

	resp, err := a.GenerateSummary(context.Background(), SummaryRequest{
		System: "test",
		Prompt: "test",
	})
	if err != nil {
		t.Fatalf("GenerateSummary error: %v", err)
	}
	if resp.Content != "fix: handle nil reader" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 50 {
		t.Errorf("TokensUsed = %d, want 50", resp.TokensUsed)
	}
}

func TestAnthropic_ModelOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "claude-3-5-haiku-latest" {
			t.Errorf("Model = %q, want override", req.Model)
		}
		resp := anthropicResponse{
			Content: []anthropicBlock{{Type: "text", Text: "ok"}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := &Anthropic{
		apiKey:  "test-key",
		model:   "claude-sonnet-4",
		baseURL: server.URL,
		client:  server.Client(),
	}

	_, err := a.GenerateSummary(context.Background(), SummaryRequest{
		System: "test",
		Prompt: "test",
		Model:  "claude-3-5-haiku-latest",
	})
	if err != nil {
		t.Fatalf("GenerateSummary error: %v", err)
	}
}

func TestAnthropic_AuthError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	a := &Anthropic{
		apiKey:  "bad-key",
		model:   "claude-sonnet-4",
		baseURL: server.URL,
		client:  server.Client(),
	}

	_, err := a.GenerateSummary(context.Background(), SummaryRequest{
		System: "test",
		Prompt: "test",
	})
	if err == nil {
		t.Fatal("Expected auth error")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
	// Auth errors are not retried.
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestNewAnthropic_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropic("claude-sonnet-4"); err == nil {
		t.Error("Expected error when ANTHROPIC_API_KEY is unset")
	}
}
