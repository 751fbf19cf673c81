// Package providers implements the Generator interface for each supported
// LLM provider.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini),
// and Ollama / LMStudio for local models.
//
// All providers share a common retry helper with exponential back-off and
// rate-limit handling, and accept a per-request model override so the map
// stage can run on a cheaper model than the configured default.
//
// Use [New] to obtain a Generator by provider name and model string.
package providers
