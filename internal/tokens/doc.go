// Package tokens provides approximate token counting and model context
// budgets for the summarization pipeline.
//
// The estimate is a two-bucket character heuristic, not a tokenizer: CJK
// text runs roughly 1.5 characters per token, everything else roughly 4.
// It trades exactness for zero dependencies and constant-time evaluation;
// the safety margin applied to model limits absorbs the error.
//
// Model context limits are plain lookup data injected at construction, so
// an Estimator carries no hidden global state.
package tokens
