// Package modelsel picks the model used for the parallel map stage.
//
// A user-configured map model is validated for identifier syntax and
// provider compatibility; anything doubtful falls back to a per-provider
// lightweight default (cloud providers) or to the primary model unchanged
// (local providers). Selection never fails — every fallback is reported
// through the feedback sink so the user learns why a cheaper model was not
// used.
package modelsel
