// Package llm provides the chat completion client and the analyzer that
// scores a transcript against its reference script.
//
// # Analysis
//
// Analyzer normalizes both texts (speaker labels and punctuation removed),
// asks the model for a JSON verdict and converts it to stage.AnalysisResult.
// accuracy_score may be reported on a 0-100 scale; values above 1 are divided
// by 100. A payload that cannot be decoded, lacks a score or summary, or
// scores outside [0,1] after rescaling is reported as
// services.ErrMalformedOutput so the workflow can retry the attempt. Request
// failures are reported as services.ErrAnalysis.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON content.
// Client.Ping: verify the key and model are usable.
// NewAnalyzer / Analyzer.Analyze: stage.Analyzer implementation.
// ParseAnalysis: decode and validate a raw payload.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx responses, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, 3 attempts by
// default). Context cancellation aborts retries immediately.
package llm
