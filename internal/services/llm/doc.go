// Package llm provides an OpenAI-compatible chat client for script expansion.
//
// The client speaks the chat completions wire format, so it works against
// OpenAI, OpenRouter, and local gateways that mimic them. Requests always ask
// for a JSON object response; DecodeLLMJSON tolerates the usual formatting
// quirks (code fences, prose around the object).
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive raw JSON.
// Client.Expand: implements expand.Provider on top of CompleteJSON.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx, empty completions, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default), honouring Retry-After. Context cancellation aborts immediately.
// Errors returned to the pipeline carry a services marker: 401/403 become
// configuration errors, other 4xx become validation errors, and exhausted
// retries stay transient so the job-level policy can try again later.
package llm
