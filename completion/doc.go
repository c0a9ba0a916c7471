// Package completion wraps LLM backends behind a single Client with a bounded
// retry policy. Backends translate provider failures into the core error
// taxonomy (RateLimited, Unavailable, InvalidRequest); the client retries the
// retryable kinds with jittered exponential backoff and surfaces the last
// taxonomy error once attempts are exhausted. Provider adapters live in
// sub-packages (openai, anthropic); MockBackend supports tests.
package completion
