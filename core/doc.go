// Package core provides the foundational domain types and interfaces used by
// Haystack. It defines the core abstractions for:
//
//   - Inbound turns and outbound replies (the units of conversation)
//   - Sessions (bounded, time-limited conversational state per conversation key)
//   - Capabilities (the closed set of high-level behaviors and their executors)
//   - Collaborator contracts (transport sink, thread fetcher, workspace search)
//   - The shared error taxonomy for upstream failures
//
// The package intentionally keeps implementation concerns (storage, routing,
// the dispatch engine, concrete transports) out of scope, exposing small
// interfaces so the wiring layer decides which implementations to instantiate.
package core
