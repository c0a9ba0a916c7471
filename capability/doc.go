// Package capability implements the closed set of capability executors:
// search-summarize, thread-summarize, workflow-recommend and general-chat.
// Every executor shares the same boundary contract: it never returns an
// error, translating all upstream failure kinds into a well-formed reply
// carrying a user-visible message. A turn is never silently dropped here.
package capability
