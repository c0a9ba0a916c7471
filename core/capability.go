package core

import "context"

// Capability names one of the fixed high-level behaviors. The set is closed:
// routing selects from these four descriptors, never from open-ended dispatch.
type Capability string

const (
	// CapabilitySearchSummarize searches workspace history and summarizes the
	// top results with citations.
	CapabilitySearchSummarize Capability = "search-summarize"
	// CapabilityThreadSummarize consolidates a channel thread into a single
	// summary, chunking when it exceeds the context budget.
	CapabilityThreadSummarize Capability = "thread-summarize"
	// CapabilityWorkflowRecommend suggests (never executes) workflow actions
	// for a described goal.
	CapabilityWorkflowRecommend Capability = "workflow-recommend"
	// CapabilityGeneralChat answers conversationally from session history
	// alone, with no retrieval.
	CapabilityGeneralChat Capability = "general-chat"
)

// Executor runs one capability for one turn. Implementations must not return
// errors for recoverable conditions: upstream failures are translated into a
// reply carrying a user-visible error message at this boundary.
type Executor interface {
	Execute(ctx context.Context, turn InboundTurn, session *Session) OutboundReply
}

// Descriptor binds a capability name to its executor. Descriptors are static,
// built once at startup, and read-only thereafter.
type Descriptor struct {
	Name     Capability
	Executor Executor
}
