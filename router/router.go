// Package router classifies inbound turns against session state to select one
// of the fixed capabilities. Selection follows a fixed priority order with
// sticky routing for threaded follow-ups; intent detection for the lower
// rules is rule-based by default and may be delegated to a model-assisted
// Classifier.
package router

import (
	"context"
	"strings"

	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// Classifier resolves the intent of a turn that no explicit rule matched.
// It chooses between search-summarize, workflow-recommend and general-chat;
// the sticky and thread-summarize rules always run first.
type Classifier interface {
	Classify(ctx context.Context, turn core.InboundTurn, history []core.Exchange) (core.Capability, error)
}

// Options configure a Router.
type Options struct {
	// Classifier, when set, replaces the keyword rules for intent detection.
	Classifier Classifier
	// ResetPhrases break capability stickiness when matched.
	ResetPhrases []string
	// Logger receives routing decisions at debug level.
	Logger logging.Logger
}

// DefaultResetPhrases are the stock phrases that end capability continuity
// inside a thread.
var DefaultResetPhrases = []string{
	"start over",
	"reset",
	"new topic",
	"new question",
	"nevermind",
	"never mind",
}

// Router selects a capability descriptor per turn. Read-only after
// construction; safe for concurrent use.
type Router struct {
	descriptors  map[core.Capability]core.Descriptor
	classifier   Classifier
	resetPhrases []string
	logger       logging.Logger
}

// New builds a Router over the closed descriptor set. All four capabilities
// must be present; missing ones fall back to general-chat at route time.
func New(descriptors []core.Descriptor, optFns ...func(o *Options)) *Router {
	opts := Options{
		ResetPhrases: DefaultResetPhrases,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	byName := make(map[core.Capability]core.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	return &Router{
		descriptors:  byName,
		classifier:   opts.Classifier,
		resetPhrases: opts.ResetPhrases,
		logger:       opts.Logger,
	}
}

// Route selects the capability for the turn, evaluated in fixed priority
// order (first match wins):
//
//  1. sticky: an active capability continues for threaded replies unless the
//     turn matches a reset phrase
//  2. explicit thread-summarize trigger on turns with thread context
//  3. information-seeking intent: search-summarize
//  4. "how do I accomplish X" intent: workflow-recommend
//  5. general-chat fallback
//
// Route never mutates the session; the engine records the selection.
func (r *Router) Route(ctx context.Context, turn core.InboundTurn, session *core.Session) core.Descriptor {
	text := strings.ToLower(strings.TrimSpace(turn.Text))

	if active := session.Capability(); active != "" && turn.IsThreadReply && !r.isReset(text) {
		if d, ok := r.descriptors[active]; ok {
			r.logger.Debug("routing sticky", "key", turn.ConversationKey, "capability", active)
			return d
		}
	}

	if matchesThreadSummarize(text) && (turn.IsThreadReply || turn.Channel != "") {
		return r.descriptor(core.CapabilityThreadSummarize)
	}

	if r.classifier != nil {
		if cap, err := r.classifier.Classify(ctx, turn, session.History()); err == nil {
			if d, ok := r.descriptors[cap]; ok {
				r.logger.Debug("routing classified", "key", turn.ConversationKey, "capability", cap)
				return d
			}
		} else {
			r.logger.Warn("intent classification failed, falling back to rules", "error", err)
		}
	}

	switch {
	case matchesSearch(text):
		return r.descriptor(core.CapabilitySearchSummarize)
	case matchesWorkflow(text):
		return r.descriptor(core.CapabilityWorkflowRecommend)
	default:
		return r.descriptor(core.CapabilityGeneralChat)
	}
}

func (r *Router) descriptor(c core.Capability) core.Descriptor {
	if d, ok := r.descriptors[c]; ok {
		return d
	}
	return r.descriptors[core.CapabilityGeneralChat]
}

func (r *Router) isReset(text string) bool {
	for _, phrase := range r.resetPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

var threadSummarizeTriggers = []string{
	"summarize this thread",
	"summarize the thread",
	"summarize thread",
	"recap this thread",
	"catch me up",
	"tl;dr",
	"tldr",
}

func matchesThreadSummarize(text string) bool {
	for _, trig := range threadSummarizeTriggers {
		if strings.Contains(text, trig) {
			return true
		}
	}
	return false
}

var searchTriggers = []string{
	"find ",
	"search",
	"look up",
	"look for",
	"who said",
	"who mentioned",
	"what did",
	"where did",
	"when did",
	"did anyone",
	"any messages",
	"any discussion",
}

func matchesSearch(text string) bool {
	for _, trig := range searchTriggers {
		if strings.Contains(text, trig) {
			return true
		}
	}
	return false
}

var workflowTriggers = []string{
	"how do i",
	"how do we",
	"how can i",
	"how can we",
	"how to ",
	"what's the best way",
	"what is the best way",
	"recommend a workflow",
	"which workflow",
}

func matchesWorkflow(text string) bool {
	for _, trig := range workflowTriggers {
		if strings.Contains(text, trig) {
			return true
		}
	}
	return false
}
