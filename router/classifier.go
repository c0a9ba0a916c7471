package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
)

// IntentClassifier is a model-assisted Classifier: a lightweight fast-tier
// completion call that returns a JSON intent. Classification failures are
// returned to the router, which falls back to keyword rules.
type IntentClassifier struct {
	client *completion.Client
}

// NewIntentClassifier wraps a completion client for intent classification.
func NewIntentClassifier(client *completion.Client) *IntentClassifier {
	return &IntentClassifier{client: client}
}

const classifySystem = "You are an intelligent assistant. Classify the intent of chat messages."

// Classify implements Classifier with a single fast-tier completion call.
func (c *IntentClassifier) Classify(ctx context.Context, turn core.InboundTurn, history []core.Exchange) (core.Capability, error) {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Here are some messages to use as background:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "%s: %s\n", ex.Turn.SenderID, ex.Turn.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Use that context to determine the intent of this message: %s\n", turn.Text)
	b.WriteString(`Respond with JSON {"intent": "search" | "workflow" | "chat"} and nothing else.`)

	raw, err := c.client.Complete(ctx, completion.Prompt{
		System:   classifySystem,
		Messages: []core.Message{{Role: "user", Text: b.String()}},
	}, completion.Options{Tier: completion.TierFast, MaxTokens: 64, Temperature: 0.1})
	if err != nil {
		return "", err
	}

	return parseIntent(raw)
}

// parseIntent extracts the intent field, tolerating code fences and
// surrounding prose around the JSON object.
func parseIntent(raw string) (core.Capability, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in classifier output: %q", raw)
	}
	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return "", fmt.Errorf("parsing classifier output: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(out.Intent)) {
	case "search":
		return core.CapabilitySearchSummarize, nil
	case "workflow":
		return core.CapabilityWorkflowRecommend, nil
	case "chat", "other":
		return core.CapabilityGeneralChat, nil
	default:
		return "", fmt.Errorf("unknown intent %q", out.Intent)
	}
}
