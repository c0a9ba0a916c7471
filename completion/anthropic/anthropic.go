// Package anthropic provides a completion.Backend using the Anthropic
// Messages API, mapping API failures onto the core error taxonomy.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
)

// Options configure the Anthropic backend (tier mapping, temperature, max
// tokens, API key).
type Options struct {
	Models      map[completion.Tier]string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind completion.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Models: map[completion.Tier]string{
			completion.TierFast: string(anthropic.ModelClaude3_5Haiku20241022),
			completion.TierDeep: string(anthropic.ModelClaude3_5Sonnet20241022),
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Complete implements completion.Backend for a single attempt.
func (b *Backend) Complete(ctx context.Context, prompt completion.Prompt, opts completion.Options) (string, error) {
	model := b.opts.Models[opts.Tier]
	if model == "" {
		model = b.opts.Models[completion.TierDeep]
	}
	temperature := b.opts.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := b.opts.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    buildMessages(prompt.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", mapError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text, nil
}

// Info returns metadata describing this backend.
func (b *Backend) Info() completion.Info { return completion.Info{Provider: "anthropic"} }

func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return messages
}

// mapError folds Anthropic API errors onto the core taxonomy.
func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: anthropic: %v", core.ErrRateLimited, err)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return fmt.Errorf("%w: anthropic: %v", core.ErrInvalidRequest, err)
		default:
			return fmt.Errorf("%w: anthropic: %v", core.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: anthropic: %v", core.ErrUnavailable, err)
}
