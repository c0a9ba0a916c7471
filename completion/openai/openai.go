// Package openai provides a completion.Backend using the OpenAI Chat
// Completions API. It adapts Haystack's normalized Prompt/Options structures
// into the SDK's message format and maps API failures onto the core error
// taxonomy.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI backend. Tier-to-model mapping is explicit so
// deployments can pin concrete models without code changes.
type Options struct {
	Models      map[completion.Tier]string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the OpenAI Chat Completions API behind completion.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI backend using the official client. Credentials
// come from Options.APIKey, falling back to the environment.
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates a new OpenAI backend from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Models: map[completion.Tier]string{
			completion.TierFast: openai.ChatModelGPT4oMini,
			completion.TierDeep: openai.ChatModelGPT4o,
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Complete implements completion.Backend for a single attempt.
func (b *Backend) Complete(ctx context.Context, prompt completion.Prompt, opts completion.Options) (string, error) {
	params := b.buildParams(prompt, opts)

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", core.ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Info returns metadata describing this backend.
func (b *Backend) Info() completion.Info { return completion.Info{Provider: "openai"} }

func (b *Backend) buildParams(prompt completion.Prompt, opts completion.Options) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	for _, m := range prompt.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Text))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}

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

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

// mapError folds OpenAI API errors onto the core taxonomy: 429 is rate
// limiting, other 4xx are caller bugs, everything else is transient.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: openai: %v", core.ErrRateLimited, err)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return fmt.Errorf("%w: openai: %v", core.ErrInvalidRequest, err)
		default:
			return fmt.Errorf("%w: openai: %v", core.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: openai: %v", core.ErrUnavailable, err)
}
