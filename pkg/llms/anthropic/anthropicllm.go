// Package anthropic implements llms.Model over the Anthropic messages API.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrMissingToken = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
)

const DefaultMaxTokens = 4096

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic model.
func New(opts ...Option) (*LLM, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, errors.WithStack(ErrMissingToken)
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(5 * time.Minute),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// System messages are sent as the system prompt, text blocks of the reply are
// returned as one choice.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.Options.Model}, options...)

	var (
		system []string
		params = anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.Model),
			MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
		}
	)

	for _, msg := range messages {
		text := msg.GetContent()
		switch msg.Role {
		case llms.RoleSystem:
			system = append(system, text)
		case llms.RoleHuman:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case llms.RoleAI:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "anthropic: role %q", msg.Role)
		}
	}

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: strings.Join(system, "\n"),
			},
		}
	}
	params.Temperature = anthropic.Float(opts.Temperature)
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if len(result.Content) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    text.String(),
				StopReason: string(result.StopReason),
				GenerationInfo: map[string]any{
					"InputTokens":  result.Usage.InputTokens,
					"OutputTokens": result.Usage.OutputTokens,
					"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
					"ID":           result.ID,
				},
			},
		},
	}, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return errors.Mark(errors.Wrapf(err, "anthropic: request rejected"), llms.ErrInvalidRequest)
		}
	}
	return errors.Wrap(err, "anthropic: failed to create message")
}
