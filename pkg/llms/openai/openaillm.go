// Package openai implements llms.Model over any OpenAI-compatible chat
// completion endpoint.
package openai

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/pkg/llms", "openai")

// ErrMissingToken is returned when no API key is configured.
var ErrMissingToken = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")

// LLM is a chat model served by an OpenAI-compatible endpoint.
type LLM struct {
	client  *openai.Client
	options *Options
}

var _ llms.Model = (*LLM)(nil)

// New returns a model configured from the environment and options.
func New(opts ...Option) (*LLM, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.Token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}
	if options.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithBaseURL(options.BaseURL),
		option.WithMaxRetries(options.MaxRetries),
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := openai.NewClient(sdkOpts...)
	return &LLM{
		client:  &client,
		options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.options.Model}, options...)

	chatMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		text := mc.GetContent()
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openai.SystemMessage(text))
		case llms.RoleHuman:
			chatMsgs = append(chatMsgs, openai.UserMessage(text))
		case llms.RoleAI:
			chatMsgs = append(chatMsgs, openai.AssistantMessage(text))
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "openai: role %q", mc.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(opts.Model),
		Messages:    chatMsgs,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", resp.Model,
		"id", resp.ID,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	choices := make([]*llms.ContentChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  resp.Usage.PromptTokens,
				"OutputTokens": resp.Usage.CompletionTokens,
				"TotalTokens":  resp.Usage.TotalTokens,
				"ID":           resp.ID,
				"Index":        i,
			},
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// classify marks client errors that will fail again on retry.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return errors.Mark(errors.Wrapf(err, "openai: request rejected"), llms.ErrInvalidRequest)
		}
	}
	return errors.Wrap(err, "openai: failed to create chat completion")
}
