package llms

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderOpenAI is the type of provider, it covers OpenAI-compatible endpoints.
	ProviderOpenAI ProviderType = "OPENAI"
)

var (
	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("no response from model")
	// ErrInvalidRequest marks errors that will not succeed on retry,
	// for example a rejected API key or an unknown model.
	ErrInvalidRequest = errors.New("invalid model request")
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the default model name.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}
