package openai

import (
	"net/http"
	"os"

	"github.com/effective-security/x/values"
)

const (
	// TokenEnvVarName is the API key environment variable.
	TokenEnvVarName = "OPENAI_API_KEY" //nolint:gosec
	// BaseURLEnvVarName is the endpoint environment variable, OPENAI_BASE_URL is used when not set.
	BaseURLEnvVarName = "BASE_URL"
	// ModelEnvVarName is the model name environment variable.
	ModelEnvVarName = "MODEL_NAME"

	// DefaultModel is used when MODEL_NAME is not set.
	DefaultModel = "deepseek-chat"
	// DefaultBaseURL is used when no endpoint is configured.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Options for the OpenAI-compatible model.
type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns options from the environment.
func DefaultOptions() *Options {
	return &Options{
		Token:   os.Getenv(TokenEnvVarName),
		Model:   values.StringsCoalesce(os.Getenv(ModelEnvVarName), DefaultModel),
		BaseURL: values.StringsCoalesce(os.Getenv(BaseURLEnvVarName), os.Getenv("OPENAI_BASE_URL"), DefaultBaseURL),
	}
}

// WithToken passes the API key to the client.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL sets the endpoint, for example https://api.deepseek.com/v1.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithMaxRetries sets retries done by the SDK, the default is no retries.
func WithMaxRetries(retries int) Option {
	return func(opts *Options) {
		opts.MaxRetries = retries
	}
}
