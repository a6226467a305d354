package anthropic

import (
	"net/http"
	"os"
)

const (
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

	DefaultBaseURL = "https://api.anthropic.com"
)

type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
}

type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel passes the Anthropic model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL passes the Anthropic base URL to the client.
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

// WithMaxRetries sets retries done by the SDK.
func WithMaxRetries(retries int) Option {
	return func(opts *Options) {
		opts.MaxRetries = retries
	}
}

func defaultOptions() *Options {
	return &Options{
		Token:   os.Getenv(TokenEnvVarName),
		BaseURL: DefaultBaseURL,
	}
}
