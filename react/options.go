package react

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/effective-security/mcpagent/callbacks"
)

const (
	// DefaultMaxTurns is the number of model turns allowed for one query.
	DefaultMaxTurns = 20
	// DefaultMaxTokens is the output limit of a model turn.
	DefaultMaxTokens = 1024
	// DefaultMaxRetries is the number of retries of a failed model call.
	DefaultMaxRetries = 3
)

// Option configures the Driver.
type Option func(*Config)

// Config of the Driver.
type Config struct {
	// MaxTurns limits model turns per query.
	MaxTurns int
	// Model overrides the model name, the model default is used when empty.
	Model string
	// Temperature of the model calls.
	Temperature float64
	// MaxTokens limits the output of each model call.
	MaxTokens int
	// MaxRetries of a model call that failed with a transient error.
	MaxRetries int
	// BackOff returns the delay policy between retries.
	BackOff func() backoff.BackOff
	// Callback receives query events.
	Callback Callback
	// PromptTemplate is the system prompt template.
	PromptTemplate string
	// Now returns the current time for the prompt.
	Now func() time.Time
}

// NewConfig returns the configuration with defaults applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxTurns:       DefaultMaxTurns,
		MaxTokens:      DefaultMaxTokens,
		MaxRetries:     DefaultMaxRetries,
		BackOff:        defaultBackOff,
		Callback:       callbacks.NewNoop(),
		PromptTemplate: DefaultPromptTemplate,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// WithMaxTurns limits the number of model turns of a query.
func WithMaxTurns(turns int) Option {
	return func(o *Config) {
		if turns > 0 {
			o.MaxTurns = turns
		}
	}
}

// WithModelName is an option that allows to specify the model name.
func WithModelName(model string) Option {
	return func(o *Config) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature, 0 by default.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
	}
}

// WithMaxTokens sets the output limit of a model call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		if maxTokens > 0 {
			o.MaxTokens = maxTokens
		}
	}
}

// WithMaxRetries sets the number of retries of a failed model call,
// 0 disables retries.
func WithMaxRetries(retries int) Option {
	return func(o *Config) {
		if retries >= 0 {
			o.MaxRetries = retries
		}
	}
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(o *Config) {
		if fn != nil {
			o.BackOff = fn
		}
	}
}

// WithCallback sets the callback handler.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		if cb != nil {
			o.Callback = cb
		}
	}
}

// WithPromptTemplate replaces the system prompt template.
func WithPromptTemplate(tmpl string) Option {
	return func(o *Config) {
		if tmpl != "" {
			o.PromptTemplate = tmpl
		}
	}
}

// WithClock sets the time source of the prompt date.
func WithClock(now func() time.Time) Option {
	return func(o *Config) {
		if now != nil {
			o.Now = now
		}
	}
}
