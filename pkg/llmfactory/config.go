package llmfactory

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms/openai"
	"github.com/effective-security/x/configloader"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider" toml:"default_provider"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name" toml:"name"`
	Token           string       `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
	DefaultModel    string       `json:"default_model,omitempty" yaml:"default_model,omitempty" toml:"default_model,omitempty"`
	AvailableModels []string     `json:"available_models,omitempty" yaml:"available_models,omitempty" toml:"available_models,omitempty"`
	OpenAI          OpenAIConfig `json:"open_ai" yaml:"open_ai" toml:"open_ai"`
}

// OpenAIConfig specifies options config
type OpenAIConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	// APIType specifies the type of API to use:
	// OPENAI|ANTHROPIC
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" toml:"api_type,omitempty"`
}

func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file, .toml files are decoded with TOML,
// other files as YAML or JSON.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	if strings.EqualFold(filepath.Ext(file), ".toml") {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err = toml.Decode(os.ExpandEnv(string(data)), cfg); err != nil {
			return nil, errors.Wrapf(err, "unable to decode %s", file)
		}
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns configuration with a single OpenAI-compatible provider
// configured by OPENAI_API_KEY, BASE_URL (or OPENAI_BASE_URL) and MODEL_NAME.
func FromEnv() *Config {
	opts := openai.DefaultOptions()
	return &Config{
		DefaultProvider: "env",
		Providers: []*ProviderConfig{
			{
				Name:            "env",
				Token:           opts.Token,
				DefaultModel:    opts.Model,
				AvailableModels: []string{opts.Model},
				OpenAI: OpenAIConfig{
					APIType: "OPENAI",
					BaseURL: opts.BaseURL,
				},
			},
		},
	}
}
