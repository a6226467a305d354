// Package llmfactory creates chat models from provider configuration,
// loaded from a YAML, JSON or TOML file or from the environment.
package llmfactory
