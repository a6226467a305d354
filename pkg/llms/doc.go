// Package llms defines the chat model abstraction used by the agent.
//
// Subpackages implement provider-specific models: openai for any
// OpenAI-compatible chat completion endpoint and anthropic for the
// Anthropic messages API.
package llms
