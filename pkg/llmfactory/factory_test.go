package llmfactory_test

import (
	"context"
	"testing"

	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFakeLLM(t *testing.T) {
	t.Helper()
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
}

func Test_Factory(t *testing.T) {
	withFakeLLM(t)

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 3)

	f := llmfactory.New(cfg)
	model, err := f.DefaultModel()
	require.NoError(t, err)
	fm := model.(*fakeLLM)
	assert.Equal(t, "deepseek-chat", fm.model)
	assert.Equal(t, "deepseek", fm.provider)

	model, err = f.ModelByName("gpt-4o-mini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o-mini", fm.model)
	assert.Equal(t, "openai", fm.provider)

	// the first known model wins
	model, err = f.ModelByName("unknown", "deepseek-reasoner")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "deepseek-reasoner", fm.model)
	assert.Equal(t, "deepseek", fm.provider)

	// fallback to default
	model, err = f.ModelByName("non-existent-model")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "deepseek-chat", fm.model)

	// cached by name
	m1, err := f.ModelByName("gpt-4o-mini")
	require.NoError(t, err)
	m2, err := f.ModelByName("gpt-4o-mini")
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	model, err = f.ModelByType("ANTHROPIC")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "claude-sonnet-4-20250514", fm.model)
	assert.Equal(t, "anthropic", fm.provider)

	model, err = f.ModelByType("OPEN_AI")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)

	_, err = f.ModelByType("BEDROCK")
	assert.EqualError(t, err, "provider not found for type: BEDROCK")
}

func Test_FactoryNoProviders(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel()
	assert.EqualError(t, err, "no providers configured")

	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)
}

func Test_LoadConfigTOML(t *testing.T) {
	t.Setenv("LLMFACTORY_TEST_TOKEN", "toml-token")

	cfg, err := llmfactory.LoadConfig("testdata/llm.toml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "local", cfg.DefaultProvider)
	assert.Equal(t, "toml-token", p.Token)
	assert.Equal(t, "qwen2.5", p.DefaultModel)
	assert.Equal(t, []string{"qwen2.5", "llama3.1"}, p.AvailableModels)
	assert.Equal(t, "OPENAI", p.OpenAI.APIType)
	assert.Equal(t, "http://localhost:11434/v1", p.OpenAI.BaseURL)

	assert.Equal(t, "llama3.1", p.FindModel("gpt-4o", "llama3.1"))
	assert.Equal(t, "qwen2.5", p.FindModel("gpt-4o"))

	_, err = llmfactory.LoadConfig("testdata/missing.toml")
	assert.Error(t, err)
}

func Test_FromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-token")
	t.Setenv("BASE_URL", "")
	t.Setenv("OPENAI_BASE_URL", "https://api.deepseek.com/v1")
	t.Setenv("MODEL_NAME", "")

	cfg := llmfactory.FromEnv()
	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "env-token", p.Token)
	assert.Equal(t, "deepseek-chat", p.DefaultModel)
	assert.Equal(t, "https://api.deepseek.com/v1", p.OpenAI.BaseURL)

	withFakeLLM(t)
	model, err := llmfactory.New(cfg).DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", model.(*fakeLLM).model)
}

func Test_CreateLLM(t *testing.T) {
	model, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Name:         "ds",
		Token:        "token",
		DefaultModel: "deepseek-chat",
		OpenAI:       llmfactory.OpenAIConfig{APIType: "openai", BaseURL: "http://localhost:1/v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())
	assert.Equal(t, "deepseek-chat", model.GetName())

	model, err = llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Name:         "claude",
		Token:        "token",
		DefaultModel: "claude-sonnet-4-20250514",
		OpenAI:       llmfactory.OpenAIConfig{APIType: "ANTHROPIC"},
	})
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderAnthropic, model.GetProviderType())

	_, err = llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		OpenAI: llmfactory.OpenAIConfig{APIType: "bedrock"},
	})
	assert.EqualError(t, err, "unsupported provider type: BEDROCK")
}

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

func (f *fakeLLM) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}
