package llms_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	mc := llms.MessageFromTextParts(llms.RoleHuman, "a", "b", "c")
	assert.Equal(t, llms.MessageFromParts(llms.RoleHuman, llms.TextPart("a"), llms.TextPart("b"), llms.TextPart("c")), mc)
	assert.Equal(t, "a\nb\nc", mc.GetContent())
	assert.Equal(t, "", llms.MessageFromTextParts(llms.RoleAI).GetContent())
}

func TestMessage_JSON(t *testing.T) {
	t.Parallel()
	msg := llms.MessageFromTextParts(llms.RoleSystem, "be brief", "use tools")
	js, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"system","parts":[{"type":"text","text":"be brief"},{"type":"text","text":"use tools"}]}`, string(js))

	var back llms.Message
	require.NoError(t, json.Unmarshal(js, &back))
	assert.Equal(t, msg, back)

	err = json.Unmarshal([]byte(`{"role":"tool","parts":[]}`), &back)
	assert.True(t, errors.Is(err, llms.ErrUnexpectedRole))

	err = json.Unmarshal([]byte(`{"role":"ai","parts":[{"type":"image"}]}`), &back)
	assert.EqualError(t, err, `unsupported part type: "image"`)
}

func TestOptions(t *testing.T) {
	t.Parallel()
	opts := llms.NewCallOptions(llms.CallOptions{Model: "default", MaxTokens: 1024},
		llms.WithModel("deepseek-chat"),
		llms.WithTemperature(0.5),
		llms.WithStopWords([]string{"</action>"}),
	)
	assert.Equal(t, &llms.CallOptions{
		Model:       "deepseek-chat",
		MaxTokens:   1024,
		Temperature: 0.5,
		StopWords:   []string{"</action>"},
	}, opts)

	opts = llms.NewCallOptions(llms.CallOptions{}, llms.WithOptions(llms.CallOptions{MaxTokens: 10}), llms.WithMaxTokens(20))
	assert.Equal(t, 20, opts.MaxTokens)
}
