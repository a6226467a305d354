package llmutils_test

import (
	"bytes"
	"testing"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	// the same
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, `get_city_code(latitude=39.9)`, llmutils.TrimBackticks("```get_city_code(latitude=39.9)```"))
}

func Test_EnsureNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline(""))
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline("  \n"))
	assert.Equal(t, "test\n", llmutils.EnsureEndsWithNewline("test"))
	assert.Equal(t, "test\n", llmutils.EnsureEndsWithNewline("  test \n\n"))
}

func Test_ToJSON(t *testing.T) {
	val := map[string]any{"name": "get_city_code", "args": []int{1, 2}}
	assert.Equal(t, `{"args":[1,2],"name":"get_city_code"}`, llmutils.ToJSON(val))
	assert.Equal(t, "{\n\t\"args\": [\n\t\t1,\n\t\t2\n\t],\n\t\"name\": \"get_city_code\"\n}", llmutils.ToJSONIndent(val))
	assert.Equal(t, "args:\n    - 1\n    - 2\nname: get_city_code\n", llmutils.ToYAML(val))
}

func transcript() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are helpful"),
		llms.MessageFromTextParts(llms.RoleHuman, "What is the weather?"),
		llms.MessageFromTextParts(llms.RoleAI, "Action: get_city_code(latitude=39.9)"),
		llms.MessageFromTextParts(llms.RoleHuman, "Observation: 101010100"),
	}
}

func Test_PrintMessages(t *testing.T) {
	var buf bytes.Buffer
	llmutils.PrintMessages(&buf, transcript())
	assert.Equal(t, "SYSTEM: You are helpful\n"+
		"HUMAN: What is the weather?\n"+
		"AI: Action: get_city_code(latitude=39.9)\n"+
		"HUMAN: Observation: 101010100\n", buf.String())

	buf.Reset()
	llmutils.PrintMessages(&buf, transcript(), llms.RoleAI)
	assert.Equal(t, "AI: Action: get_city_code(latitude=39.9)\n", buf.String())
}

func Test_FindLastUserQuestion(t *testing.T) {
	assert.Equal(t, "Observation: 101010100", llmutils.FindLastUserQuestion(transcript()))
	assert.Empty(t, llmutils.FindLastUserQuestion(transcript()[:1]))
	assert.Empty(t, llmutils.FindLastUserQuestion(nil))
}

func Test_CountMessagesContentSize(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hello"),
		llms.MessageFromTextParts(llms.RoleAI, "hi"),
	}
	// "human" + "hello" + "ai" + "hi"
	assert.Equal(t, uint64(14), llmutils.CountMessagesContentSize(msgs))
}

func Test_CountResponseContentSize(t *testing.T) {
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "hello"},
			{Content: "world!"},
		},
	}
	assert.Equal(t, uint64(11), llmutils.CountResponseContentSize(resp))
}

func Test_CountTokens(t *testing.T) {
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{GenerationInfo: map[string]any{"InputTokens": int64(10), "OutputTokens": int64(5), "TotalTokens": int64(15)}},
			{GenerationInfo: map[string]any{"InputTokens": int64(1), "OutputTokens": int64(2), "TotalTokens": int64(3)}},
			{},
		},
	}
	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(11), in)
	assert.Equal(t, int64(7), out)
	assert.Equal(t, int64(18), total)
}
