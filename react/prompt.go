package react

import (
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
)

// DefaultPromptTemplate is the system prompt of the agent.
//
//go:embed prompt.tmpl
var DefaultPromptTemplate string

// PromptInput is the data of the system prompt template.
type PromptInput struct {
	// ToolList is the JSON list of tool descriptors.
	ToolList string
	// Tools is the tool catalog.
	Tools []*mcp.Tool
	// CurrentDate is YYYY-MM-DD.
	CurrentDate string
}

// ToolDescriptor is a tool as presented to the model.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ParsePromptTemplate parses a system prompt template,
// sprig functions are available to the template.
func ParsePromptTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("system").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid prompt template")
	}
	return tmpl, nil
}

// ToolList renders the catalog as a JSON list of descriptors.
func ToolList(tools []*mcp.Tool) (string, error) {
	list := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{}`)
		}
		list = append(list, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	js, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "unable to render tool list")
	}
	return string(js), nil
}

func renderPrompt(tmpl *template.Template, input *PromptInput) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", errors.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
