package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

// ErrFailedUnmarshalInput is returned when call arguments do not match the input type.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

var validate = validator.New()

// ITool describes a tool.
type ITool interface {
	// Name returns the name of the tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
}

// Tool is a tool with a typed input and output.
// The output is rendered with its String method when it has one,
// as JSON otherwise.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// ErrorFormatter is implemented by tools that report failures as
// a regular text result instead of an error result.
type ErrorFormatter interface {
	FormatError(err error) string
}

// Registrator is implemented by *mcp.Server.
type Registrator interface {
	RegisterTool(tool *mcp.Tool, handler mcp.ToolHandler) error
}

// Definition returns the MCP descriptor of the tool.
func Definition[I any, O any](t Tool[I, O]) (*mcp.Tool, error) {
	return mcp.NewTool(t.Name(), t.Description(), new(I))
}

// Register adds the tool to the server.
func Register[I any, O any](srv Registrator, t Tool[I, O]) error {
	def, err := Definition(t)
	if err != nil {
		return err
	}
	return srv.RegisterTool(def, Handler(t))
}

// Handler returns the MCP handler of the tool.
func Handler[I any, O any](t Tool[I, O]) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		in := new(I)
		if err := Decode(args, in); err != nil {
			return nil, err
		}

		out, err := t.Run(ctx, in)
		if err != nil {
			if f, ok := t.(ErrorFormatter); ok {
				return mcp.NewToolResultText(f.FormatError(err)), nil
			}
			return nil, err
		}
		if out == nil {
			return mcp.NewToolResultText(""), nil
		}
		return mcp.NewToolResultText(Render(out)), nil
	}
}

// Decode converts call arguments into the input struct and validates it.
func Decode(args map[string]any, in any) error {
	js, err := json.Marshal(args)
	if err != nil {
		return errors.Mark(errors.WithStack(err), ErrFailedUnmarshalInput)
	}
	if err = json.Unmarshal(js, in); err != nil {
		return errors.WithStack(ErrFailedUnmarshalInput)
	}
	if err = validate.Struct(in); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid input"), ErrFailedUnmarshalInput)
	}
	return nil
}

// Render returns the text of a tool output.
func Render(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	case *string:
		return *v
	default:
		return llmutils.ToJSON(v)
	}
}
