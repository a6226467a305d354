package mcp

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ProtocolVersion is the MCP protocol revision spoken by the client and server.
const ProtocolVersion = "2024-11-05"

// Implementation describes a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is sent by the client to start the session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the server reply to initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// Tool describes a tool exposed by a provider.
// InputSchema is kept as received, providers are free to use any JSON
// schema dialect.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Schema decodes the input schema.
func (t *Tool) Schema() (*jsonschema.Schema, error) {
	s := new(jsonschema.Schema)
	if len(t.InputSchema) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(t.InputSchema, s); err != nil {
		return nil, errors.Wrapf(err, "invalid input schema for tool %s", t.Name)
	}
	return s, nil
}

// NewTool returns a tool whose input schema is reflected from the
// arguments type, for example a struct with json and jsonschema tags.
func NewTool(name, description string, args any) (*Tool, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(args)
	s.Version = ""
	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build schema for tool %s", name)
	}
	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: js,
	}, nil
}

// ListToolsParams is the tools/list request.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the tools/list reply.
type ListToolsResult struct {
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// CallToolParams is the tools/call request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content types
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// Content is a single item of a tool result.
type Content struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// CallToolResult is the tools/call reply.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewTextContent returns a text content item.
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// NewToolResultText returns a successful result with one text item.
func NewToolResultText(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{NewTextContent(text)}}
}

// NewToolResultError returns a failed result with the error message.
func NewToolResultError(text string) *CallToolResult {
	return &CallToolResult{
		Content: []Content{NewTextContent(text)},
		IsError: true,
	}
}

// Text returns the first content item when it is text.
func (r *CallToolResult) Text() (string, bool) {
	if r == nil || len(r.Content) == 0 || r.Content[0].Type != ContentTypeText {
		return "", false
	}
	return r.Content[0].Text, true
}
