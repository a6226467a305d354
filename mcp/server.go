package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/internal/protocol"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

// ToolHandler executes a tool call.
// A returned error is reported to the client as a result with IsError set.
type ToolHandler func(ctx context.Context, args map[string]any) (*CallToolResult, error)

type registeredTool struct {
	tool    *Tool
	handler ToolHandler
}

// Server exposes tools to a single client.
type Server struct {
	info         Implementation
	instructions string

	lock  sync.RWMutex
	tools map[string]*registeredTool
}

// NewServer returns a server with the given implementation info.
func NewServer(name, version string) *Server {
	return &Server{
		info:  Implementation{Name: name, Version: version},
		tools: make(map[string]*registeredTool),
	}
}

// WithInstructions sets instructions returned on initialize.
func (s *Server) WithInstructions(instructions string) *Server {
	s.instructions = instructions
	return s
}

// RegisterTool adds a tool, a tool with the same name is replaced.
func (s *Server) RegisterTool(tool *Tool, handler ToolHandler) error {
	if tool == nil || tool.Name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return errors.Newf("handler is required for tool %s", tool.Name)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
	return nil
}

// Tools returns registered tools sorted by name.
func (s *Server) Tools() []*Tool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		list = append(list, t.tool)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Serve handles requests from the transport until it is closed or ctx is done.
func (s *Server) Serve(ctx context.Context, tr transport.Transport) error {
	proto := protocol.NewProtocol()

	closed := make(chan struct{})
	var once sync.Once
	proto.OnClose = func() {
		once.Do(func() { close(closed) })
	}
	proto.OnError = func(err error) {
		logger.KV(xlog.DEBUG, "server", s.info.Name, "err", err.Error())
	}

	proto.SetRequestHandler("initialize", s.handleInitialize)
	proto.SetRequestHandler("ping", func(context.Context, *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
		return map[string]any{}, nil
	})
	proto.SetRequestHandler("tools/list", s.handleListTools)
	proto.SetRequestHandler("tools/call", s.handleCallTool)
	proto.SetNotificationHandler("notifications/initialized", func(*transport.BaseJSONRPCNotification) error {
		logger.KV(xlog.DEBUG, "server", s.info.Name, "status", "initialized")
		return nil
	})

	if err := proto.Connect(tr); err != nil {
		return errors.Wrap(err, "failed to connect transport")
	}

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		_ = proto.Close()
		return errors.WithStack(ctx.Err())
	}
}

func (s *Server) handleInitialize(_ context.Context, req *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	params := new(InitializeParams)
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, params); err != nil {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: err.Error()}
		}
	}

	logger.KV(xlog.DEBUG,
		"server", s.info.Name,
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol", params.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handleListTools(context.Context, *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	return &ListToolsResult{Tools: s.Tools()}, nil
}

func (s *Server) handleCallTool(ctx context.Context, req *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	params := new(CallToolParams)
	if err := json.Unmarshal(req.Params, params); err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: err.Error()}
	}

	s.lock.RLock()
	t := s.tools[params.Name]
	s.lock.RUnlock()

	if t == nil {
		return nil, &protocol.RPCError{
			Code:    protocol.CodeInvalidParams,
			Message: "unknown tool: " + params.Name,
		}
	}

	res, err := t.handler(ctx, params.Arguments)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "tool", params.Name, "err", err.Error())
		return NewToolResultError(err.Error()), nil
	}
	if res == nil {
		res = &CallToolResult{Content: []Content{}}
	}
	return res, nil
}
