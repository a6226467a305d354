package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/internal/protocol"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "mcp")

// ClientInfo is sent to providers during initialize.
var ClientInfo = Implementation{
	Name:    "mcpagent",
	Version: "1.0.0",
}

// ErrNotInitialized is returned when a call is made before Initialize.
var ErrNotInitialized = errors.New("client is not initialized")

// Client is a session with a single tool provider.
// Calls are serialized: at most one request is in flight per client.
type Client struct {
	name  string
	proto *protocol.Protocol

	mu          sync.Mutex
	initialized bool
	server      *InitializeResult
	closed      chan struct{}
	closeOnce   sync.Once
	callTimeout time.Duration
}

// NewClient connects a client over the transport.
// Initialize must be called before any other request.
func NewClient(name string, tr transport.Transport) (*Client, error) {
	c := &Client{
		name:   name,
		proto:  protocol.NewProtocol(),
		closed: make(chan struct{}),
	}
	c.proto.OnClose = func() {
		c.closeOnce.Do(func() { close(c.closed) })
	}
	c.proto.OnError = func(err error) {
		logger.KV(xlog.DEBUG, "server", name, "err", err.Error())
	}
	if err := c.proto.Connect(tr); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", name)
	}
	return c, nil
}

// WithCallTimeout sets the timeout for tools/call, the protocol default is used otherwise.
func (c *Client) WithCallTimeout(timeout time.Duration) *Client {
	c.callTimeout = timeout
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// ServerInfo returns the initialize reply, nil before Initialize.
func (c *Client) ServerInfo() *InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Done is closed when the connection to the provider is lost.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Initialize performs the handshake: initialize followed by notifications/initialized.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return c.server, nil
	}

	raw, err := c.proto.Request(ctx, "initialize", &InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "initialize %s", c.name)
	}

	res := new(InitializeResult)
	if err = json.Unmarshal(raw, res); err != nil {
		return nil, errors.Wrapf(err, "invalid initialize result from %s", c.name)
	}

	if err = c.proto.Notification("notifications/initialized", nil); err != nil {
		return nil, errors.Wrapf(err, "initialized notification to %s", c.name)
	}

	c.server = res
	c.initialized = true

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "initialized",
		"server", c.name,
		"server_name", res.ServerInfo.Name,
		"server_version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return res, nil
}

// ListTools returns all tools of the provider, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, errors.WithStack(ErrNotInitialized)
	}

	var (
		list   []*Tool
		cursor string
	)
	for {
		var params any
		if cursor != "" {
			params = &ListToolsParams{Cursor: cursor}
		}
		raw, err := c.proto.Request(ctx, "tools/list", params, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "tools/list %s", c.name)
		}

		res := new(ListToolsResult)
		if err = json.Unmarshal(raw, res); err != nil {
			return nil, errors.Wrapf(err, "invalid tools/list result from %s", c.name)
		}
		list = append(list, res.Tools...)

		if res.NextCursor == "" || res.NextCursor == cursor {
			break
		}
		cursor = res.NextCursor
	}
	return list, nil
}

// CallTool invokes a tool. A result with IsError set is returned without error,
// the caller decides how to treat it.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, errors.WithStack(ErrNotInitialized)
	}

	var opts *protocol.RequestOptions
	if c.callTimeout > 0 {
		opts = &protocol.RequestOptions{Timeout: c.callTimeout}
	}

	raw, err := c.proto.Request(ctx, "tools/call", &CallToolParams{
		Name:      name,
		Arguments: args,
	}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "tools/call %s on %s", name, c.name)
	}

	res := new(CallToolResult)
	if err = json.Unmarshal(raw, res); err != nil {
		return nil, errors.Wrapf(err, "invalid tools/call result from %s", c.name)
	}
	return res, nil
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.proto.Close()
}
