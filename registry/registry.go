// Package registry connects to tool providers, aggregates their tool
// catalogs and routes tool invocations to the provider that owns the tool.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "registry")

var (
	// ErrUnknownTool is returned by Invoke for a name that no provider exposes.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolExecution is returned by Invoke when the tool reports a failure.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrConnection marks provider launch and handshake failures.
	ErrConnection = errors.New("provider connection failed")
	// ErrDuplicateTool is returned by Connect when two providers expose the same tool.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrTransport marks failures of the channel to a provider.
	ErrTransport = errors.New("provider transport failed")
	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("registry is shut down")
)

// ToolError carries the failure detail reported by a tool.
// It matches ErrToolExecution with errors.Is.
type ToolError struct {
	Tool   string
	Detail string
}

func (e *ToolError) Error() string {
	return "tool " + e.Tool + " failed: " + e.Detail
}

// Is implements errors.Is.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolExecution
}

// Connection is a session with one provider.
type Connection interface {
	Name() string
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// NewConnection starts a provider and returns an initialized connection.
// It is a variable so tests can replace the launcher.
var NewConnection = launch

func launch(ctx context.Context, name string, cfg *ServerConfig) (Connection, error) {
	return mcp.Launch(ctx, &mcp.Command{
		Name: name,
		Path: cfg.Command,
		Args: cfg.Args,
		Env:  cfg.Env,
	})
}

// Registry owns provider connections and the tool routing table.
// The catalog does not change after Connect, Invoke is safe for concurrent use.
type Registry struct {
	lock     sync.RWMutex
	conns    []Connection
	tools    []*mcp.Tool
	routes   map[string]Connection
	shutdown bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		routes: make(map[string]Connection),
	}
}

// Connect starts every enabled provider in name order and builds the routing table.
// It stops at the first failure, connections established before the failure
// stay owned by the registry and are released by Shutdown.
func (r *Registry) Connect(ctx context.Context, cfg *ServersConfig) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.shutdown {
		return errors.WithStack(ErrShutdown)
	}

	for _, name := range cfg.Names() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if err := r.connect(ctx, name, cfg.MCPServers[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) connect(ctx context.Context, name string, cfg *ServerConfig) error {
	started := time.Now()

	conn, err := NewConnection(ctx, name, cfg)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "server", name, "err", err.Error())
		return errors.Mark(errors.Wrapf(err, "failed to connect to server %s", name), ErrConnection)
	}
	r.conns = append(r.conns, conn)

	tools, err := conn.ListTools(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "server", name, "err", err.Error())
		return errors.Mark(errors.Wrapf(err, "failed to list tools of server %s", name), ErrConnection)
	}

	for _, t := range tools {
		if owner, ok := r.routes[t.Name]; ok {
			err = errors.Wrapf(ErrDuplicateTool, "tool %q is provided by %s and %s", t.Name, owner.Name(), name)
			return errors.Mark(err, ErrConnection)
		}
	}
	for _, t := range tools {
		r.routes[t.Name] = conn
		r.tools = append(r.tools, t)
	}

	metricskey.PerfServerConnect.MeasureSince(started, name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"server", name,
		"tools", toolNames(tools),
	)
	return nil
}

// ListTools returns the catalog in acquisition order.
func (r *Registry) ListTools() []*mcp.Tool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*mcp.Tool, len(r.tools))
	copy(list, r.tools)
	return list
}

// Connections returns provider names in connection order.
func (r *Registry) Connections() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.conns))
	for _, c := range r.conns {
		names = append(names, c.Name())
	}
	return names
}

// Invoke calls the named tool on the provider that owns it.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	r.lock.RLock()
	conn := r.routes[name]
	shutdown := r.shutdown
	r.lock.RUnlock()

	if shutdown {
		return nil, errors.WithStack(ErrShutdown)
	}
	if conn == nil {
		return nil, errors.Wrapf(ErrUnknownTool, "%q", name)
	}

	started := time.Now()
	res, err := conn.CallTool(ctx, name, args)
	metricskey.PerfToolCall.MeasureSince(started, name)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.ERROR,
			"tool", name,
			"server", conn.Name(),
			"err", err.Error(),
		)
		return nil, errors.Mark(err, ErrTransport)
	}

	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		detail, _ := res.Text()
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", name,
			"server", conn.Name(),
			"detail", detail,
		)
		return res, &ToolError{Tool: name, Detail: detail}
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	return res, nil
}

// Shutdown closes connections in reverse connection order.
// It is safe to call more than once, each connection is closed once.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.lock.Lock()
	conns := r.conns
	r.conns = nil
	r.routes = make(map[string]Connection)
	r.tools = nil
	r.shutdown = true
	r.lock.Unlock()

	var errs error
	for i := len(conns) - 1; i >= 0; i-- {
		c := conns[i]
		if err := c.Close(); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "close_failed",
				"server", c.Name(),
				"err", err.Error(),
			)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "failed to close server %s", c.Name()))
			continue
		}
		logger.ContextKV(ctx, xlog.DEBUG, "status", "closed", "server", c.Name())
	}
	return errs
}

func toolNames(tools []*mcp.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
