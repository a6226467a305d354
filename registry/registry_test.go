package registry_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerEnv = "REGISTRY_TEST_PROVIDER"

func TestMain(m *testing.M) {
	if kind := os.Getenv(providerEnv); kind != "" {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		if err := provider(kind).Serve(context.Background(), stdio.NewServerTransport()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// provider returns the tool server run by the re-executed test binary.
func provider(kind string) *mcp.Server {
	srv := mcp.NewServer(kind, "1.0.0")
	text := func(s string) mcp.ToolHandler {
		return func(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(s + ":" + join(args)), nil
		}
	}
	switch kind {
	case "alpha":
		_ = srv.RegisterTool(&mcp.Tool{Name: "get_city_code", Description: "city code"}, text("code"))
		_ = srv.RegisterTool(&mcp.Tool{Name: "get_city_weather", Description: "weather"}, text("weather"))
	case "beta":
		_ = srv.RegisterTool(&mcp.Tool{Name: "web_search", Description: "search"}, text("search"))
		_ = srv.RegisterTool(&mcp.Tool{Name: "broken", Description: "fails"},
			func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
				return nil, errors.New("upstream unavailable")
			})
	case "dup":
		_ = srv.RegisterTool(&mcp.Tool{Name: "web_search", Description: "other search"}, text("dup"))
	}
	return srv
}

func join(args map[string]any) string {
	var parts []string
	for k, v := range args {
		s, _ := v.(string)
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, ",")
}

func helperConfig(t *testing.T, kinds ...string) *registry.ServersConfig {
	exe, err := os.Executable()
	require.NoError(t, err)

	cfg := &registry.ServersConfig{MCPServers: map[string]*registry.ServerConfig{}}
	for _, k := range kinds {
		cfg.MCPServers[k] = &registry.ServerConfig{
			Command: exe,
			Env:     map[string]string{providerEnv: k},
		}
	}
	return cfg
}

func TestRegistry_Subprocess(t *testing.T) {
	ctx := context.Background()
	r := registry.New()
	defer func() {
		require.NoError(t, r.Shutdown(ctx))
	}()

	require.NoError(t, r.Connect(ctx, helperConfig(t, "beta", "alpha")))
	assert.Equal(t, []string{"alpha", "beta"}, r.Connections())

	var names []string
	for _, tool := range r.ListTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"get_city_code", "get_city_weather", "broken", "web_search"}, names)

	res, err := r.Invoke(ctx, "get_city_code", map[string]any{"latitude": "39.9"})
	require.NoError(t, err)
	text, ok := res.Text()
	require.True(t, ok)
	assert.Equal(t, "code:latitude=39.9", text)

	res, err = r.Invoke(ctx, "web_search", map[string]any{"query": "go"})
	require.NoError(t, err)
	text, _ = res.Text()
	assert.Equal(t, "search:query=go", text)

	_, err = r.Invoke(ctx, "broken", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrToolExecution))
	var te *registry.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "upstream unavailable", te.Detail)

	_, err = r.Invoke(ctx, "missing", nil)
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))
}

func TestRegistry_SubprocessDuplicate(t *testing.T) {
	ctx := context.Background()
	r := registry.New()

	err := r.Connect(ctx, helperConfig(t, "beta", "dup"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.True(t, errors.Is(err, registry.ErrConnection))

	// both providers were started and are owned by the registry
	assert.Equal(t, []string{"beta", "dup"}, r.Connections())
	require.NoError(t, r.Shutdown(ctx))
	assert.Empty(t, r.Connections())
}

type fakeConn struct {
	name  string
	tools []*mcp.Tool
	calls []string
	log   *closeLog

	listErr  error
	closeErr error
	result   *mcp.CallToolResult
	callErr  error
}

type closeLog struct {
	lock  sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.names = append(l.names, name)
}

func (c *fakeConn) Name() string { return c.name }

func (c *fakeConn) ListTools(context.Context) ([]*mcp.Tool, error) {
	return c.tools, c.listErr
}

func (c *fakeConn) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	c.calls = append(c.calls, name)
	if c.callErr != nil {
		return nil, c.callErr
	}
	if c.result != nil {
		return c.result, nil
	}
	return mcp.NewToolResultText(c.name + "/" + name), nil
}

func (c *fakeConn) Close() error {
	c.log.add(c.name)
	return c.closeErr
}

func withConnections(t *testing.T, conns map[string]*fakeConn) {
	t.Helper()
	saved := registry.NewConnection
	t.Cleanup(func() { registry.NewConnection = saved })

	registry.NewConnection = func(_ context.Context, name string, _ *registry.ServerConfig) (registry.Connection, error) {
		c, ok := conns[name]
		if !ok {
			return nil, errors.Newf("cannot start %s", name)
		}
		return c, nil
	}
}

func config(names ...string) *registry.ServersConfig {
	cfg := &registry.ServersConfig{MCPServers: map[string]*registry.ServerConfig{}}
	for _, n := range names {
		cfg.MCPServers[n] = &registry.ServerConfig{Command: n}
	}
	return cfg
}

func tools(names ...string) []*mcp.Tool {
	var list []*mcp.Tool
	for _, n := range names {
		list = append(list, &mcp.Tool{Name: n})
	}
	return list
}

func TestRegistry_Routing(t *testing.T) {
	log := &closeLog{}
	a := &fakeConn{name: "a", tools: tools("one", "two"), log: log}
	b := &fakeConn{name: "b", tools: tools("three"), log: log}
	c := &fakeConn{name: "c", tools: tools("four"), log: log}
	withConnections(t, map[string]*fakeConn{"a": a, "b": b, "c": c})

	cfg := config("c", "a", "b")
	cfg.MCPServers["disabled"] = &registry.ServerConfig{Command: "x", Disabled: true}

	ctx := context.Background()
	r := registry.New()
	require.NoError(t, r.Connect(ctx, cfg))
	assert.Equal(t, []string{"a", "b", "c"}, r.Connections())
	assert.Len(t, r.ListTools(), 4)

	// the catalog is a copy
	list := r.ListTools()
	list[0] = nil
	assert.NotNil(t, r.ListTools()[0])

	res, err := r.Invoke(ctx, "three", nil)
	require.NoError(t, err)
	text, _ := res.Text()
	assert.Equal(t, "b/three", text)

	_, err = r.Invoke(ctx, "five", nil)
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))
	assert.Empty(t, a.calls)
	assert.Empty(t, c.calls)
	assert.Equal(t, []string{"three"}, b.calls)

	b.callErr = errors.New("broken pipe")
	_, err = r.Invoke(ctx, "three", nil)
	assert.True(t, errors.Is(err, registry.ErrTransport))

	b.callErr = nil
	b.result = mcp.NewToolResultError("bad input")
	res, err = r.Invoke(ctx, "three", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrToolExecution))
	assert.False(t, errors.Is(err, registry.ErrTransport))
	assert.True(t, res.IsError)
	assert.Equal(t, "tool three failed: bad input", err.Error())

	require.NoError(t, r.Shutdown(ctx))
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, []string{"c", "b", "a"}, log.names)

	_, err = r.Invoke(ctx, "one", nil)
	assert.True(t, errors.Is(err, registry.ErrShutdown))
	assert.True(t, errors.Is(r.Connect(ctx, cfg), registry.ErrShutdown))
}

func TestRegistry_ConnectFailure(t *testing.T) {
	log := &closeLog{}
	a := &fakeConn{name: "a", tools: tools("one"), log: log}
	withConnections(t, map[string]*fakeConn{"a": a})

	ctx := context.Background()
	r := registry.New()
	err := r.Connect(ctx, config("a", "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrConnection))
	assert.Contains(t, err.Error(), "cannot start b")

	// a is owned and released on shutdown
	assert.Equal(t, []string{"a"}, r.Connections())
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, []string{"a"}, log.names)
}

func TestRegistry_ListFailure(t *testing.T) {
	log := &closeLog{}
	a := &fakeConn{name: "a", listErr: errors.New("timeout"), log: log}
	withConnections(t, map[string]*fakeConn{"a": a})

	ctx := context.Background()
	r := registry.New()
	err := r.Connect(ctx, config("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrConnection))
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, []string{"a"}, log.names)
}

func TestRegistry_Duplicate(t *testing.T) {
	log := &closeLog{}
	a := &fakeConn{name: "a", tools: tools("search"), log: log}
	b := &fakeConn{name: "b", tools: tools("other", "search"), log: log}
	withConnections(t, map[string]*fakeConn{"a": a, "b": b})

	ctx := context.Background()
	r := registry.New()
	err := r.Connect(ctx, config("a", "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.Contains(t, err.Error(), `tool "search" is provided by a and b`)

	// nothing from b is routed
	assert.Len(t, r.ListTools(), 1)
	_, err = r.Invoke(ctx, "other", nil)
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))

	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, []string{"b", "a"}, log.names)
}

func TestRegistry_ShutdownErrors(t *testing.T) {
	log := &closeLog{}
	a := &fakeConn{name: "a", log: log, closeErr: errors.New("a stuck")}
	b := &fakeConn{name: "b", log: log, closeErr: errors.New("b stuck")}
	withConnections(t, map[string]*fakeConn{"a": a, "b": b})

	ctx := context.Background()
	r := registry.New()
	require.NoError(t, r.Connect(ctx, config("a", "b")))

	err := r.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b stuck")
	assert.Equal(t, []string{"b", "a"}, log.names)
}

func TestRegistry_ConnectCancelled(t *testing.T) {
	withConnections(t, map[string]*fakeConn{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := registry.New()
	err := r.Connect(ctx, config("a"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, r.Connections())
}
