package mcp_test

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "MCP_TEST_PROVIDER"

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=Message to echo"`
}

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		// provider mode: the test binary serves tools over its stdio
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		err := newTestServer().Serve(context.Background(), stdio.NewServerTransport())
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestServer() *mcp.Server {
	srv := mcp.NewServer("test-provider", "0.1.0")

	echo, err := mcp.NewTool("echo", "Echoes the message", &echoArgs{})
	if err != nil {
		panic(err)
	}
	_ = srv.RegisterTool(echo, func(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		msg, _ := args["message"].(string)
		return mcp.NewToolResultText("echo: " + msg), nil
	})

	_ = srv.RegisterTool(&mcp.Tool{Name: "fail", Description: "Always fails"},
		func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		})

	_ = srv.RegisterTool(&mcp.Tool{Name: "wait", Description: "Waits for cancellation"},
		func(ctx context.Context, _ map[string]any) (*mcp.CallToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	return srv
}

type closers []io.Closer

func (c closers) Close() error {
	for _, cl := range c {
		_ = cl.Close()
	}
	return nil
}

// connect wires a client and a server with in-memory pipes.
func connect(t *testing.T, srv *mcp.Server) (*mcp.Client, <-chan error) {
	t.Helper()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(context.Background(), stdio.New(c2sR, s2cW, s2cW))
	}()

	client, err := mcp.NewClient("test", stdio.New(s2cR, c2sW, closers{c2sW, s2cR}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, served
}

func TestClient_NotInitialized(t *testing.T) {
	client, _ := connect(t, newTestServer())

	_, err := client.ListTools(context.Background())
	assert.True(t, errors.Is(err, mcp.ErrNotInitialized))

	_, err = client.CallTool(context.Background(), "echo", nil)
	assert.True(t, errors.Is(err, mcp.ErrNotInitialized))
	assert.Nil(t, client.ServerInfo())
}

func TestClient_Session(t *testing.T) {
	ctx := context.Background()
	client, served := connect(t, newTestServer())
	assert.Equal(t, "test", client.Name())

	res, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, mcp.ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, "test-provider", res.ServerInfo.Name)
	assert.Equal(t, "0.1.0", res.ServerInfo.Version)

	// second call is a no-op
	res2, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Same(t, res, res2)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "fail", tools[1].Name)
	assert.Equal(t, "wait", tools[2].Name)

	schema, err := tools[0].Schema()
	require.NoError(t, err)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"message"}, schema.Required)
	prop, ok := schema.Properties.Get("message")
	require.True(t, ok)
	assert.Equal(t, "string", prop.Type)

	out, err := client.CallTool(ctx, "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.False(t, out.IsError)
	text, ok := out.Text()
	require.True(t, ok)
	assert.Equal(t, "echo: hi", text)

	out, err = client.CallTool(ctx, "fail", nil)
	require.NoError(t, err)
	assert.True(t, out.IsError)
	text, _ = out.Text()
	assert.Equal(t, "boom", text)

	_, err = client.CallTool(ctx, "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool: missing")

	require.NoError(t, client.Close())
	select {
	case err = <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not observe close")
	}
}

func TestClient_Cancel(t *testing.T) {
	client, _ := connect(t, newTestServer())
	_, err := client.Initialize(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.CallTool(ctx, "wait", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the connection is still usable
	out, err := client.CallTool(context.Background(), "echo", map[string]any{"message": "again"})
	require.NoError(t, err)
	text, _ := out.Text()
	assert.Equal(t, "echo: again", text)
}

func TestClient_CallTimeout(t *testing.T) {
	client, _ := connect(t, newTestServer())
	client.WithCallTimeout(50 * time.Millisecond)
	_, err := client.Initialize(context.Background())
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), "wait", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request timeout")
}

func TestClient_ClosedConnection(t *testing.T) {
	client, _ := connect(t, newTestServer())
	_, err := client.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	<-client.Done()

	_, err = client.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
}

func TestLaunch(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	ctx := context.Background()
	client, err := mcp.Launch(ctx, &mcp.Command{
		Name: "helper",
		Path: exe,
		Env:  map[string]string{helperEnv: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.ServerInfo().ServerInfo.Name)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 3)

	out, err := client.CallTool(ctx, "echo", map[string]any{"message": "from process"})
	require.NoError(t, err)
	text, _ := out.Text()
	assert.Equal(t, "echo: from process", text)

	require.NoError(t, client.Close())
	// closing twice is safe
	_ = client.Close()
}

func TestLaunch_Fails(t *testing.T) {
	_, err := mcp.Launch(context.Background(), &mcp.Command{
		Name: "missing",
		Path: "/nonexistent/provider-binary",
	})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to start missing"))

	// the process exits before the handshake completes
	exe, err := os.Executable()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = mcp.Launch(ctx, &mcp.Command{
		Name:          "no-server",
		Path:          exe,
		Args:          []string{"-test.run=^$"},
		ShutdownGrace: time.Second,
	})
	require.Error(t, err)
}

func TestNewTool(t *testing.T) {
	tool, err := mcp.NewTool("echo", "Echoes", &echoArgs{})
	require.NoError(t, err)
	assert.Equal(t, "echo", tool.Name)
	assert.NotContains(t, string(tool.InputSchema), "$schema")
	assert.Contains(t, string(tool.InputSchema), `"message"`)

	empty := &mcp.Tool{Name: "x"}
	s, err := empty.Schema()
	require.NoError(t, err)
	assert.NotNil(t, s)

	bad := &mcp.Tool{Name: "x", InputSchema: []byte(`[1,2`)}
	_, err = bad.Schema()
	assert.Error(t, err)
}

func TestServer_RegisterTool(t *testing.T) {
	srv := mcp.NewServer("s", "1")
	assert.Error(t, srv.RegisterTool(nil, nil))
	assert.Error(t, srv.RegisterTool(&mcp.Tool{}, nil))
	assert.Error(t, srv.RegisterTool(&mcp.Tool{Name: "a"}, nil))
	assert.Empty(t, srv.Tools())
}
