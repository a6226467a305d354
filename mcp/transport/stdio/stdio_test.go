package stdio_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Read(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"result":{}}`,
		``,
		`garbage`,
		`{"jsonrpc":"2.0","method":"ping"}`,
	}, "\n") + "\n"

	tr := stdio.New(strings.NewReader(input), io.Discard, nil)

	var (
		mu       sync.Mutex
		messages []*transport.BaseJsonRpcMessage
		errs     []error
	)
	closed := make(chan struct{})
	tr.SetMessageHandler(func(_ context.Context, m *transport.BaseJsonRpcMessage) {
		mu.Lock()
		messages = append(messages, m)
		mu.Unlock()
	})
	tr.SetErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	tr.SetCloseHandler(func() { close(closed) })

	require.NoError(t, tr.Start(context.Background()))
	assert.Error(t, tr.Start(context.Background()))

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not close on EOF")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, messages, 2)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, messages[0].Type)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCNotificationType, messages[1].Type)
	assert.Len(t, errs, 1)
}

type countCloser struct {
	count int
}

func (c *countCloser) Close() error {
	c.count++
	return nil
}

func TestTransport_Send(t *testing.T) {
	var buf bytes.Buffer
	cl := &countCloser{}
	tr := stdio.New(strings.NewReader(""), &buf, cl)

	err := tr.Send(context.Background(), transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	}))
	require.NoError(t, err)
	err = tr.Send(context.Background(), transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
		Jsonrpc: "2.0",
		Id:      2,
		Result:  []byte(`{"ok":true}`),
	}))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, lines[0])
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{"ok":true}}`, lines[1])

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, cl.count)
}
