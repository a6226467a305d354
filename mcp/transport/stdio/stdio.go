// Package stdio implements a newline-delimited JSON-RPC transport over
// a pair of byte streams, such as a child process stdin/stdout or the
// process own stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/mcp/transport", "stdio")

// MaxMessageSize is the largest single message accepted from the peer.
const MaxMessageSize = 16 * 1024 * 1024

// Transport reads one JSON-RPC message per line from r and writes one
// message per line to w.
type Transport struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer

	wmu       sync.Mutex
	mu        sync.RWMutex
	started   bool
	closeOnce sync.Once

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport over the given streams.
// closer is called on Close, it may be nil.
func New(r io.Reader, w io.Writer, closer io.Closer) *Transport {
	return &Transport{
		r:      r,
		w:      w,
		closer: closer,
	}
}

// NewServerTransport returns a transport over os.Stdin and os.Stdout.
func NewServerTransport() *Transport {
	return New(os.Stdin, os.Stdout, nil)
}

// SetMessageHandler implements Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// Start implements Transport.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("transport already started")
	}
	t.started = true

	go t.readLoop(context.WithoutCancel(ctx))
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.handleClose()

	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg := new(transport.BaseJsonRpcMessage)
		if err := json.Unmarshal(line, msg); err != nil {
			t.handleError(errors.Wrap(err, "failed to decode message"))
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		t.handleError(errors.Wrap(err, "failed to read message"))
	}
}

// Send implements Transport.
func (t *Transport) Send(_ context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	data = append(data, '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err = t.w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close implements Transport.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.closer != nil {
			err = t.closer.Close()
		}
	})
	return err
}

func (t *Transport) handleError(err error) {
	logger.KV(xlog.DEBUG, "reason", "transport", "err", err.Error())

	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func (t *Transport) handleClose() {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
}
