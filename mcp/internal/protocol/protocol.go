// Package protocol implements JSON-RPC request/response correlation,
// notifications and cancellation on top of a Transport.
//
// A Protocol is symmetric: the client side issues requests with Request
// and Notification, the server side installs handlers with
// SetRequestHandler and SetNotificationHandler.
//
// All public methods are safe for concurrent use.
package protocol

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/mcp/internal", "protocol")

const DefaultRequestTimeoutMsec = 60000

// JSON-RPC error codes
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrClosed is returned for requests pending when the connection closes.
var ErrClosed = errors.New("connection closed")

// RPCError is an error response from the peer.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return "RPC error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// RequestOptions contains options that can be given per request
type RequestOptions struct {
	// Timeout specifies a timeout for this request.
	// If not specified, DefaultRequestTimeoutMsec is used.
	Timeout time.Duration
}

// RequestHandler handles an incoming request and returns the result.
type RequestHandler func(ctx context.Context, request *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error)

// NotificationHandler handles an incoming notification.
type NotificationHandler func(notification *transport.BaseJSONRPCNotification) error

// Protocol implements framing on top of a pluggable transport,
// including request/response linking, notifications and cancellation.
type Protocol struct {
	transport transport.Transport

	requestMessageID transport.RequestId
	mu               sync.RWMutex
	closed           bool

	// Maps method name to request handler
	requestHandlers map[string]RequestHandler
	// Maps request ID to cancellation function
	requestCancellers map[transport.RequestId]context.CancelFunc
	// Maps method name to notification handler
	notificationHandlers map[string]NotificationHandler
	// Maps message ID to response handler
	responseHandlers map[transport.RequestId]chan *responseEnvelope

	// OnClose is called when the connection is closed for any reason
	OnClose func()
	// OnError is called when an error occurs
	OnError func(error)
}

type responseEnvelope struct {
	response json.RawMessage
	err      error
}

// NewProtocol creates a new Protocol instance
func NewProtocol() *Protocol {
	p := &Protocol{
		requestHandlers:      make(map[string]RequestHandler),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]NotificationHandler),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
	}

	p.SetNotificationHandler("notifications/cancelled", p.handleCancelledNotification)
	return p
}

// Connect attaches to the given transport, starts it, and starts listening for messages
func (p *Protocol) Connect(tr transport.Transport) error {
	p.transport = tr

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.JsonRpcResponse.Id, &responseEnvelope{response: message.JsonRpcResponse.Result})
		case transport.BaseMessageTypeJSONRPCErrorType:
			e := message.JsonRpcError
			p.handleResponse(e.Id, &responseEnvelope{err: &RPCError{Code: e.Error.Code, Message: e.Error.Message}})
		}
	})

	return tr.Start(context.Background())
}

// IsClosed returns true when the transport has been closed.
func (p *Protocol) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	p.closed = true
	for _, cancel := range p.requestCancellers {
		cancel()
	}
	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: ErrClosed}:
		default:
		}
		delete(p.responseHandlers, id)
	}
	onClose := p.OnClose
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "method", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.Wrap(err, "notification handler error"))
		}
	}()
}

func (p *Protocol) handleRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG,
		"method", request.Method,
		"id", request.Id,
	)

	p.mu.RLock()
	handler := p.requestHandlers[request.Method]
	p.mu.RUnlock()

	if handler == nil {
		_ = p.sendErrorResponse(request.Id, &RPCError{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + request.Method,
		})
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.requestCancellers[request.Id] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, request)
		if err != nil {
			logger.KV(xlog.DEBUG, "method", request.Method, "id", request.Id, "err", err.Error())
			_ = p.sendErrorResponse(request.Id, err)
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			_ = p.sendErrorResponse(request.Id, errors.Wrap(err, "failed to marshal result"))
			return
		}
		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      request.Id,
			Result:  jsonResult,
		}

		if err := p.transport.Send(ctx, transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}

	return nil
}

func (p *Protocol) handleResponse(id transport.RequestId, envelope *responseEnvelope) {
	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch == nil {
		logger.KV(xlog.DEBUG, "status", "unexpected_response", "id", id)
		return
	}
	select {
	case ch <- envelope:
	default:
	}
}

// Close closes the connection
func (p *Protocol) Close() error {
	if p.transport != nil {
		return p.transport.Close()
	}
	return nil
}

// Request sends a request and waits for a response
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if p.transport == nil {
		return nil, errors.New("not connected")
	}

	timeout := time.Duration(DefaultRequestTimeoutMsec) * time.Millisecond
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrClosed)
	}
	id := p.requestMessageID
	p.requestMessageID++
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		p.mu.Unlock()
	}()

	var marshalledParams json.RawMessage
	if params != nil {
		var err error
		marshalledParams, err = json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal params")
		}
	}

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	if err := p.transport.Send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return nil, envelope.err
		}
		return envelope.response, nil
	case <-ctx.Done():
		_ = p.sendCancelNotification(id, ctx.Err().Error())
		return nil, errors.WithStack(ctx.Err())
	case <-timer.C:
		_ = p.sendCancelNotification(id, "request timeout")
		return nil, errors.Errorf("request timeout after %v", timeout)
	}
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) error {
	return p.Notification("notifications/cancelled", map[string]any{
		"requestId": requestID,
		"reason":    reason,
	})
}

func (p *Protocol) sendErrorResponse(requestID transport.RequestId, err error) error {
	inner := transport.BaseJSONRPCErrorInner{
		Code:    CodeInternalError,
		Message: err.Error(),
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		inner.Code = rpcErr.Code
		inner.Message = rpcErr.Message
	}

	response := &transport.BaseJSONRPCError{
		Jsonrpc: "2.0",
		Id:      requestID,
		Error:   inner,
	}

	if err := p.transport.Send(context.Background(), transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send error response"))
		return err
	}
	return nil
}

// Notification emits a notification, which is a one-way message that does not expect a response
func (p *Protocol) Notification(method string, params any) error {
	if p.transport == nil {
		return errors.New("not connected")
	}

	var marshalled json.RawMessage
	if params != nil {
		var err error
		marshalled, err = json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "failed to marshal notification params")
		}
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalled,
	}

	if err := p.transport.Send(context.Background(), transport.NewBaseMessageNotification(notification)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send notification"))
		return err
	}
	return nil
}

// SetRequestHandler registers a handler to invoke when this protocol object receives a request with the given method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler to invoke when this protocol object receives a notification with the given method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}
