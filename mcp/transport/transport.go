// Package transport defines JSON-RPC 2.0 messages and the Transport
// interface used by MCP clients and servers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestId is a JSON-RPC request identifier.
type RequestId int64

// JsonRpcBody is the result of a request handler, marshalled to JSON.
type JsonRpcBody any

// BaseJSONRPCRequest is a request that expects a response.
type BaseJSONRPCRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Id      RequestId       `json:"id"`
}

// BaseJSONRPCNotification is a one-way message.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BaseJSONRPCResponse is a successful response.
type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Id      RequestId       `json:"id"`
}

// BaseJSONRPCErrorInner is the error object of an error response.
type BaseJSONRPCErrorInner struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BaseJSONRPCError is an error response.
type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Id      RequestId             `json:"id"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// BaseMessageType identifies the kind of message.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a union of the four message kinds.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

func NewBaseMessageError(response *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: response,
	}
}

// MarshalJSON encodes the inner message.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %q", m.Type)
}

// UnmarshalJSON detects the message kind from the fields present.
func (m *BaseJsonRpcMessage) UnmarshalJSON(data []byte) error {
	var probe struct {
		Jsonrpc string          `json:"jsonrpc"`
		Method  *string         `json:"method"`
		Id      json.RawMessage `json:"id"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(err, "invalid JSON-RPC message")
	}
	if probe.Jsonrpc != "2.0" {
		return errors.Errorf("unsupported JSON-RPC version: %q", probe.Jsonrpc)
	}

	hasID := len(probe.Id) > 0 && !bytes.Equal(probe.Id, []byte("null"))
	switch {
	case probe.Method != nil && hasID:
		m.Type = BaseMessageTypeJSONRPCRequestType
		m.JsonRpcRequest = new(BaseJSONRPCRequest)
		return json.Unmarshal(data, m.JsonRpcRequest)
	case probe.Method != nil:
		m.Type = BaseMessageTypeJSONRPCNotificationType
		m.JsonRpcNotification = new(BaseJSONRPCNotification)
		return json.Unmarshal(data, m.JsonRpcNotification)
	case len(probe.Error) > 0:
		m.Type = BaseMessageTypeJSONRPCErrorType
		m.JsonRpcError = &BaseJSONRPCError{Jsonrpc: probe.Jsonrpc, Id: -1}
		if err := json.Unmarshal(probe.Error, &m.JsonRpcError.Error); err != nil {
			return errors.Wrap(err, "invalid JSON-RPC error")
		}
		// an error for a request that could not be parsed has a null id
		if hasID {
			return json.Unmarshal(probe.Id, &m.JsonRpcError.Id)
		}
		return nil
	case hasID:
		m.Type = BaseMessageTypeJSONRPCResponseType
		m.JsonRpcResponse = new(BaseJSONRPCResponse)
		return json.Unmarshal(data, m.JsonRpcResponse)
	}
	return errors.New("invalid JSON-RPC message: no method, result or error")
}

// Transport is a bidirectional message channel.
type Transport interface {
	// Start begins reading messages. It must not block.
	Start(ctx context.Context) error
	// Send writes a message to the peer.
	Send(ctx context.Context, message *BaseJsonRpcMessage) error
	// Close closes the transport.
	Close() error

	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
	SetErrorHandler(handler func(error))
	SetCloseHandler(handler func())
}
