// Package chatmodel carries the identity of a chat session through
// context.Context, so logs of the agent loop, the model calls and the
// tool calls of one conversation can be correlated.
package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
	"github.com/google/uuid"
)

// ChatContext identifies a chat session.
type ChatContext interface {
	// GetChatID returns the session ID, it does not change between queries.
	GetChatID() string
	// RunID returns the ID of the current query.
	RunID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	chatID   string
	runID    string
	metadata *sync.Map
}

func (c *chatContext) GetChatID() string {
	return c.chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a session context, a new chat ID is generated
// when chatID is empty.
func NewChatContext(chatID string) ChatContext {
	return &chatContext{
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    NewRunID(),
		metadata: &sync.Map{},
	}
}

// NewRun returns a context of the same session with a new run ID,
// the metadata is shared with the session.
func NewRun(c ChatContext) ChatContext {
	if cc, ok := c.(*chatContext); ok {
		return &chatContext{
			chatID:   cc.chatID,
			runID:    NewRunID(),
			metadata: cc.metadata,
		}
	}
	return NewChatContext(c.GetChatID())
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.GetChatID()
	}
	return ""
}

// GetRunID retrieves the run ID from the provided context.
func GetRunID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.RunID()
	}
	return ""
}

// StartRun returns a context for a new query: the session of ctx is kept
// and a run ID is assigned, a session is created if ctx has none.
func StartRun(ctx context.Context) context.Context {
	if c := GetChatContext(ctx); c != nil {
		return WithChatContext(ctx, NewRun(c))
	}
	return WithChatContext(ctx, NewChatContext(""))
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}

// NewRunID generates a new random run ID.
func NewRunID() string {
	return uuid.NewString()
}
