// Package callbacks provides handlers for the events of the agent loop.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpagent/action"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/xlog"
)

// Handler is the set of events reported by the agent loop.
type Handler interface {
	OnQueryStart(ctx context.Context, query string)
	OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message)
	OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message)

	OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message)
	OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse)
	OnActionParseError(ctx context.Context, reply string, err error)

	OnAction(ctx context.Context, act *action.Action)
	OnObservation(ctx context.Context, act *action.Action, observation string)
	OnToolNotFound(ctx context.Context, tool string)
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Handler = (*Noop)(nil)
	_ Handler = (*Printer)(nil)
	_ Handler = (*PackageLogger)(nil)
	_ Handler = (*Fanout)(nil)
	_ Handler = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Handler
}

func NewFanout(callbacks ...Handler) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback Handler) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnQueryStart(ctx context.Context, query string) {
	for _, callback := range l.callbacks {
		callback.OnQueryStart(ctx, query)
	}
}

func (l *Fanout) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnQueryEnd(ctx, query, answer, transcript)
	}
}

func (l *Fanout) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnQueryError(ctx, query, err, transcript)
	}
}

func (l *Fanout) OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnModelCallStart(ctx, model, payload)
	}
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnModelCallEnd(ctx, model, resp)
	}
}

func (l *Fanout) OnActionParseError(ctx context.Context, reply string, err error) {
	for _, callback := range l.callbacks {
		callback.OnActionParseError(ctx, reply, err)
	}
}

func (l *Fanout) OnAction(ctx context.Context, act *action.Action) {
	for _, callback := range l.callbacks {
		callback.OnAction(ctx, act)
	}
}

func (l *Fanout) OnObservation(ctx context.Context, act *action.Action, observation string) {
	for _, callback := range l.callbacks {
		callback.OnObservation(ctx, act, observation)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnQueryStart(ctx context.Context, query string) {}
func (l *Noop) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
}
func (l *Noop) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
}
func (l *Noop) OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message) {
}
func (l *Noop) OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse) {
}
func (l *Noop) OnActionParseError(ctx context.Context, reply string, err error) {}
func (l *Noop) OnAction(ctx context.Context, act *action.Action) {}
func (l *Noop) OnObservation(ctx context.Context, act *action.Action, observation string) {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string) {}

// Printer is a callback handler that prints to the Writer.
// In the verbose mode the model replies and observations are printed,
// which is how the interactive shell shows the reasoning of the agent.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnQueryStart(ctx context.Context, query string) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Query: %s\n", query)
}

func (l *Printer) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Query End: %d messages\n", len(transcript))
}

func (l *Printer) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Query Error: %s\n", err.Error())
}

func (l *Printer) OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s model, %d messages\n", model.GetName(), len(payload))
}

func (l *Printer) OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, choice := range resp.Choices {
		if choice.Content != "" {
			fmt.Fprint(l.Out, llmutils.EnsureEndsWithNewline(choice.Content))
		}
	}
}

func (l *Printer) OnActionParseError(ctx context.Context, reply string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Action Parse Error: %s\n", err.Error())
}

func (l *Printer) OnAction(ctx context.Context, act *action.Action) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Call: %s\n", act.String())
}

func (l *Printer) OnObservation(ctx context.Context, act *action.Action, observation string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, observation)
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnQueryStart(ctx context.Context, query string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_start",
		"query", query,
	)
}

func (l *PackageLogger) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_end",
		"messages", len(transcript),
		"answer", answer,
	)
}

func (l *PackageLogger) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "query_error",
		"messages", len(transcript),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"model", model.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"model", model.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnActionParseError(ctx context.Context, reply string, err error) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "action_parse_error",
		"err", err.Error(),
		"reply", reply,
	)
}

func (l *PackageLogger) OnAction(ctx context.Context, act *action.Action) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "action",
		"tool", act.Name,
		"action", act.String(),
	)
}

func (l *PackageLogger) OnObservation(ctx context.Context, act *action.Action, observation string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "observation",
		"tool", act.Name,
		"observation", observation,
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}
