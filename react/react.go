package react

import (
	"context"
	"sync"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/action"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "react")

// EmptyReply replaces a model reply without content.
const EmptyReply = "模型未返回任何信息"

var (
	// ErrMissingAction is returned when a reply has neither a final answer nor an action.
	ErrMissingAction = errors.New("model reply has no <action>")
	// ErrMaxTurns is returned when the query is not answered within the turn limit.
	ErrMaxTurns = errors.New("maximum turns reached")
)

//go:generate mockgen -source=react.go -destination=../mocks/mockreact/react_mock.gen.go -package mockreact

// Registry is the tool catalog and invocation router used by the Driver.
type Registry interface {
	// ListTools returns the tool catalog.
	ListTools() []*mcp.Tool
	// Invoke calls the named tool.
	Invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Driver answers queries with a model and tools.
// ProcessQuery may be called concurrently, each query owns its transcript.
type Driver struct {
	model  llms.Model
	tools  Registry
	cfg    *Config
	prompt *template.Template

	lock sync.Mutex
	last []llms.Message
}

// New returns a Driver.
func New(model llms.Model, tools Registry, opts ...Option) (*Driver, error) {
	cfg := NewConfig(opts...)
	tmpl, err := ParsePromptTemplate(cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	return &Driver{
		model:  model,
		tools:  tools,
		cfg:    cfg,
		prompt: tmpl,
	}, nil
}

// ModelName returns the model used for queries.
func (d *Driver) ModelName() string {
	if d.cfg.Model != "" {
		return d.cfg.Model
	}
	return d.model.GetName()
}

// LastTranscript returns a copy of the transcript of the last finished query.
func (d *Driver) LastTranscript() []llms.Message {
	d.lock.Lock()
	defer d.lock.Unlock()
	list := make([]llms.Message, len(d.last))
	copy(list, d.last)
	return list
}

func (d *Driver) setLast(messages []llms.Message) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.last = messages
}

// SystemPrompt renders the system prompt for the current catalog.
func (d *Driver) SystemPrompt() (string, error) {
	tools := d.tools.ListTools()
	list, err := ToolList(tools)
	if err != nil {
		return "", err
	}
	return renderPrompt(d.prompt, &PromptInput{
		ToolList:    list,
		Tools:       tools,
		CurrentDate: d.cfg.Now().Format(time.DateOnly),
	})
}

// ProcessQuery runs the loop for one question and returns the final answer.
func (d *Driver) ProcessQuery(ctx context.Context, query string) (string, error) {
	ctx = chatmodel.StartRun(ctx)
	started := time.Now()
	modelName := d.ModelName()
	cb := d.cfg.Callback

	cb.OnQueryStart(ctx, query)
	answer, messages, err := d.run(ctx, query)
	d.setLast(messages)
	metricskey.PerfQuery.MeasureSince(started, modelName)

	if err != nil {
		metricskey.StatsQueriesFailed.IncrCounter(1, modelName)
		logger.ContextKV(ctx, xlog.ERROR,
			"chat_id", chatmodel.GetChatID(ctx),
			"run_id", chatmodel.GetRunID(ctx),
			"query", slices.StringUpto(query, 64),
			"turns", countTurns(messages),
			"err", err.Error(),
		)
		cb.OnQueryError(ctx, query, err, messages)
		return "", err
	}

	metricskey.StatsQueriesSucceeded.IncrCounter(1, modelName)
	logger.ContextKV(ctx, xlog.DEBUG,
		"chat_id", chatmodel.GetChatID(ctx),
		"run_id", chatmodel.GetRunID(ctx),
		"status", "answered",
		"turns", countTurns(messages),
		"elapsed", time.Since(started).String(),
	)
	cb.OnQueryEnd(ctx, query, answer, messages)
	return answer, nil
}

func (d *Driver) run(ctx context.Context, query string) (string, []llms.Message, error) {
	system, err := d.SystemPrompt()
	if err != nil {
		return "", nil, err
	}

	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, system),
		llms.MessageFromTextParts(llms.RoleHuman, query),
	}

	modelName := d.ModelName()
	for turn := 1; ; turn++ {
		if turn > d.cfg.MaxTurns {
			return "", messages, errors.Wrapf(ErrMaxTurns, "no final answer after %d turns", d.cfg.MaxTurns)
		}
		metricskey.StatsQueryTurns.IncrCounter(1, modelName)

		reply, err := d.callModel(ctx, messages)
		if err != nil {
			return "", messages, err
		}
		messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, reply))

		if answer, ok := action.FinalAnswer(reply); ok {
			return answer, messages, nil
		}

		text, ok := action.ActionText(reply)
		if !ok {
			return "", messages, errors.Wrapf(ErrMissingAction, "reply: %q", slices.StringUpto(reply, 128))
		}

		act, err := action.Parse(llmutils.TrimBackticks(text))
		if err != nil {
			metricskey.StatsActionParseErrors.IncrCounter(1, modelName)
			d.cfg.Callback.OnActionParseError(ctx, reply, err)
			return "", messages, err
		}

		observation, err := d.invoke(ctx, act)
		if err != nil {
			return "", messages, err
		}
		messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, observation))
	}
}

// callModel returns the reply text, transient failures are retried.
func (d *Driver) callModel(ctx context.Context, messages []llms.Message) (string, error) {
	modelName := d.ModelName()
	cb := d.cfg.Callback

	opts := []llms.CallOption{
		llms.WithTemperature(d.cfg.Temperature),
		llms.WithMaxTokens(d.cfg.MaxTokens),
	}
	if d.cfg.Model != "" {
		opts = append(opts, llms.WithModel(d.cfg.Model))
	}

	var resp *llms.ContentResponse
	operation := func() error {
		cb.OnModelCallStart(ctx, d.model, messages)
		started := time.Now()
		r, err := d.model.GenerateContent(ctx, messages, opts...)
		metricskey.PerfLLMCall.MeasureSince(started, modelName)
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.cfg.BackOff(), uint64(d.cfg.MaxRetries)), ctx)
	notify := func(err error, next time.Duration) {
		metricskey.StatsLLMCallsRetried.IncrCounter(1, modelName)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "retry_llm_call",
			"model", modelName,
			"next", next.String(),
			"err", err.Error(),
		)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return "", errors.Wrapf(err, "failed to generate content from LLM")
	}
	if resp == nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "nil_response", "model", modelName)
		return EmptyReply, nil
	}
	cb.OnModelCallEnd(ctx, d.model, resp)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", modelName,
		"messages", len(messages),
		"bytes_sent", llmutils.CountMessagesContentSize(messages),
		"bytes_received", llmutils.CountResponseContentSize(resp),
	)

	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return EmptyReply, nil
	}
	return resp.Choices[0].Content, nil
}

// retryable reports whether a failed model call may succeed when repeated.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, llms.ErrInvalidRequest) &&
		!errors.Is(err, llms.ErrUnexpectedRole)
}

// invoke calls the tool and returns the observation for the model.
// Tool failures and unknown tools become observations, other errors are fatal.
func (d *Driver) invoke(ctx context.Context, act *action.Action) (string, error) {
	cb := d.cfg.Callback
	cb.OnAction(ctx, act)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "invoke",
		"action", act.String(),
	)

	var observation string
	res, err := d.tools.Invoke(ctx, act.Name, act.ArgsMap())
	switch {
	case err == nil:
		if text, ok := res.Text(); ok {
			observation = action.Observation(text)
		} else {
			observation = action.ErrorObservation()
		}
	case errors.Is(err, registry.ErrUnknownTool):
		metricskey.StatsToolCallsNotFound.IncrCounter(1, act.Name)
		cb.OnToolNotFound(ctx, act.Name)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "tool_not_found",
			"tool", act.Name,
		)
		observation = action.UnknownToolObservation(act.Name, d.toolNames())
	case errors.Is(err, registry.ErrToolExecution):
		detail := err.Error()
		var te *registry.ToolError
		if errors.As(err, &te) {
			detail = te.Detail
		}
		observation = action.Observation(detail)
	default:
		return "", errors.WithMessagef(err, "failed to call tool %s", act.Name)
	}

	cb.OnObservation(ctx, act, observation)
	return observation, nil
}

func (d *Driver) toolNames() []string {
	tools := d.tools.ListTools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func countTurns(messages []llms.Message) int {
	var n int
	for _, m := range messages {
		if m.Role == llms.RoleAI {
			n++
		}
	}
	return n
}
