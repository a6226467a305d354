package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcpagent/action"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
)

var TimeNowFn = time.Now

// RunStats is collected for one query.
type RunStats struct {
	ChatID string
	RunID  string

	Duration          time.Duration
	Turns             uint32
	TotalMessages     uint32
	LLMBytesOut       uint64
	LLMBytesIn        uint64
	LLMInputTokens    uint64
	LLMOutputTokens   uint64
	LLMTotalTokens    uint64
	ToolsCalls        uint32
	ToolNotFound      uint32
	ActionParseErrors uint32
	QueriesFailed     uint32
	QueriesSucceeded  uint32
}

// Scratchpad records the events and statistics of each query.
// Runs are keyed by the run ID of the chat context, events of a context
// without a run are ignored.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// EndRun returns the statistics and the log of the query run in ctx,
// and forgets the run.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Tool calls: %d, Not Found: %d, Parse Errors: %d",
		stats.ToolsCalls,
		stats.ToolNotFound,
		stats.ActionParseErrors,
	))
	run.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.Turns,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))
	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.chatCtx.RunID())
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	l.lock.Lock()
	defer l.lock.Unlock()

	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}
	return l.runs[chatCtx.RunID()]
}

func (l *Scratchpad) OnQueryStart(ctx context.Context, query string) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ChatID: chatCtx.GetChatID(),
			RunID:  chatCtx.RunID(),
		},
		chatCtx: chatCtx,
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[chatCtx.RunID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
	r.print("Query:", query)
}

func (l *Scratchpad) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.QueriesSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print("Answer:", answer)
	}
}

func (l *Scratchpad) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.QueriesFailed, 1)
	run.print("*** Error ***", err.Error())
	if l.mode == ModeVerbose {
		var buf bytes.Buffer
		llmutils.PrintMessages(&buf, transcript, llms.RoleAI, llms.RoleHuman)
		run.print("Transcript:\n" + buf.String())
	}
}

func (l *Scratchpad) OnModelCallStart(ctx context.Context, model llms.Model, payload []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesOut, llmutils.CountMessagesContentSize(payload))
	atomic.AddUint32(&run.stats.Turns, 1)
	count := uint32(len(payload))
	atomic.AddUint32(&run.stats.TotalMessages, count)

	run.print("*** LLM Call ***", fmt.Sprintf("%s model, %d messages", model.GetName(), count))
}

func (l *Scratchpad) OnModelCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	atomic.AddUint64(&run.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&run.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&run.stats.LLMTotalTokens, uint64(tokensTotal))

	run.print("*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens", model.GetName(), tokensIn, tokensOut, tokensTotal))
	if l.mode == ModeVerbose {
		for _, choice := range resp.Choices {
			run.print(choice.Content)
		}
	}
}

func (l *Scratchpad) OnActionParseError(ctx context.Context, reply string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ActionParseErrors, 1)
	run.print("*** Action Parse Error ***", err.Error())
}

func (l *Scratchpad) OnAction(ctx context.Context, act *action.Action) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(act.Name, "*** Tool Call ***", act.String())
}

func (l *Scratchpad) OnObservation(ctx context.Context, act *action.Action, observation string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	if l.mode == ModeVerbose {
		run.print(act.Name, "Observation:", observation)
	}
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", tool)
}

type run struct {
	chatCtx chatmodel.ChatContext
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp chatID.runID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.chatCtx.GetChatID())
	_, _ = r.w.WriteString(".")
	_, _ = r.w.WriteString(r.chatCtx.RunID())
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
