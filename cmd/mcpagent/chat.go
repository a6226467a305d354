package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	chatBanner = "输入问题或quit退出程序"
	chatPrompt = "Question: "
	quitWord   = "quit"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed)
)

// answerer answers one question.
type answerer interface {
	ProcessQuery(ctx context.Context, query string) (string, error)
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session, the default command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context())
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func (a *app) runChat(ctx context.Context) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	reg, err := a.connect(ctx)
	defer a.shutdown(reg)
	if err != nil {
		return a.fail(err)
	}

	driver, err := a.newDriver(reg)
	if err != nil {
		return a.fail(err)
	}
	return chat(ctx, a.in, a.out, driver)
}

func (a *app) runAsk(ctx context.Context, query string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	reg, err := a.connect(ctx)
	defer a.shutdown(reg)
	if err != nil {
		return a.fail(err)
	}

	driver, err := a.newDriver(reg)
	if err != nil {
		return a.fail(err)
	}

	answer, err := driver.ProcessQuery(ctx, query)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, answer)
	return nil
}

// fail prints the error and returns it.
func (a *app) fail(err error) error {
	printError(a.errOut, err)
	return err
}

func printError(w io.Writer, err error) {
	_, _ = errorColor.Fprintf(w, "Error: %s\n", err.Error())
}

// chat reads questions from in until quit, EOF or cancellation.
// A failed question is reported and the session continues.
// On cancellation chat returns while the reader goroutine may still be
// blocked in Scan until in is closed or yields a line, so callers that
// outlive the process exit must close in themselves.
func chat(ctx context.Context, in io.Reader, out io.Writer, agent answerer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, chatBanner)
	for {
		_, _ = promptColor.Fprint(out, "\n"+chatPrompt)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, quitWord) {
			return nil
		}

		answer, err := agent.ProcessQuery(ctx, query)
		if err != nil {
			printError(out, err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Fprintln(out, answer)
	}
}

// reporter prints the scratchpad of each question when it ends.
type reporter struct {
	*callbacks.Scratchpad

	lock sync.Mutex
	out  io.Writer
}

func newReporter(out io.Writer) *reporter {
	return &reporter{
		Scratchpad: callbacks.NewScratchpad(callbacks.ModeDefault),
		out:        out,
	}
}

func (r *reporter) OnQueryEnd(ctx context.Context, query, answer string, transcript []llms.Message) {
	r.Scratchpad.OnQueryEnd(ctx, query, answer, transcript)
	r.flush(ctx)
}

func (r *reporter) OnQueryError(ctx context.Context, query string, err error, transcript []llms.Message) {
	r.Scratchpad.OnQueryError(ctx, query, err, transcript)
	r.flush(ctx)
}

func (r *reporter) flush(ctx context.Context) {
	_, log := r.EndRun(ctx)
	if len(log) == 0 {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	_, _ = r.out.Write(log)
}
