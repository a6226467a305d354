// Command search-server is an MCP provider with the web_search tool,
// it serves a single client over stdin and stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/effective-security/mcpagent/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "search-server: %s\n", err.Error())
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.WARNING)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tool, err := tavily.New()
	if err != nil {
		return err
	}
	srv, err := tavily.NewServer(tool)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, stdio.NewServerTransport())
}
