// Command mcpagent answers questions with a language model and the tools
// of MCP providers started from a servers configuration file.
package main

import (
	"os"
)

func main() {
	cmd := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
