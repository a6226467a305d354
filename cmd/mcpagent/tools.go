package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/spf13/cobra"
)

func newToolsCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tools of the configured servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			reg, err := a.connect(ctx)
			defer a.shutdown(reg)
			if err != nil {
				return a.fail(err)
			}
			if err = printTools(a.out, reg.ListTools(), output); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

type toolInfo struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
}

func printTools(w io.Writer, tools []*mcp.Tool, output string) error {
	list := make([]*toolInfo, 0, len(tools))
	for _, t := range tools {
		info := &toolInfo{
			Name:        t.Name,
			Description: t.Description,
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &info.InputSchema); err != nil {
				return errors.Wrapf(err, "invalid input schema of %s", t.Name)
			}
		}
		list = append(list, info)
	}

	switch strings.ToLower(output) {
	case "json":
		fmt.Fprintln(w, llmutils.ToJSONIndent(list))
	case "yaml":
		fmt.Fprint(w, llmutils.ToYAML(list))
	case "", "text":
		for _, t := range list {
			_, _ = promptColor.Fprint(w, t.Name)
			fmt.Fprintf(w, ": %s\n", t.Description)
		}
	default:
		return errors.Newf("unsupported output format: %s", output)
	}
	return nil
}
