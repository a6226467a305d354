// Package tools adapts typed tools to MCP tool handlers. A tool declares
// its input as a Go struct, the input schema is reflected from the struct
// and call arguments are decoded and validated before Run.
package tools
