// Package mcp implements the subset of the Model Context Protocol used by
// the agent: the initialize handshake, tool listing and tool calls over a
// newline-delimited JSON-RPC stream.
//
// Client talks to one provider, Launch starts a provider process and
// returns an initialized Client, Server exposes tools to a client and is
// used by the bundled providers.
package mcp
