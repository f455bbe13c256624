// Package mcp exposes the knowledge façade as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// over stdio. Each tool maps one to one onto a knowledge.Service method and
// returns both structured output and a text rendering. Every invocation is
// recorded with OpenTelemetry metrics.
package mcp
