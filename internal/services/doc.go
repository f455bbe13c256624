// Package services provides the service registry for knowledged.
//
// The registry holds the knowledge façade and the frontends built on it
// (MCP server, HTTP server, directory watcher). Frontends that are disabled
// are nil. Use NewRegistry() to create a registry, then the accessor
// methods to retrieve individual services.
package services
