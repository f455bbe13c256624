package services

import (
	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/mcp"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/watch"
)

// Registry provides access to all knowledged services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Knowledge() *knowledge.Service
	Pipeline() *rag.Pipeline
	MCP() *mcp.Server
	HTTP() *httpserver.Server
	Watcher() *watch.Watcher
}

// Options configures the registry with service instances.
type Options struct {
	Knowledge *knowledge.Service
	Pipeline  *rag.Pipeline
	MCP       *mcp.Server
	HTTP      *httpserver.Server
	Watcher   *watch.Watcher
}

// registry is the concrete implementation of Registry.
type registry struct {
	knowledge *knowledge.Service
	pipeline  *rag.Pipeline
	mcp       *mcp.Server
	http      *httpserver.Server
	watcher   *watch.Watcher
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		knowledge: opts.Knowledge,
		pipeline:  opts.Pipeline,
		mcp:       opts.MCP,
		http:      opts.HTTP,
		watcher:   opts.Watcher,
	}
}

func (r *registry) Knowledge() *knowledge.Service { return r.knowledge }
func (r *registry) Pipeline() *rag.Pipeline        { return r.pipeline }
func (r *registry) MCP() *mcp.Server               { return r.mcp }
func (r *registry) HTTP() *httpserver.Server       { return r.http }
func (r *registry) Watcher() *watch.Watcher        { return r.watcher }
