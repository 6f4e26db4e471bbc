// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes site build tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/build"
	"github.com/starford/weaving/internal/checksum"
	"github.com/starford/weaving/internal/manifest"
	"github.com/starford/weaving/internal/route"
	"github.com/starford/weaving/internal/storage"
)

const contractURI = "weaving://page-format"

// Builder runs builds and remembers the last one.
type Builder interface {
	Build(ctx context.Context) (*build.Result, error)
	Last() *build.Result
}

// Options wire the server to a site.
type Options struct {
	Builder  Builder
	Content  storage.Provider // rooted at the content directory
	Output   storage.Provider // rooted at the build directory
	Manifest manifest.Store   // optional
}

// Server wraps the MCP server with site tools.
type Server struct {
	mcp  *server.MCPServer
	opts Options
}

// New creates a new MCP server with all site tools registered.
func New(opts Options) *Server {
	s := &Server{opts: opts}

	s.mcp = server.NewMCPServer(
		"Weaving",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build_site",
		mcp.WithDescription("Run a full site build and report what was written."),
	), s.buildSite)

	s.mcp.AddTool(mcp.NewTool("list_routes",
		mcp.WithDescription("List every route of the last successful build with title and publish date."),
	), s.listRoutes)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the rendered HTML of a route from the build directory."),
		mcp.WithString("route", mcp.Required(), mcp.Description("Route such as / or /blog/post1/")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new content page. Content MUST follow the page format "+
			"contract; read it via get_page_contract or the weaving://page-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path under the content directory (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown with optional frontmatter")),
	), s.createPage)

	s.mcp.AddTool(mcp.NewTool("get_page_contract",
		mcp.WithDescription("Returns the content file format the build understands."),
	), s.getPageContract)

	s.mcp.AddTool(mcp.NewTool("list_outputs",
		mcp.WithDescription("List built files with their checksums, from the manifest when enabled."),
	), s.listOutputs)

	s.mcp.AddTool(mcp.NewTool("last_build",
		mcp.WithDescription("Report the most recent build recorded in the manifest, including failures."),
	), s.lastBuild)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Page Format Contract",
			mcp.WithResourceDescription("Frontmatter keys and routing rules for content files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type buildSummary struct {
	ID         string   `json:"id"`
	Pages      int      `json:"pages"`
	Written    []string `json:"written"`
	Swept      []string `json:"swept,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func (s *Server) buildSite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.opts.Builder.Build(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("build failed (%s): %s", apperr.KindOf(err), err)), nil
	}
	out, _ := json.MarshalIndent(buildSummary{
		ID:         res.ID,
		Pages:      res.Pages,
		Written:    res.Written,
		Swept:      res.Swept,
		DurationMS: res.Duration.Milliseconds(),
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type routeInfo struct {
	Route     string     `json:"route"`
	Title     string     `json:"title"`
	Template  string     `json:"template"`
	Emit      bool       `json:"emit"`
	Published *time.Time `json:"published,omitempty"`
}

func (s *Server) listRoutes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	last := s.opts.Builder.Last()
	if last == nil || last.Snapshot == nil {
		return mcp.NewToolResultError("no successful build yet; call build_site first"), nil
	}
	pages := last.Snapshot.Pages()
	out := make([]routeInfo, len(pages))
	for i, p := range pages {
		out[i] = routeInfo{
			Route:     p.Route,
			Title:     p.Title,
			Template:  p.Meta.Template,
			Emit:      p.Emit,
			Published: p.Meta.Published,
		}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) readPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := req.RequireString("route")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel := strings.Join(append(route.Segments(r), "index.html"), "/")
	data, err := s.opts.Output.Read(rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", r)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) createPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, ".md") {
		return mcp.NewToolResultError("path must end with .md"), nil
	}

	// Check existence.
	if _, readErr := s.opts.Content.Read(path); readErr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("page already exists: %s", path)), nil
	}
	if err := s.opts.Content.Write(path, []byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) getPageContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormatContract), nil
}

func (s *Server) listOutputs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var lines []string
	if s.opts.Manifest != nil {
		entries, err := s.opts.Manifest.Entries()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, e := range entries {
			lines = append(lines, e.Path+"\t"+e.Checksum)
		}
	} else {
		// Without a manifest, hash what is on disk.
		files, err := s.opts.Output.Files()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, f := range files {
			data, err := s.opts.Output.Read(f)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			lines = append(lines, f+"\t"+checksum.Sum(data))
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no outputs recorded"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

type buildRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Pages      int       `json:"pages"`
	Written    int       `json:"written"`
	Error      string    `json:"error,omitempty"`
}

func (s *Server) lastBuild(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.opts.Manifest == nil {
		return mcp.NewToolResultError("manifest disabled"), nil
	}
	b, err := s.opts.Manifest.LastBuild()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if b == nil {
		return mcp.NewToolResultError("no build recorded yet; call build_site first"), nil
	}
	out, _ := json.MarshalIndent(buildRecord{
		ID:         b.ID,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Outcome:    b.Outcome,
		Pages:      b.Pages,
		Written:    b.Written,
		Error:      b.Error,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPageFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     PageFormatContract,
		},
	}, nil
}
