// Package mcpserver exposes the ebook handlers as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yuanying/ebookkit/internal/converter"
	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/optimize"
)

// Name is the implementation name announced to clients.
const Name = "ebookkit"

// Server registers the ebook tools on an MCP server.
type Server struct {
	conv     *converter.Converter
	optimize optimize.Options
	srv      *mcp.Server
}

// New builds a server. opts are the image optimizer defaults that tool
// arguments override.
func New(version string, conv *converter.Converter, opts optimize.Options) *Server {
	s := &Server{
		conv:     conv,
		optimize: opts,
		srv:      mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil),
	}
	s.registerReadTool()
	s.registerInfoTool()
	s.registerWriteTool()
	s.registerConvertTool()
	s.registerValidateTool()
	s.registerExtractImagesTool()
	s.registerOptimizeImagesTool()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Run serves requests on stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("serving MCP on stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// addTool registers a tool whose arguments decode into Req. Handler errors
// are reported as tool errors carrying the error hint.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			slog.Warn("tool failed", "tool", tool.Name, "error", err)
			var res mcp.CallToolResult
			res.SetError(errors.New(ebook.Describe(err)))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- read_ebook ---

type readReq struct {
	Path string `json:"path"`
}

type readResp struct {
	ebook.Info
	Content string           `json:"content"`
	TOC     []ebook.TocEntry `json:"toc"`
}

func (s *Server) registerReadTool() {
	tool := &mcp.Tool{
		Name:        "read_ebook",
		Description: "Read an ebook (EPUB, MOBI, AZW3, FB2, CBZ, PDF, TXT) and return its metadata, text and table of contents.",
		InputSchema: inputSchema(map[string]any{
			"path": stringProp("Path of the ebook file"),
		}, []string{"path"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *readReq) (any, error) {
		_, h, err := s.conv.Open(r.Path)
		if err != nil {
			return nil, err
		}
		return readResp{Info: ebook.NewInfo(r.Path, h), Content: h.Content(), TOC: h.TOC()}, nil
	})
}

// --- get_ebook_info ---

func (s *Server) registerInfoTool() {
	tool := &mcp.Tool{
		Name:        "get_ebook_info",
		Description: "Return the metadata and structure counts of an ebook without its text.",
		InputSchema: inputSchema(map[string]any{
			"path": stringProp("Path of the ebook file"),
		}, []string{"path"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *readReq) (any, error) {
		_, h, err := s.conv.Open(r.Path)
		if err != nil {
			return nil, err
		}
		return ebook.NewInfo(r.Path, h), nil
	})
}

// --- write_ebook ---

type writeReq struct {
	Path    string `json:"path"`
	Format  string `json:"format,omitempty"`
	Title   string `json:"title,omitempty"`
	Author  string `json:"author,omitempty"`
	Content string `json:"content"`
}

func (s *Server) registerWriteTool() {
	tool := &mcp.Tool{
		Name:        "write_ebook",
		Description: "Create an ebook from plain text. The format defaults to the one implied by the path extension.",
		InputSchema: inputSchema(map[string]any{
			"path":    stringProp("Output file path"),
			"format":  stringProp("Output format: epub, mobi, azw3, fb2, cbz, pdf or txt"),
			"title":   stringProp("Book title"),
			"author":  stringProp("Book author"),
			"content": stringProp("Book text; chapters are separated by a line containing ---"),
		}, []string{"path", "content"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *writeReq) (any, error) {
		if r.Path == "" {
			return nil, ebook.Errorf(ebook.KindValidation, "path is required")
		}
		var f ebook.Format
		var err error
		if r.Format != "" {
			f, err = ebook.ParseFormat(r.Format)
		} else {
			f, err = ebook.DetectFormat(r.Path)
		}
		if err != nil {
			return nil, err
		}
		h, err := s.conv.NewHandler(f)
		if err != nil {
			return nil, err
		}
		converter.Populate(h, f, ebook.Metadata{Title: r.Title, Author: r.Author}, r.Content)
		if err := h.WriteFile(r.Path); err != nil {
			return nil, err
		}
		return map[string]any{"path": r.Path, "format": string(f)}, nil
	})
}

// --- convert_ebook ---

type convertReq struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Format string `json:"format"`
}

func (s *Server) registerConvertTool() {
	tool := &mcp.Tool{
		Name:        "convert_ebook",
		Description: "Convert an ebook to another format.",
		InputSchema: inputSchema(map[string]any{
			"input":  stringProp("Source file path"),
			"output": stringProp("Destination file path"),
			"format": stringProp("Target format"),
		}, []string{"input", "output", "format"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *convertReq) (any, error) {
		f, err := ebook.ParseFormat(r.Format)
		if err != nil {
			return nil, err
		}
		if err := s.conv.Convert(r.Input, r.Output, f); err != nil {
			return nil, err
		}
		return map[string]any{"output": r.Output, "format": string(f)}, nil
	})
}

// --- validate_ebook ---

func (s *Server) registerValidateTool() {
	tool := &mcp.Tool{
		Name:        "validate_ebook",
		Description: "Read an ebook and report whether it passes the format's sanity checks.",
		InputSchema: inputSchema(map[string]any{
			"path": stringProp("Path of the ebook file"),
		}, []string{"path"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *readReq) (any, error) {
		f, problems := s.conv.Validate(r.Path)
		return map[string]any{"valid": len(problems) == 0, "format": string(f), "errors": problems}, nil
	})
}

// --- extract_images ---

type extractReq struct {
	Path      string `json:"path"`
	OutputDir string `json:"output_dir"`
}

func (s *Server) registerExtractImagesTool() {
	tool := &mcp.Tool{
		Name:        "extract_images",
		Description: "Write every image embedded in an ebook to a directory.",
		InputSchema: inputSchema(map[string]any{
			"path":       stringProp("Path of the ebook file"),
			"output_dir": stringProp("Directory receiving the images"),
		}, []string{"path", "output_dir"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *extractReq) (any, error) {
		_, h, err := s.conv.Open(r.Path)
		if err != nil {
			return nil, err
		}
		files, err := ebook.ExtractImages(h.Images(), r.OutputDir)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": len(files), "files": files}, nil
	})
}

// --- optimize_images ---

type optimizeReq struct {
	Path      string `json:"path"`
	Output    string `json:"output,omitempty"`
	MaxWidth  *int   `json:"max_width,omitempty"`
	MaxHeight *int   `json:"max_height,omitempty"`
	Quality   *int   `json:"quality,omitempty"`
}

func (s *Server) registerOptimizeImagesTool() {
	tool := &mcp.Tool{
		Name:        "optimize_images",
		Description: "Resize and re-encode the images of an EPUB or CBZ file. Images are only replaced when the result is smaller.",
		InputSchema: inputSchema(map[string]any{
			"path":       stringProp("Path of the EPUB or CBZ file"),
			"output":     stringProp("Output path; defaults to overwriting the input"),
			"max_width":  intProp("Maximum image width in pixels"),
			"max_height": intProp("Maximum image height in pixels"),
			"quality":    intProp("JPEG quality, 1-100"),
		}, []string{"path"}),
	}
	addTool(s.srv, tool, func(_ context.Context, r *optimizeReq) (any, error) {
		f, h, err := s.conv.Open(r.Path)
		if err != nil {
			return nil, err
		}
		opt, ok := h.(ebook.ImageOptimizable)
		if !ok {
			return nil, ebook.Errorf(ebook.KindNotSupported, "%s files have no optimizable images", f.Label())
		}

		o := s.optimize
		if r.MaxWidth != nil {
			o.MaxWidth = *r.MaxWidth
		}
		if r.MaxHeight != nil {
			o.MaxHeight = *r.MaxHeight
		}
		if r.Quality != nil {
			o.Quality = *r.Quality
		}
		saved := opt.OptimizeImages(optimize.New(o))

		out := r.Output
		if out == "" {
			out = r.Path
		}
		if err := h.WriteFile(out); err != nil {
			return nil, err
		}
		return map[string]any{"output": out, "saved_bytes": saved}, nil
	})
}
