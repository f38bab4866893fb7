package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabpipe/fallback"
	"github.com/hazyhaar/tabpipe/strategy"
)

// RegisterMCP registers tabpipe tools on an MCP server.
func (r *Runner) RegisterMCP(srv *mcp.Server) {
	r.registerExtractTool(srv)
	r.registerRunTool(srv)
	r.registerStrategiesTool(srv)
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

// addTool wires a typed endpoint to the server: decode arguments, run,
// marshal the response as a single text content block. Tool failures are
// reported through the result error channel, not a transport error.
func addTool(srv *mcp.Server, tool *mcp.Tool, endpoint func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := endpoint(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
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

// --- extract ---

type extractReq struct {
	Path string `json:"path"`
}

// extractResp is the single-document tool response: the document summary
// fields plus the recovered tables themselves.
type extractResp struct {
	Winner      string           `json:"winning_strategy"`
	Status      string           `json:"status"`
	TableCounts map[string]int   `json:"tables_found_by_strategy"`
	Tables      []strategy.Table `json:"tables,omitempty"`
	Text        string           `json:"text,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (r *Runner) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabpipe_extract",
		Description: "Extract tables and text from a single PDF through the strategy fallback chain. Returns tables, text, and which strategy won.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path to extract"},
		}, []string{"path"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req extractReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		ex := fallback.New(r.probeChain(ctx), fallback.Options{
			AttemptTimeout: time.Duration(r.cfg.AttemptTimeout),
			Logger:         r.logger,
		})
		res := ex.Extract(ctx, req.Path)
		return extractResp{
			Winner:      res.Winner,
			Status:      string(res.Status),
			TableCounts: res.TableCounts,
			Tables:      res.Tables,
			Text:        res.Text,
			Error:       res.Err,
		}, nil
	})
}

// --- run ---

type runReq struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	Limit     int    `json:"limit,omitempty"`
}

func (r *Runner) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabpipe_run",
		Description: "Run batch extraction over every PDF in a directory, writing per-document artifacts and a batch summary under the output directory.",
		InputSchema: inputSchema(map[string]any{
			"input_dir":  map[string]any{"type": "string", "description": "Directory containing PDFs"},
			"output_dir": map[string]any{"type": "string", "description": "Output root directory"},
			"limit":      map[string]any{"type": "integer", "description": "Process only the first N documents (0 = all)"},
		}, []string{"input_dir", "output_dir"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req runReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		cfg := r.cfg
		if req.Limit > 0 {
			cfg.Limit = req.Limit
		}
		run, err := NewRunner(cfg, WithLogger(r.logger), WithBackends(r.strategies...))
		if err != nil {
			return nil, err
		}
		return run.Run(ctx, req.InputDir, req.OutputDir)
	})
}

// --- strategies ---

func (r *Runner) registerStrategiesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabpipe_strategies",
		Description: "List the configured extraction strategies in fallback order.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	addTool(srv, tool, func(_ context.Context, _ json.RawMessage) (any, error) {
		return map[string]any{
			"strategies": names(r.strategies),
			"default":    strategy.DefaultOrder(),
		}, nil
	})
}
