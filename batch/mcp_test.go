package batch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "tabpipe-test", Version: "0.1.0"}

func mcpSession(t *testing.T, r *Runner) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	r.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_Strategies(t *testing.T) {
	alpha, beta := scenarioBackends()
	r, err := NewRunner(DefaultConfig(), WithBackends(alpha, beta))
	if err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, r)

	text := mcpCallTool(t, session, "tabpipe_strategies", map[string]any{})
	var resp struct {
		Strategies []string `json:"strategies"`
		Default    []string `json:"default"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Strategies) != 2 || resp.Strategies[0] != "alpha" || resp.Strategies[1] != "beta" {
		t.Errorf("configured chain wrong: %v", resp.Strategies)
	}
	if len(resp.Default) != 3 || resp.Default[0] != "grid" {
		t.Errorf("default chain wrong: %v", resp.Default)
	}
}

func TestMCP_Extract(t *testing.T) {
	alpha, beta := scenarioBackends()
	r, err := NewRunner(DefaultConfig(), WithBackends(alpha, beta))
	if err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, r)

	text := mcpCallTool(t, session, "tabpipe_extract", map[string]any{"path": "/in/doc1.pdf"})
	var resp extractResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Winner != "alpha" || resp.Status != "success" {
		t.Errorf("extract result wrong: %+v", resp)
	}
	if len(resp.Tables) != 2 {
		t.Errorf("tables = %d, want 2", len(resp.Tables))
	}
}

func TestMCP_Run(t *testing.T) {
	in := writeInputs(t, "doc1.pdf", "doc2.pdf", "doc3.pdf")
	out := t.TempDir()
	alpha, beta := scenarioBackends()
	r, err := NewRunner(DefaultConfig(), WithBackends(alpha, beta))
	if err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, r)

	text := mcpCallTool(t, session, "tabpipe_run", map[string]any{
		"input_dir":  in,
		"output_dir": out,
	})
	var sum Summary
	if err := json.Unmarshal([]byte(text), &sum); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sum.TotalFiles != 3 || sum.SuccessfulFiles != 2 || sum.FailedFiles != 1 {
		t.Errorf("batch counts wrong: %+v", sum)
	}
}
