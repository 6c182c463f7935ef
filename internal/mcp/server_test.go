package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/rpc"
)

// fakeBackend serves records from memory keyed by category and path.
type fakeBackend struct {
	records map[model.Category]map[string]any
	loads   []rpc.LoadRequest
}

func (f *fakeBackend) Analyze(_ context.Context, req rpc.AnalyzeRequest) (*rpc.AnalyzeResponse, error) {
	if req.Package == "/missing" {
		return nil, errors.New("no Cargo.toml")
	}
	return &rpc.AnalyzeResponse{Crate: "my_crate", Modules: []string{"my_crate"}}, nil
}

func (f *fakeBackend) Load(_ context.Context, req rpc.LoadRequest) (*rpc.LoadResponse, error) {
	f.loads = append(f.loads, req)
	resp := &rpc.LoadResponse{Items: []json.RawMessage{}}
	if rec, ok := f.records[model.Category(req.Category)][req.Path]; ok {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, data)
	}
	return resp, nil
}

func (f *fakeBackend) Status(context.Context, string) (*rpc.StatusResponse, error) {
	return &rpc.StatusResponse{Crates: []rpc.CrateStatus{{Name: "my_crate", Modules: 1}}}, nil
}

func newFake() *fakeBackend {
	return &fakeBackend{records: map[model.Category]map[string]any{
		model.Structs: {
			"my_crate::a::S": model.Struct{
				Path:      model.Path{"my_crate", "a", "S"},
				Docstring: "Uses [`E`](E) and [f](crate::a::f).",
			},
		},
		model.Enums: {
			"my_crate::a::E": model.Enum{Path: model.Path{"my_crate", "a", "E"}},
		},
		model.Functions: {
			"my_crate::a::f": model.Function{Path: model.Path{"my_crate", "a", "f"}},
		},
	}}
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text, res.IsError
}

func TestHandleAnalyze(t *testing.T) {
	s := NewServerWithBackend(newFake())

	out, isErr := callTool(t, s.handleAnalyze, map[string]any{"package": "/pkg"})
	if isErr {
		t.Fatalf("unexpected error result: %s", out)
	}
	var resp rpc.AnalyzeResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Crate != "my_crate" {
		t.Errorf("crate = %q", resp.Crate)
	}

	if _, isErr := callTool(t, s.handleAnalyze, map[string]any{}); !isErr {
		t.Error("missing package should be a tool error")
	}
	if out, isErr := callTool(t, s.handleAnalyze, map[string]any{"package": "/missing"}); !isErr || !strings.Contains(out, "Cargo.toml") {
		t.Errorf("got %q, %v", out, isErr)
	}
}

func TestHandleLoad_Defaults(t *testing.T) {
	fake := newFake()
	s := NewServerWithBackend(fake)

	out, isErr := callTool(t, s.handleLoad, map[string]any{
		"category":     "structs",
		"path":         "my_crate::a::S",
		"include_self": true,
	})
	if isErr {
		t.Fatalf("unexpected error result: %s", out)
	}
	var items []model.Struct
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Path.String() != "my_crate::a::S" {
		t.Errorf("unexpected items %+v", items)
	}

	want := rpc.LoadRequest{Category: "structs", Mode: "one", Path: "my_crate::a::S", IncludeSelf: true}
	if diff := cmp.Diff(want, fake.loads[0]); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if _, isErr := callTool(t, s.handleLoad, map[string]any{"path": "x"}); !isErr {
		t.Error("missing category should be a tool error")
	}
}

func TestHandleReadResource(t *testing.T) {
	s := NewServerWithBackend(newFake())

	var req mcp.ReadResourceRequest
	req.Params.URI = "rsmodel://structs/my_crate::a::S"
	contents, err := s.handleReadResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	for _, want := range []string{
		"# Struct `my_crate::a::S`",
		"(rsmodel://enums/my_crate::a::E)",
		"(rsmodel://functions/my_crate::a::f)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered resource missing %q:\n%s", want, text)
		}
	}

	req.Params.URI = "rsmodel://structs/my_crate::nope"
	if _, err := s.handleReadResource(context.Background(), req); err == nil {
		t.Error("expected error for missing record")
	}
	req.Params.URI = "rsdoc://structs/x"
	if _, err := s.handleReadResource(context.Background(), req); err == nil {
		t.Error("expected error for foreign scheme")
	}
}
