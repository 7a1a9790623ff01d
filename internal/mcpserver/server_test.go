package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"dictation/internal/ipc"
)

type fakeDaemon struct {
	got  []ipc.Command
	resp ipc.Response
	err  error
}

func (f *fakeDaemon) SendCommand(cmd ipc.Command) (ipc.Response, error) {
	f.got = append(f.got, cmd)
	return f.resp, f.err
}

func call(t *testing.T, h *handlers, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := h.command(name)(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return tc.Text
}

func TestCommandArguments(t *testing.T) {
	d := &fakeDaemon{resp: ipc.Response{OK: true, Target: "memo"}}
	h := &handlers{daemon: d}

	res := call(t, h, "start", map[string]any{"session": "s1", "name": "memo"})
	if res.IsError {
		t.Fatalf("start failed: %s", text(t, res))
	}
	if !strings.Contains(text(t, res), `"target": "memo"`) {
		t.Errorf("result = %s", text(t, res))
	}

	call(t, h, "utterance", map[string]any{"text": "hello"})
	call(t, h, "list", map[string]any{"limit": float64(5)})

	if len(d.got) != 3 {
		t.Fatalf("commands = %+v", d.got)
	}
	if d.got[0].Cmd != "start" || d.got[0].Session != "s1" || d.got[0].Name != "memo" {
		t.Errorf("start command = %+v", d.got[0])
	}
	if d.got[1].Cmd != "utterance" || d.got[1].Text != "hello" {
		t.Errorf("utterance command = %+v", d.got[1])
	}
	if d.got[2].Limit != 5 {
		t.Errorf("list limit = %d", d.got[2].Limit)
	}
}

func TestCommandErrors(t *testing.T) {
	d := &fakeDaemon{resp: ipc.Response{OK: false, Code: ipc.CodeNotDictating, Error: "not dictating"}}
	h := &handlers{daemon: d}

	res := call(t, h, "stop", nil)
	if !res.IsError || !strings.HasPrefix(text(t, res), ipc.CodeNotDictating) {
		t.Errorf("stop result = %+v", res)
	}

	res = call(t, h, "utterance", map[string]any{})
	if !res.IsError {
		t.Error("missing text should be a tool error")
	}
	if len(d.got) != 1 {
		t.Errorf("utterance without text reached the daemon: %+v", d.got)
	}

	d.err = errors.New("connection refused")
	res = call(t, h, "status", nil)
	if !res.IsError || !strings.Contains(text(t, res), "daemon unavailable") {
		t.Errorf("status result = %+v", res)
	}
}

func TestNewRegistersTools(t *testing.T) {
	if s := New(&fakeDaemon{}, "test"); s == nil {
		t.Fatal("nil server")
	}
}
