// Package mcpserver exposes the running daemon as MCP tools so an agent can
// start, feed and stop dictations.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dictation/internal/ipc"
)

// Sender delivers control commands to the daemon.
type Sender interface {
	SendCommand(cmd ipc.Command) (ipc.Response, error)
}

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session", mcp.Description("Conversation id, defaults to "+ipc.DefaultSession))
}

// New registers the dictation tools on a new MCP server.
func New(daemon Sender, version string) *server.MCPServer {
	s := server.NewMCPServer("dictation", version, server.WithToolCapabilities(false))
	h := &handlers{daemon: daemon}

	s.AddTool(mcp.NewTool("start_dictation",
		mcp.WithDescription("Start capturing utterances into a named dictation"),
		sessionArg(),
		mcp.WithString("name", mcp.Description("File name of the dictation, defaults to the start time")),
	), h.command("start"))

	s.AddTool(mcp.NewTool("stop_dictation",
		mcp.WithDescription("Stop the dictation and save it, returns the file path"),
		sessionArg(),
	), h.command("stop"))

	s.AddTool(mcp.NewTool("dictate",
		mcp.WithDescription("Submit an utterance as if it was heard by the assistant"),
		sessionArg(),
		mcp.WithString("text", mcp.Required(), mcp.Description("The utterance")),
	), h.command("utterance"))

	s.AddTool(mcp.NewTool("undo_dictation",
		mcp.WithDescription("Remove the last captured utterance"),
		sessionArg(),
	), h.command("undo"))

	s.AddTool(mcp.NewTool("autocomplete",
		mcp.WithDescription("Complete text with the configured backend and append the suggestion"),
		sessionArg(),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to complete")),
	), h.command("complete"))

	s.AddTool(mcp.NewTool("dictation_status",
		mcp.WithDescription("Report whether a session is dictating and how many utterances it holds"),
		sessionArg(),
	), h.command("status"))

	s.AddTool(mcp.NewTool("read_dictation",
		mcp.WithDescription("Return the last saved dictation"),
		sessionArg(),
	), h.command("read"))

	s.AddTool(mcp.NewTool("list_dictations",
		mcp.WithDescription("List saved dictations, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries")),
	), h.command("list"))

	return s
}

// Serve runs the MCP server on stdio.
func Serve(daemon Sender, version string) error {
	return server.ServeStdio(New(daemon, version))
}

type handlers struct {
	daemon Sender
}

func (h *handlers) command(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cmd := ipc.Command{
			Cmd:     name,
			Session: req.GetString("session", ""),
			Name:    req.GetString("name", ""),
			Limit:   req.GetInt("limit", 0),
		}
		if name == "utterance" || name == "complete" {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			cmd.Text = text
		}

		resp, err := h.daemon.SendCommand(cmd)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("daemon unavailable: %v", err)), nil
		}
		if !resp.OK {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", resp.Code, resp.Error)), nil
		}

		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}
