// Package mcpserver exposes an analysis session as Model Context Protocol
// tools, so that an MCP host can load data, run code and ask questions.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/engine"
	"github.com/rhuss/tabula/pkg/session"
)

// Implementation identifies the server to MCP clients.
var Implementation = &mcp.Implementation{Name: "tabula", Version: "v0.1.0"}

// LoadDataInput is the argument of the load_data tool.
type LoadDataInput struct {
	Path string `json:"path" jsonschema:"path of a CSV, TSV or JSON file readable by the server"`
}

// ExecuteInput is the argument of the execute tool.
type ExecuteInput struct {
	Code string `json:"code" jsonschema:"JavaScript to run in the session; df is the loaded table"`
}

// AskInput is the argument of the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"question about the loaded data in plain language"`
}

// Server binds one analysis session to an MCP server. The session is
// created on first use and recreated if it was reaped.
type Server struct {
	manager *session.Manager
	logger  *slog.Logger
	server  *mcp.Server

	mu        sync.Mutex
	sessionID string
}

// New creates a Server backed by m.
func New(m *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: m,
		logger:  logger,
	}
	s.server = mcp.NewServer(Implementation, &mcp.ServerOptions{
		InitializedHandler: func(_ context.Context, req *mcp.InitializedRequest) {
			go s.closeOnDisconnect(req.Session)
		},
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "load_data",
		Description: "Load a tabular file as the dataset df of the session, replacing the previous one.",
	}, s.loadData)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "execute",
		Description: "Run JavaScript in the session. Top level variables and functions persist; print() output is returned.",
	}, s.execute)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about the loaded dataset by generating and running code, retrying on errors.",
	}, s.ask)

	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves the tools over t until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

// SessionID returns the current analysis session, or "" before first use.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Close ends the analysis session.
func (s *Server) Close() error {
	s.mu.Lock()
	id := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := s.manager.Delete(id); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// closeOnDisconnect ends the analysis session once the client is gone.
func (s *Server) closeOnDisconnect(ss *mcp.ServerSession) {
	ss.Wait()
	if err := s.Close(); err != nil {
		s.logger.Warn("closing analysis session", "error", err)
	}
	debug.Log("mcp", "client disconnected, analysis session closed")
}

// Handler serves MCP over streamable HTTP. Each MCP connection gets its own
// Server and therefore its own analysis session.
func Handler(m *session.Manager, logger *slog.Logger) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return New(m, logger).server
	}, nil)
}

// current returns the live session ID, creating a session when there is
// none or the previous one was reaped.
func (s *Server) current() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		if _, err := s.manager.Get(s.sessionID); err == nil {
			return s.sessionID, nil
		}
		s.logger.Info("mcp session expired, starting a new one", "session_id", s.sessionID)
	}
	sess, err := s.manager.Create()
	if err != nil {
		return "", err
	}
	s.sessionID = sess.ID
	return sess.ID, nil
}

func (s *Server) loadData(ctx context.Context, _ *mcp.CallToolRequest, in LoadDataInput) (*mcp.CallToolResult, any, error) {
	if in.Path == "" {
		return toolError("path is required"), nil, nil
	}
	id, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	res, err := s.manager.LoadDataset(ctx, id, in.Path)
	if err != nil {
		return nil, nil, err
	}
	if !res.Loaded {
		return toolError(res.Message), nil, nil
	}
	return textResult(res.Message), nil, nil
}

func (s *Server) execute(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, any, error) {
	id, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	res, err := s.manager.Execute(ctx, id, in.Code)
	if err != nil {
		return nil, nil, err
	}
	if !res.OK {
		return toolError("Error: " + res.Error), nil, nil
	}
	return textResult(res.Output), nil, nil
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	id, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	ans, err := s.manager.Ask(ctx, id, in.Question)
	switch {
	case errors.Is(err, session.ErrNoDataset):
		return toolError("no dataset loaded; call load_data first"), nil, nil
	case ans == nil && err != nil:
		return nil, nil, err
	case errors.Is(err, engine.ErrOracle):
		s.logger.Warn("mcp ask failed", "session_id", id, "error", err)
		return toolError("the code generation backend failed; try again later"), nil, nil
	case err != nil:
		s.logger.Warn("mcp ask failed", "session_id", id, "error", err)
		return toolError(ans.Record.Answer), nil, nil
	}

	result := textResult(ans.Record.Answer)
	if ans.Record.Status == api.TurnStatusExhausted {
		result.IsError = true
	}
	if ans.ImagePath != "" {
		data, err := os.ReadFile(ans.ImagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading plot: %w", err)
		}
		result.Content = append(result.Content, &mcp.ImageContent{Data: data, MIMEType: "image/png"})
	}
	return result, nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(text string) *mcp.CallToolResult {
	r := textResult(text)
	r.IsError = true
	return r
}
