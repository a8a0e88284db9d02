// Package mcp exposes an interpreter as a Model Context Protocol server, so
// agents can call a program's operations and inspect its sessions as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InterfaceURI is the resource listing the operations of the served program.
const InterfaceURI = "weft://interface"

// Interpreter is what the MCP server drives.
type Interpreter interface {
	ports.Receiver
	Sessions() []string
	Session(ctx context.Context, id string) (*domain.Snapshot, error)
	Kill(id string, fault *domain.Fault) error
}

// OperationInfo describes one operation of the program interface.
type OperationInfo struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Request  string   `json:"request,omitempty"`
	Response string   `json:"response,omitempty"`
	Faults   []string `json:"faults,omitempty"`
}

// InvokeResult is the JSON body returned by the invoke tool.
type InvokeResult struct {
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Fault     string `json:"fault,omitempty"`
	Detail    any    `json:"detail,omitempty"`
}

// Server wraps an interpreter and exposes it as an MCP Server.
type Server struct {
	itp       Interpreter
	ops       []domain.Operation
	timeout   time.Duration
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout bounds the wait for an operation reply.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server for a program's interface.
func NewServer(itp Interpreter, program weft.Program, opts ...Option) *Server {
	s := &Server{
		itp:     itp,
		ops:     program.Interface,
		timeout: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	name := "weft"
	if program.Name != "" {
		name += "-" + program.Name
	}
	s.mcpServer = server.NewMCPServer(name, strings.TrimSpace(weft.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	names := make([]string, len(s.ops))
	for i, op := range s.ops {
		names[i] = op.Name
	}

	s.mcpServer.AddTool(mcp.NewTool("invoke",
		mcp.WithDescription("Call an operation of the program and return its reply. Operations: "+strings.Join(names, ", ")),
		mcp.WithString("operation", mcp.Required(), mcp.Description("Operation name")),
		mcp.WithString("payload", mcp.Description("JSON payload of the request (optional)")),
		mcp.WithString("session_id", mcp.Description("Session to address; omit to start a new one")),
	), s.handleInvoke)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the ids of running sessions."),
	), s.handleListSessions)

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the status and variables of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)

	s.mcpServer.AddTool(mcp.NewTool("kill_session",
		mcp.WithDescription("Interrupt a running session with a fault."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("fault", mcp.Description("Fault name (default "+weft.KillFault+")")),
	), s.handleKillSession)
}

func (s *Server) handleInvoke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, err := request.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload := domain.NewValue()
	if raw := request.GetString("payload", ""); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var native any
		if err := dec.Decode(&native); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid payload: %v", err)), nil
		}
		payload = domain.ValueFromNative(native)
	}

	msg := domain.NewRequest(op, "/", payload)
	if id := request.GetString("session_id", ""); id != "" {
		msg = msg.WithSessionID(id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := memory.NewReplyChannel("mcp")
	if err := s.itp.Deliver(ctx, msg, ch); err != nil {
		s.logger.Debug("MCP invoke rejected", "operation", op, "err", err)
	}
	reply, err := ch.Reply(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no reply to %s: %v", op, err)), nil
	}

	result := InvokeResult{SessionID: reply.SessionID()}
	if fault := reply.Fault(); fault != nil {
		result.Fault = fault.Name
		if fault.Payload != nil && !fault.Payload.IsEmpty() {
			result.Detail = fault.Payload.Native()
		}
	} else if p := reply.Payload(); p != nil && !p.IsEmpty() {
		result.Payload = p.Native()
	}
	return jsonResult(result, reply.IsFault())
}

func (s *Server) handleListSessions(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := s.itp.Sessions()
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(ids, false)
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snapshot, err := s.itp.Session(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", id, err)), nil
	}
	return jsonResult(map[string]any{
		"session_id": snapshot.SessionID,
		"status":     snapshot.Status,
		"fault":      snapshot.Fault,
		"state":      snapshot.Root.Native(),
	}, false)
}

func (s *Server) handleKillSession(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var fault *domain.Fault
	if name := request.GetString("fault", ""); name != "" {
		fault = domain.NewFault(name, nil)
	}
	if err := s.itp.Kill(id, fault); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("session %s is not running", id)), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText("killed " + id), nil
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if isError {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Interface describes the operations of the served program.
func (s *Server) Interface() []OperationInfo {
	out := make([]OperationInfo, len(s.ops))
	for i, op := range s.ops {
		info := OperationInfo{Name: op.Name, Kind: string(op.Kind)}
		if op.Request != nil {
			info.Request = op.Request.String()
		}
		if op.Kind == domain.RequestResponse {
			if op.Response != nil {
				info.Response = op.Response.String()
			}
			info.Faults = slices.Sorted(maps.Keys(op.Faults))
		}
		out[i] = info
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(InterfaceURI, "Program interface",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.Interface())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      InterfaceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
