package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/demo"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, program weft.Program) *Server {
	t.Helper()
	itp, err := weft.New(program, weft.WithStateStore(memory.NewStore()))
	require.NoError(t, err)
	require.NoError(t, itp.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = itp.Shutdown(ctx)
	})
	return NewServer(itp, program, WithTimeout(2*time.Second))
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	content, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return content.Text
}

func invoke(t *testing.T, s *Server, args map[string]any) (InvokeResult, bool) {
	t.Helper()
	res, err := s.handleInvoke(context.Background(), call(args))
	require.NoError(t, err)
	var out InvokeResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	return out, res.IsError
}

func TestInvoke(t *testing.T) {
	s := newServer(t, demo.Calculator())

	out, isErr := invoke(t, s, map[string]any{"operation": "sum", "payload": `{"a": 2, "b": 3}`})
	assert.False(t, isErr)
	assert.Equal(t, float64(5), out.Payload)
	assert.NotEmpty(t, out.SessionID)

	out, isErr = invoke(t, s, map[string]any{"operation": "sum", "payload": `{"a": "two"}`})
	assert.True(t, isErr)
	assert.Equal(t, domain.FaultTypeMismatch, out.Fault)

	res, err := s.handleInvoke(context.Background(), call(map[string]any{"operation": "sum", "payload": "{"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "invalid payload")

	res, err = s.handleInvoke(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSessionTools(t *testing.T) {
	s := newServer(t, demo.Counter())
	ctx := context.Background()

	out, isErr := invoke(t, s, map[string]any{"operation": "start"})
	require.False(t, isErr)
	id := out.SessionID

	_, isErr = invoke(t, s, map[string]any{"operation": "add", "payload": "4", "session_id": id})
	require.False(t, isErr)

	res, err := s.handleListSessions(ctx, call(nil))
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &ids))
	assert.Contains(t, ids, id)

	assert.Eventually(t, func() bool {
		res, err := s.handleGetSession(ctx, call(map[string]any{"session_id": id}))
		if err != nil || res.IsError {
			return false
		}
		var view struct {
			Status string         `json:"status"`
			State  map[string]any `json:"state"`
		}
		require.NoError(t, json.Unmarshal([]byte(text(t, res)), &view))
		return view.Status == string(domain.StatusRunning) && view.State["count"] == float64(4)
	}, 2*time.Second, 10*time.Millisecond)

	res, err = s.handleKillSession(ctx, call(map[string]any{"session_id": id, "fault": "Stop"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	assert.Eventually(t, func() bool {
		res, err := s.handleGetSession(ctx, call(map[string]any{"session_id": id}))
		return err == nil && !res.IsError && strings.Contains(text(t, res), `"fault":"Stop"`)
	}, 2*time.Second, 10*time.Millisecond)

	res, err = s.handleKillSession(ctx, call(map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetSession(ctx, call(map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestInterface(t *testing.T) {
	s := newServer(t, demo.Booking())
	info := s.Interface()
	require.Len(t, info, 1)
	assert.Equal(t, "book", info[0].Name)
	assert.Equal(t, string(domain.RequestResponse), info[0].Kind)
	assert.Equal(t, []string{demo.FaultSoldOut}, info[0].Faults)
	assert.NotEmpty(t, info[0].Request)
}
