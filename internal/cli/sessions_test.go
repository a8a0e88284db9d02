package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/config"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCommands(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	var out bytes.Buffer

	require.NoError(t, ListSessions(ctx, store, &out))
	assert.Equal(t, "No sessions found.\n", out.String())

	root := domain.NewValue()
	root.FirstChild("count").SetValue(7)
	require.NoError(t, store.Save(ctx, "b", domain.NewSnapshot("b", domain.StatusCompleted, root)))
	require.NoError(t, store.Save(ctx, "a", domain.NewSnapshot("a", domain.StatusRunning, nil)))

	out.Reset()
	require.NoError(t, ListSessions(ctx, store, &out))
	assert.Equal(t, "Sessions:\n- a\n- b\n", out.String())

	out.Reset()
	require.NoError(t, InspectSession(ctx, store, "b", &out))
	assert.Contains(t, out.String(), `"status": "completed"`)
	assert.Contains(t, out.String(), `"count"`)

	err := InspectSession(ctx, store, "ghost", &out)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	out.Reset()
	require.NoError(t, RemoveSessions(ctx, store, []string{"a", "b"}, &out))
	assert.Equal(t, "Removed session 'a'\nRemoved session 'b'\n", out.String())

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunDemo(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Kind = config.StoreBolt
	cfg.Store.Bolt.Path = filepath.Join(t.TempDir(), "weft.db")
	rt := newRuntime(t, cfg)

	var out bytes.Buffer
	require.NoError(t, RunDemo(context.Background(), rt, []string{"counter", "booking"}, &out))
	assert.Contains(t, out.String(), "== counter ==")
	assert.Contains(t, out.String(), "get -> 12")
	assert.Contains(t, out.String(), "== booking ==")
	assert.NotContains(t, out.String(), "== calculator ==")
	assert.Contains(t, out.String(), ">>> Sessions kept in the bolt store.")

	ids, err := rt.Store.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, ids, "demo sessions are persisted")

	err = RunDemo(context.Background(), rt, []string{"nope"}, &out)
	assert.ErrorContains(t, err, `unknown demo "nope"`)
}
