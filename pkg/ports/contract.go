package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		root := domain.NewValue()
		root.FirstChild("foo").SetValue("bar")
		root.FirstChild("count").SetValue(42)
		root.Children("items").Append(domain.NewLong(7))
		root.Children("items").Append(domain.NewDouble(1.5))
		snapshot := domain.NewSnapshot(sessionID, domain.StatusFaulted, root)
		snapshot.Fault = "Boom"

		err := store.Save(ctx, sessionID, snapshot)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, domain.StatusFaulted, loaded.Status)
		assert.Equal(t, "Boom", loaded.Fault)
		assert.Equal(t, "bar", loaded.Root.FirstChild("foo").StrValue())
		// Scalar kinds must survive persistence.
		assert.Equal(t, domain.KindInt, loaded.Root.FirstChild("count").Kind())
		assert.Equal(t, domain.KindLong, loaded.Root.Children("items").Get(0).Kind())
		assert.True(t, root.Equal(loaded.Root))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, domain.StatusCompleted, nil))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSnapshot(id1, domain.StatusCompleted, nil))
		_ = store.Save(ctx, id2, domain.NewSnapshot(id2, domain.StatusCompleted, nil))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
