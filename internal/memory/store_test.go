package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive", "joat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordAndLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	turns := []protocol.Turn{
		{Role: protocol.RoleUser, Content: "q1", Timestamp: base},
		{Role: protocol.RoleAssistant, Content: "a1", Timestamp: base.Add(time.Nanosecond)},
	}
	require.NoError(t, store.Record(ctx, "s1", "llama3", turns...))
	require.NoError(t, store.Record(ctx, "s1", "llama3",
		protocol.Turn{Role: protocol.RoleUser, Content: "q2", Timestamp: base.Add(time.Second)},
	))
	require.NoError(t, store.Record(ctx, "s1", "codellama",
		protocol.Turn{Role: protocol.RoleUser, Content: "code?", Timestamp: base},
	))
	require.NoError(t, store.Record(ctx, "s2", "llama3",
		protocol.Turn{Role: protocol.RoleUser, Content: "other session", Timestamp: base},
	))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	if diff := cmp.Diff([]string{"q1", "a1", "q2"}, contents(loaded["llama3"])); diff != "" {
		t.Errorf("llama3 history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"code?"}, contents(loaded["codellama"]))
	assert.True(t, loaded["llama3"][0].Timestamp.Equal(base))
	assert.Equal(t, protocol.RoleAssistant, loaded["llama3"][1].Role)
}

func TestStoreLoadUnknownSession(t *testing.T) {
	store := openTestStore(t)
	loaded, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreRecordValidation(t *testing.T) {
	store := openTestStore(t)
	err := store.Record(context.Background(), "", "m", user("x"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	assert.NoError(t, store.Record(context.Background(), "s", "m"))
}

func TestStoreSessionsAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Record(ctx, "s1", "m1", user("a"), assistant("b")))
	require.NoError(t, store.Record(ctx, "s1", "m2", user("c")))

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, 3, sessions[0].TurnCount)

	require.NoError(t, store.ClearModel(ctx, "s1", "m1"))
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, loaded, "m1")
	assert.Contains(t, loaded, "m2")

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	loaded, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joat.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, "s", "m", user("persisted")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, contents(loaded["m"]))
}
