package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// ==================== AccountStore Tests ====================

func TestAccountStore_SaveGetList(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Account{ID: "b", Type: domain.AccountTypeBox, Name: "work"}))
	require.NoError(t, store.Save(ctx, domain.Account{ID: "a", Type: domain.AccountTypeDropbox, Name: "home"}))

	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "work", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestAccountStore_UpdateKeepsCreatedAt(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Account{ID: "a", Type: domain.AccountTypeBox}))
	first, _ := store.Get(ctx, "a")
	require.NoError(t, store.Save(ctx, domain.Account{ID: "a", Type: domain.AccountTypeBox, Name: "renamed"}))
	second, _ := store.Get(ctx, "a")

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "renamed", second.Name)

	list, _ := store.List(ctx)
	assert.Len(t, list, 1)
}

func TestAccountStore_ConfigIsCopied(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()
	cfg := map[string]string{domain.ConfigKeyToken: "tok"}

	require.NoError(t, store.Save(ctx, domain.Account{ID: "a", Type: domain.AccountTypeBox, Config: cfg}))
	cfg[domain.ConfigKeyToken] = "mutated"

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Config[domain.ConfigKeyToken])
}

func TestAccountStore_Errors(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, domain.Account{}), domain.ErrInvalidInput)
	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), domain.ErrNotFound)
}

func TestAccountStore_Delete(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Account{ID: "a", Type: domain.AccountTypeBox}))
	require.NoError(t, store.Delete(ctx, "a"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// ==================== PositionStore Tests ====================

func TestPositionStore_Lifecycle(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.SentinelPosition, pos)

	require.NoError(t, store.Commit(ctx, "a", "555"))
	pos, _ = store.Get(ctx, "a")
	assert.Equal(t, "555", pos)

	require.NoError(t, store.Reset(ctx, "a"))
	pos, _ = store.Get(ctx, "a")
	assert.Equal(t, domain.SentinelPosition, pos)

	assert.ErrorIs(t, store.Commit(ctx, "a", ""), domain.ErrInvalidInput)
}

func TestPositionStore_ConcurrentCommits(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Commit(ctx, "a", "p")
			_, _ = store.Get(ctx, "a")
		}()
	}
	wg.Wait()

	pos, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p", pos)
}

// ==================== IndexStore Tests ====================

func TestIndexStore_UpsertAndRemove(t *testing.T) {
	store := NewIndexStore()
	ctx := context.Background()

	for _, p := range []string{"docs", "docs/a.txt", "docs/sub/b.txt", "docs2/c.txt"} {
		require.NoError(t, store.Upsert(ctx, domain.IndexEntry{AccountID: "a", SourcePath: p}))
	}
	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{AccountID: "other", SourcePath: "docs/a.txt"}))

	got, err := store.Get(ctx, "a", "docs/a.txt")
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, store.Remove(ctx, "a", "docs", true))

	entries, err := store.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "docs2/c.txt", entries[0].SourcePath)

	others, err := store.List(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, others, 1)

	_, err = store.Get(ctx, "a", "docs/a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexStore_RemoveNonRecursive(t *testing.T) {
	store := NewIndexStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{AccountID: "a", SourcePath: "dir"}))
	require.NoError(t, store.Upsert(ctx, domain.IndexEntry{AccountID: "a", SourcePath: "dir/x"}))
	require.NoError(t, store.Remove(ctx, "a", "dir", false))
	require.NoError(t, store.Remove(ctx, "missing", "dir", true))

	entries, err := store.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dir/x", entries[0].SourcePath)
}
