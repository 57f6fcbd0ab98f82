package drawer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/muilab/notigpt/internal/logger"
	"github.com/muilab/notigpt/internal/storage"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *DBStore {
	t.Helper()

	db, err := storage.InitDatabase(storage.DriverSQLite, filepath.Join(t.TempDir(), "drawer.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewDBStore(db, logger.Nop())
}

func testUnit(key string, score float64, ranking int) NotiUnit {
	return NotiUnit{
		SbnKey:   key,
		HashKey:  int64(len(key)),
		AppName:  "Chat",
		IsPeople: true,
		Title:    "Alice",
		NotiInfos: []NotiInfo{
			{Time: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), Title: "Alice", Content: "hi " + key},
		},
		Score:   score,
		Ranking: ranking,
	}
}

func TestDBStore_InsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	unit := testUnit("k1", 1, 0)
	unit.PrevNotiInfos = []NotiInfo{{Time: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), Content: "older"}}
	require.NoError(t, store.Insert(ctx, unit))

	got, err := store.GetBySbnKey(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Chat", got[0].AppName)
	require.True(t, got[0].IsPeople)
	require.Len(t, got[0].NotiInfos, 1)
	require.Equal(t, "hi k1", got[0].NotiInfos[0].Content)
	require.True(t, got[0].NotiInfos[0].Time.Equal(unit.NotiInfos[0].Time))
	require.Len(t, got[0].PrevNotiInfos, 1)
	require.Equal(t, "older", got[0].PrevNotiInfos[0].Content)

	byHash, err := store.GetByHashKey(ctx, unit.HashKey)
	require.NoError(t, err)
	require.Len(t, byHash, 1)

	missing, err := store.GetBySbnKey(ctx, "nope")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestDBStore_InsertReplaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUnit("k1", 1, 0)))

	replaced := testUnit("k1", 5, 2)
	replaced.Title = "Bob"
	require.NoError(t, store.Insert(ctx, replaced))

	n, err := store.CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.GetBySbnKey(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "Bob", got[0].Title)
	require.Equal(t, 5.0, got[0].Score)
	require.Equal(t, 2, got[0].Ranking)
}

func TestDBStore_DisplayOrderAndPaging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Expected order: score desc, then ranking asc.
	require.NoError(t, store.Insert(ctx, testUnit("low", 1, 0)))
	require.NoError(t, store.Insert(ctx, testUnit("high-b", 9, 2)))
	require.NoError(t, store.Insert(ctx, testUnit("high-a", 9, 1)))
	require.NoError(t, store.Insert(ctx, testUnit("mid", 5, 0)))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"high-a", "high-b", "mid", "low"}, keys(all))

	page1, err := store.GetPage(ctx, 3, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"high-a", "high-b", "mid"}, keys(page1))

	page2, err := store.GetPage(ctx, 3, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"low"}, keys(page2))
}

func TestDBStore_UpdateAndUpdateList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUnit("a", 1, 0)))
	require.NoError(t, store.Insert(ctx, testUnit("b", 1, 1)))

	a := testUnit("a", 3, 0)
	a.Append(NotiInfo{Time: time.Now(), Content: "second"})
	require.NoError(t, store.Update(ctx, a))

	got, err := store.GetBySbnKey(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got[0].NotiInfos, 2)

	err = store.Update(ctx, testUnit("ghost", 0, 0))
	require.ErrorIs(t, err, ErrNotFound)

	b := testUnit("b", 7, 1)
	b.MarkSeen()
	a.MarkSeen()
	require.NoError(t, store.UpdateList(ctx, []NotiUnit{a, b, testUnit("ghost", 0, 0)}))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, keys(all))
	for _, u := range all {
		require.Empty(t, u.NotiInfos)
		require.NotEmpty(t, u.PrevNotiInfos)
	}
}

func TestDBStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUnit("a", 1, 0)))
	require.NoError(t, store.Insert(ctx, testUnit("b", 1, 1)))

	require.NoError(t, store.DeleteBySbnKey(ctx, "a"))
	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys(all))

	require.NoError(t, store.DeleteAll(ctx))
	n, err := store.CountAll(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDBStore_Modify(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Modify(ctx, "k", func(unit *NotiUnit, exists bool) error {
		require.False(t, exists)
		*unit = testUnit("ignored", 2, 0)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "k", created.SbnKey)

	updated, err := store.Modify(ctx, "k", func(unit *NotiUnit, exists bool) error {
		require.True(t, exists)
		unit.Append(NotiInfo{Content: "again"})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.NotiInfos, 2)

	boom := errors.New("boom")
	_, err = store.Modify(ctx, "k", func(unit *NotiUnit, exists bool) error {
		unit.Title = "changed"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetBySbnKey(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Alice", got[0].Title)
	require.Len(t, got[0].NotiInfos, 2)
}

func keys(units []NotiUnit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.SbnKey)
	}
	return out
}
