package migrate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/event"
	"github.com/Iron-Ham/shortkeys/internal/store"
	"github.com/Iron-Ham/shortkeys/internal/store/memstore"
)

type fixture struct {
	db        *memstore.Store
	shortcuts []*store.Shortcut
}

// seed creates n shortcuts and one user per favorites list, where each list
// holds indexes into the shortcuts.
func seed(t *testing.T, n int, favorites ...[]int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{db: memstore.New()}
	for i := 0; i < n; i++ {
		sc := &store.Shortcut{
			KeyCombination:  string(rune('a' + i)),
			Application:     "app",
			OperatingSystem: "linux",
		}
		require.NoError(t, f.db.InsertShortcut(ctx, sc))
		f.shortcuts = append(f.shortcuts, sc)
	}
	for i, favs := range favorites {
		u := &store.User{Username: "user" + string(rune('0'+i))}
		for _, idx := range favs {
			u.Favorites = append(u.Favorites, f.shortcuts[idx].ID)
		}
		require.NoError(t, f.db.InsertUser(ctx, u))
	}
	return f
}

func (f *fixture) counts(t *testing.T) []int {
	t.Helper()
	ids := make([]primitive.ObjectID, len(f.shortcuts))
	for i, sc := range f.shortcuts {
		ids[i] = sc.ID
	}
	found, err := f.db.FindShortcutsByIDs(context.Background(), ids)
	require.NoError(t, err)
	byID := make(map[primitive.ObjectID]int)
	for _, sc := range found {
		byID[sc.ID] = sc.FavoritesCount
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

func TestFavoritesCount_Increment(t *testing.T) {
	f := seed(t, 3, []int{0, 1}, []int{1}, []int{})

	res, err := FavoritesCount(context.Background(), f.db, Options{})
	require.NoError(t, err)

	assert.Equal(t, &Result{Users: 2, Pairs: 3, Written: 3}, res)
	assert.Equal(t, []int{1, 2, 0}, f.counts(t))
}

func TestFavoritesCount_IncrementIsNotIdempotent(t *testing.T) {
	f := seed(t, 1, []int{0})
	ctx := context.Background()

	_, err := FavoritesCount(ctx, f.db, Options{Mode: ModeIncrement})
	require.NoError(t, err)
	_, err = FavoritesCount(ctx, f.db, Options{Mode: ModeIncrement})
	require.NoError(t, err)

	assert.Equal(t, []int{2}, f.counts(t))
}

func TestFavoritesCount_Recompute(t *testing.T) {
	f := seed(t, 3, []int{0, 1}, []int{1})
	ctx := context.Background()
	require.NoError(t, f.db.SetFavoritesCount(ctx, f.shortcuts[0].ID, 7))
	require.NoError(t, f.db.SetFavoritesCount(ctx, f.shortcuts[2].ID, 4))

	for run := 0; run < 2; run++ {
		res, err := FavoritesCount(ctx, f.db, Options{Mode: ModeRecompute, Workers: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Written)
		assert.Equal(t, []int{1, 2, 0}, f.counts(t), "run %d", run)
	}
}

func TestFavoritesCount_DuplicatesAndDangling(t *testing.T) {
	f := seed(t, 1, []int{0, 0})
	ctx := context.Background()

	u := &store.User{Username: "dangling", Favorites: []primitive.ObjectID{primitive.NewObjectID(), f.shortcuts[0].ID}}
	require.NoError(t, f.db.InsertUser(ctx, u))

	res, err := FavoritesCount(ctx, f.db, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Users)
	assert.Equal(t, 2, res.Pairs)
	assert.Equal(t, 1, res.Dangling)
	assert.Equal(t, []int{2}, f.counts(t))
}

func TestFavoritesCount_NoUsers(t *testing.T) {
	f := seed(t, 2)

	res, err := FavoritesCount(context.Background(), f.db, Options{})
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
	assert.Equal(t, []int{0, 0}, f.counts(t))
}

// flakyStore fails increments for one shortcut.
type flakyStore struct {
	store.Store
	fail primitive.ObjectID
}

func (s *flakyStore) IncrementFavoritesCount(ctx context.Context, id primitive.ObjectID, delta int) error {
	if id == s.fail {
		return errors.NewStoreError("increment favorites", errors.New("write concern timeout"))
	}
	return s.Store.IncrementFavoritesCount(ctx, id, delta)
}

func TestFavoritesCount_WriteFailureDoesNotAbort(t *testing.T) {
	f := seed(t, 3, []int{0, 1, 2}, []int{1})
	db := &flakyStore{Store: f.db, fail: f.shortcuts[1].ID}

	bus := event.NewBus()
	var mu sync.Mutex
	var failedEvents int
	bus.Subscribe(event.TypeFavoriteIncremented, func(e event.Event) {
		if e.(event.FavoriteIncrementedEvent).Err != nil {
			mu.Lock()
			failedEvents++
			mu.Unlock()
		}
	})

	res, err := FavoritesCount(context.Background(), db, Options{Bus: bus, Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Pairs)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, failedEvents)
	assert.Equal(t, []int{1, 0, 1}, f.counts(t))
}

type brokenStore struct {
	store.Store
}

func (brokenStore) FindUsersWithFavorites(context.Context) ([]*store.User, error) {
	return nil, errors.NewStoreError("find users", errors.New("connection refused"))
}

func TestFavoritesCount_FetchFailureIsFatal(t *testing.T) {
	_, err := FavoritesCount(context.Background(), brokenStore{Store: memstore.New()}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFavoritesCount_Canceled(t *testing.T) {
	f := seed(t, 2, []int{0, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := FavoritesCount(ctx, f.db, Options{})
	require.ErrorIs(t, err, errors.ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Written)
	assert.Equal(t, []int{0, 0}, f.counts(t))
}

func TestFavoritesCount_InvalidOptions(t *testing.T) {
	_, err := FavoritesCount(context.Background(), memstore.New(), Options{Mode: "sideways"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = FavoritesCount(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, errors.ErrNoStore)
}
