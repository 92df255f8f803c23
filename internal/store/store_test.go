package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarium/librarium-server/internal/domain"
	"github.com/librarium/librarium-server/internal/id"
)

// setupTestStore creates a store backed by a temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = st.Close()
	})

	return st
}

func newTestAuthor(name string) *domain.Author {
	a := &domain.Author{Name: name}
	a.ID = id.MustGenerate("author")
	a.InitTimestamps()
	return a
}

func TestAuthors_CreateAndGet(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	author := newTestAuthor("Fyodor Dostoevsky")
	require.NoError(t, st.Authors.Create(ctx, author.ID, author))

	got, err := st.Authors.Get(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fyodor Dostoevsky", got.Name)
	assert.Nil(t, got.Born)
}

func TestAuthors_GetByName(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	author := newTestAuthor("Sandi Metz")
	require.NoError(t, st.Authors.Create(ctx, author.ID, author))

	got, err := st.Authors.GetByIndex(ctx, "name", "Sandi Metz")
	require.NoError(t, err)
	assert.Equal(t, author.ID, got.ID)

	_, err = st.Authors.GetByIndex(ctx, "name", "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthors_NameUniqueness(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	first := newTestAuthor("Robert Martin")
	require.NoError(t, st.Authors.Create(ctx, first.ID, first))

	// A second author with the same name must be rejected inside the write
	// transaction. This is the constraint that makes concurrent
	// auto-vivification safe: the loser re-reads the winner by name.
	second := newTestAuthor("Robert Martin")
	err := st.Authors.Create(ctx, second.ID, second)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Exactly one record remains.
	count, err := st.Authors.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// entityBarrier blocks inside an index keyGen until two writers have both
// entered their transactions, forcing the transactions to overlap so the
// loser fails Badger's commit-time conflict check instead of the
// in-transaction existence checks.
type entityBarrier struct {
	armed       atomic.Bool
	arrivals    atomic.Int32
	bothStarted chan struct{}
}

func newEntityBarrier() *entityBarrier {
	b := &entityBarrier{bothStarted: make(chan struct{})}
	b.armed.Store(true)
	return b
}

func (b *entityBarrier) wait() {
	if !b.armed.Load() {
		return
	}
	if b.arrivals.Add(1) == 2 {
		close(b.bothStarted)
	}
	<-b.bothStarted
}

func TestAuthors_ConcurrentCreateSameName(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	barrier := newEntityBarrier()
	shelf := NewEntity[domain.Author](st, "shelf:").
		WithIndex("name", func(a *domain.Author) []string {
			barrier.wait()
			return []string{a.Name}
		})

	first := newTestAuthor("Ursula Le Guin")
	second := newTestAuthor("Ursula Le Guin")

	errs := make(chan error, 2)
	go func() { errs <- shelf.Create(ctx, first.ID, first) }()
	go func() { errs <- shelf.Create(ctx, second.ID, second) }()

	var failed []error
	for range 2 {
		if err := <-errs; err != nil {
			failed = append(failed, err)
		}
	}

	// Exactly one insert wins; the loser sees ErrAlreadyExists so callers
	// can fall back to re-reading the winner by name.
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], ErrAlreadyExists)

	winner, err := shelf.GetByIndex(ctx, "name", "Ursula Le Guin")
	require.NoError(t, err)
	assert.Equal(t, "Ursula Le Guin", winner.Name)

	count, err := shelf.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuthors_ConcurrentUpdateRetries(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	barrier := newEntityBarrier()
	barrier.armed.Store(false) // Off for the seeding create below.
	shelf := NewEntity[domain.Author](st, "shelf:").
		WithIndex("name", func(a *domain.Author) []string {
			barrier.wait()
			return []string{a.Name}
		})

	author := newTestAuthor("Ursula Le Guin")
	require.NoError(t, shelf.Create(ctx, author.ID, author))
	barrier.armed.Store(true)

	// Two overlapping updates to the same record. The loser of the commit
	// race must retry and succeed, not surface a transaction conflict.
	errs := make(chan error, 2)
	setBorn := func(born int) {
		updated := *author
		updated.Born = &born
		errs <- shelf.Update(ctx, author.ID, &updated)
	}
	go setBorn(1929)
	go setBorn(1930)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	got, err := shelf.Get(ctx, author.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Born)
	assert.Contains(t, []int{1929, 1930}, *got.Born)
}

func TestAuthors_UpdateBorn(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	author := newTestAuthor("Martin Fowler")
	require.NoError(t, st.Authors.Create(ctx, author.ID, author))

	born := 1963
	author.Born = &born
	author.Touch()
	require.NoError(t, st.Authors.Update(ctx, author.ID, author))

	got, err := st.Authors.Get(ctx, author.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Born)
	assert.Equal(t, 1963, *got.Born)

	// The name index still resolves after the update.
	byName, err := st.Authors.GetByIndex(ctx, "name", "Martin Fowler")
	require.NoError(t, err)
	assert.Equal(t, author.ID, byName.ID)
}

func TestAuthors_UpdateMissing(t *testing.T) {
	st := setupTestStore(t)

	ghost := newTestAuthor("Ghost Writer")
	err := st.Authors.Update(context.Background(), ghost.ID, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBooks_ListAndCount(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	author := newTestAuthor("Fyodor Dostoevsky")
	require.NoError(t, st.Authors.Create(ctx, author.ID, author))

	titles := []string{"Crime and punishment", "The Demon"}
	for _, title := range titles {
		book := &domain.Book{
			Title:     title,
			Published: 1866,
			AuthorID:  author.ID,
			Genres:    []string{"classic"},
		}
		book.ID = id.MustGenerate("book")
		book.InitTimestamps()
		require.NoError(t, st.Books.Create(ctx, book.ID, book))
	}

	var seen []string
	for book, err := range st.Books.List(ctx) {
		require.NoError(t, err)
		seen = append(seen, book.Title)
	}
	assert.ElementsMatch(t, titles, seen)

	count, err := st.Books.Count(ctx, func(b *domain.Book) bool {
		return b.AuthorID == author.ID
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBooks_Exists(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	book := &domain.Book{Title: "Clean Code", Published: 2008, AuthorID: "author-x", Genres: []string{"refactoring"}}
	book.ID = id.MustGenerate("book")
	book.InitTimestamps()
	require.NoError(t, st.Books.Create(ctx, book.ID, book))

	ok, err := st.Books.Exists(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Books.Exists(ctx, "book-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsers_UsernameCaseInsensitive(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	user := &domain.User{Username: "Reader"}
	user.ID = id.MustGenerate("user")
	user.InitTimestamps()
	require.NoError(t, st.Users.Create(ctx, user.ID, user))

	got, err := st.Users.GetByIndex(ctx, "username", "reader")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	dupe := &domain.User{Username: "READER"}
	dupe.ID = id.MustGenerate("user")
	dupe.InitTimestamps()
	err = st.Users.Create(ctx, dupe.ID, dupe)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
