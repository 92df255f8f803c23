// Package client maintains a normalized local cache of catalog entities for
// consumers of the API. Query responses, mutation responses, and pushed
// book.added events all feed the same merge path, so the cache converges to
// one record per entity id no matter how many origins deliver it.
package client

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/librarium/librarium-server/internal/domain"
)

// Filter selects books for a registered list. Zero values admit everything.
//
// Author filtering resolves the name to an id against the cached author set
// and compares ids, mirroring the server. A name with no cached author admits
// nothing, matching the server's empty result for an unknown author.
type Filter struct {
	AuthorName string
	Genre      string
}

// bookList is one registered view over the cached books. It holds ids only;
// the book data lives in the normalized map so every list sees the same
// record.
type bookList struct {
	filter Filter
	ids    []string
}

// Cache is the client-side normalized store. All reads and merges take the
// single mutex, so each merge is atomic relative to the cache regardless of
// whether a mutation response or a pushed event triggered it.
type Cache struct {
	mu sync.Mutex

	books        map[string]*domain.ResolvedBook
	authors      map[string]*domain.Author
	authorByName map[string]string
	lists        map[string]*bookList
	user         *domain.User

	errs      map[string]*scopedError
	errWindow time.Duration
	logger    *slog.Logger
}

// NewCache creates an empty cache. The error window controls how long a
// scoped operation error stays visible before it clears itself.
func NewCache(errWindow time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		books:        make(map[string]*domain.ResolvedBook),
		authors:      make(map[string]*domain.Author),
		authorByName: make(map[string]string),
		lists:        make(map[string]*bookList),
		errs:         make(map[string]*scopedError),
		errWindow:    errWindow,
		logger:       logger,
	}
}

// RegisterBookList declares a named view with the given filter. Books merged
// from a query response for that view should be passed to SetBookList;
// afterwards every merge keeps the list's membership in step with its filter.
func (c *Cache) RegisterBookList(key string, filter Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lists[key]; ok {
		return
	}
	c.lists[key] = &bookList{filter: filter}
}

// SetBookList replaces a registered list's contents with a query response,
// merging each book into the normalized store on the way.
func (c *Cache) SetBookList(key string, books []*domain.ResolvedBook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.lists[key]
	if !ok {
		list = &bookList{}
		c.lists[key] = list
	}

	list.ids = list.ids[:0]
	for _, book := range books {
		c.mergeBookLocked(book)
		if !slices.Contains(list.ids, book.ID) {
			list.ids = append(list.ids, book.ID)
		}
	}
}

// MergeBook folds one book into the cache. Merging the same book twice, from
// any combination of query, mutation response, and pushed event, leaves the
// cache in the same state as merging it once.
func (c *Cache) MergeBook(book *domain.ResolvedBook) {
	if book == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeBookLocked(book)
}

func (c *Cache) mergeBookLocked(book *domain.ResolvedBook) {
	if book.Author != nil {
		c.mergeAuthorLocked(book.Author)
	}

	copied := *book
	if book.Author != nil {
		author := *book.Author
		copied.Author = &author
	}
	copied.Genres = slices.Clone(book.Genres)
	c.books[book.ID] = &copied

	for _, list := range c.lists {
		c.reconcileMembershipLocked(list, &copied)
	}
}

// reconcileMembershipLocked appends the book to the list if its filter admits
// it, removes it if it no longer does, and leaves it alone otherwise. Replace
// in place is free: lists hold ids and the data lives in the books map.
func (c *Cache) reconcileMembershipLocked(list *bookList, book *domain.ResolvedBook) {
	admitted := c.admitsLocked(list.filter, book)
	idx := slices.Index(list.ids, book.ID)

	switch {
	case admitted && idx < 0:
		list.ids = append(list.ids, book.ID)
	case !admitted && idx >= 0:
		list.ids = slices.Delete(list.ids, idx, idx+1)
	}
}

// admitsLocked mirrors the server's filter semantics: genre by set
// membership, author by resolving the name to an id and comparing ids.
func (c *Cache) admitsLocked(f Filter, book *domain.ResolvedBook) bool {
	if f.Genre != "" && !book.HasGenre(f.Genre) {
		return false
	}

	if f.AuthorName != "" {
		authorID, ok := c.authorByName[f.AuthorName]
		if !ok {
			return false
		}
		if book.AuthorID != authorID {
			return false
		}
	}

	return true
}

// MergeAuthor folds one author into the cache. A changed name re-keys the
// name index and re-evaluates every author-filtered list, since their
// predicates resolve through it.
func (c *Cache) MergeAuthor(author *domain.Author) {
	if author == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeAuthorLocked(author)

	for _, list := range c.lists {
		if list.filter.AuthorName == "" {
			continue
		}
		for _, book := range c.books {
			c.reconcileMembershipLocked(list, book)
		}
	}

	// Embedded copies inside cached books go stale on author edits; refresh
	// them from the merged record.
	for _, book := range c.books {
		if book.AuthorID == author.ID {
			refreshed := *c.authors[author.ID]
			book.Author = &refreshed
		}
	}
}

func (c *Cache) mergeAuthorLocked(author *domain.Author) {
	if prev, ok := c.authors[author.ID]; ok && prev.Name != author.Name {
		delete(c.authorByName, prev.Name)
	}

	copied := *author
	if author.Born != nil {
		born := *author.Born
		copied.Born = &born
	}
	c.authors[author.ID] = &copied
	c.authorByName[author.Name] = author.ID
}

// MergeUser records the current user, typically from a login or addFavorite
// response.
func (c *Cache) MergeUser(user *domain.User) {
	if user == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *user
	c.user = &copied
}

// ClearUser drops the current user, e.g. on logout.
func (c *Cache) ClearUser() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = nil
}

// CurrentUser returns a copy of the cached user, or nil when none is set.
func (c *Cache) CurrentUser() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return nil
	}
	copied := *c.user
	return &copied
}

// Books returns a snapshot of the named list in its current order. An
// unregistered key yields an empty slice.
func (c *Cache) Books(key string) []domain.ResolvedBook {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.lists[key]
	if !ok {
		return []domain.ResolvedBook{}
	}

	out := make([]domain.ResolvedBook, 0, len(list.ids))
	for _, id := range list.ids {
		if book, ok := c.books[id]; ok {
			out = append(out, *book)
		}
	}
	return out
}

// Book returns a copy of one cached book by id.
func (c *Cache) Book(id string) (*domain.ResolvedBook, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	book, ok := c.books[id]
	if !ok {
		return nil, false
	}
	copied := *book
	return &copied, true
}

// Authors returns a snapshot of all cached authors with book counts derived
// from the cached book set, sorted by name for stable rendering.
func (c *Cache) Authors() []domain.ResolvedAuthor {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ResolvedAuthor, 0, len(c.authors))
	for id, author := range c.authors {
		count := 0
		for _, book := range c.books {
			if book.AuthorID == id {
				count++
			}
		}
		out = append(out, domain.ResolvedAuthor{Author: *author, BookCount: count})
	}

	slices.SortFunc(out, func(a, b domain.ResolvedAuthor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Genres returns the distinct genres across all cached books, sorted.
func (c *Cache) Genres() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{})
	for _, book := range c.books {
		for _, g := range book.Genres {
			seen[g] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

// Recommended returns the cached books matching the current user's favorite
// genre. No user or no favorite genre yields nothing.
func (c *Cache) Recommended() []domain.ResolvedBook {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil || c.user.FavoriteGenre == "" {
		return nil
	}

	out := make([]domain.ResolvedBook, 0)
	for _, book := range c.books {
		if book.HasGenre(c.user.FavoriteGenre) {
			out = append(out, *book)
		}
	}

	slices.SortFunc(out, func(a, b domain.ResolvedBook) int {
		return strings.Compare(a.Title, b.Title)
	})
	return out
}
