// Package service implements the catalog's business logic: query resolution,
// auth-gated mutations, and event publication.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/librarium/librarium-server/internal/domain"
	domainerrors "github.com/librarium/librarium-server/internal/errors"
	"github.com/librarium/librarium-server/internal/events"
	"github.com/librarium/librarium-server/internal/id"
	"github.com/librarium/librarium-server/internal/store"
	"github.com/librarium/librarium-server/internal/validation"
)

// CatalogService resolves book and author queries and executes catalog
// mutations. It is stateless between requests; the authenticated principal
// is passed in per call and gated mutations fail Unauthorized without one.
type CatalogService struct {
	store     *store.Store
	publisher *events.Publisher
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(s *store.Store, publisher *events.Publisher, validator *validation.Validator, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:     s,
		publisher: publisher,
		validator: validator,
		logger:    logger,
	}
}

// BookFilter narrows an AllBooks query. Zero values mean "no filter".
type BookFilter struct {
	AuthorName string
	Genre      string
}

// AllBooks returns books matching the filter, with authors embedded.
//
// Author filtering always goes through name-to-id resolution, never by
// matching a denormalized name on the book. An unknown author name is not
// an error: it yields an empty result set.
func (s *CatalogService) AllBooks(ctx context.Context, filter BookFilter) ([]*domain.ResolvedBook, error) {
	var authorID string
	if filter.AuthorName != "" {
		author, err := s.store.Authors.GetByIndex(ctx, "name", filter.AuthorName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []*domain.ResolvedBook{}, nil
			}
			return nil, fmt.Errorf("resolve author %q: %w", filter.AuthorName, err)
		}
		authorID = author.ID
	}

	books := []*domain.ResolvedBook{}
	authorCache := make(map[string]*domain.Author)

	for book, err := range s.store.Books.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		if authorID != "" && book.AuthorID != authorID {
			continue
		}
		if filter.Genre != "" && !book.HasGenre(filter.Genre) {
			continue
		}

		resolved, err := s.resolveBook(ctx, book, authorCache)
		if err != nil {
			return nil, err
		}
		books = append(books, resolved)
	}

	return books, nil
}

// AllAuthors returns every author with its book count embedded.
// Counts are computed lazily per author at query time, never cached.
func (s *CatalogService) AllAuthors(ctx context.Context) ([]*domain.ResolvedAuthor, error) {
	authors := []*domain.ResolvedAuthor{}

	for author, err := range s.store.Authors.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list authors: %w", err)
		}

		count, err := s.store.Books.Count(ctx, func(b *domain.Book) bool {
			return b.AuthorID == author.ID
		})
		if err != nil {
			return nil, fmt.Errorf("count books for author %s: %w", author.ID, err)
		}

		authors = append(authors, &domain.ResolvedAuthor{
			Author:    *author,
			BookCount: count,
		})
	}

	return authors, nil
}

// BookCount returns the total number of books in the catalog.
func (s *CatalogService) BookCount(ctx context.Context) (int, error) {
	return s.store.Books.Count(ctx, nil)
}

// AuthorCount returns the total number of authors in the catalog.
func (s *CatalogService) AuthorCount(ctx context.Context) (int, error) {
	return s.store.Authors.Count(ctx, nil)
}

// AddBookRequest contains the fields for adding a book to the catalog.
type AddBookRequest struct {
	Title     string   `json:"title" validate:"required,min=1,max=500"`
	Published int      `json:"published" validate:"gte=-3000,lte=3000"`
	Author    string   `json:"author" validate:"required,min=1,max=200"`
	Genres    []string `json:"genres" validate:"dive,min=1,max=100"`
}

// AddBook adds a book, creating its author on demand if the name is unknown.
//
// Auto-vivification is a designed success path: referencing a never-seen
// author name creates that author with no birth year. Two concurrent calls
// naming the same new author are arbitrated by the store's unique name
// index; the loser re-reads the winner's record, so exactly one author per
// name survives.
func (s *CatalogService) AddBook(ctx context.Context, principal *domain.User, req AddBookRequest) (*domain.ResolvedBook, error) {
	if principal == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	author, err := s.resolveOrCreateAuthor(ctx, req.Author)
	if err != nil {
		return nil, err
	}

	bookID, err := id.Generate("book")
	if err != nil {
		return nil, fmt.Errorf("generate book ID: %w", err)
	}

	genres := req.Genres
	if genres == nil {
		genres = []string{}
	}

	book := &domain.Book{
		Title:     req.Title,
		Published: req.Published,
		AuthorID:  author.ID,
		Genres:    genres,
	}
	book.ID = bookID
	book.InitTimestamps()

	if err := s.store.Books.Create(ctx, bookID, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	resolved := &domain.ResolvedBook{
		Book:   *book,
		Author: author,
	}

	// The mutation response and the broadcast both carry the new book;
	// clients merge them idempotently by id.
	s.publisher.Publish(events.NewBookAddedEvent(resolved))

	s.logger.Info("book added",
		slog.String("book_id", bookID),
		slog.String("title", book.Title),
		slog.String("author_id", author.ID),
		slog.String("user_id", principal.ID))

	return resolved, nil
}

// resolveOrCreateAuthor finds an author by name, creating one if absent.
// On an insert conflict (concurrent creation of the same name), the winner's
// record is re-read and returned.
func (s *CatalogService) resolveOrCreateAuthor(ctx context.Context, name string) (*domain.Author, error) {
	author, err := s.store.Authors.GetByIndex(ctx, "name", name)
	if err == nil {
		return author, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup author %q: %w", name, err)
	}

	authorID, err := id.Generate("author")
	if err != nil {
		return nil, fmt.Errorf("generate author ID: %w", err)
	}

	author = &domain.Author{Name: name}
	author.ID = authorID
	author.InitTimestamps()

	if err := s.store.Authors.Create(ctx, authorID, author); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the race to a concurrent addBook naming the same author.
			winner, readErr := s.store.Authors.GetByIndex(ctx, "name", name)
			if readErr != nil {
				return nil, fmt.Errorf("re-read author %q after conflict: %w", name, readErr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create author: %w", err)
	}

	s.logger.Info("author auto-created",
		slog.String("author_id", authorID),
		slog.String("name", name))

	return author, nil
}

// EditAuthorRequest contains the fields for setting an author's birth year.
type EditAuthorRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=200"`
	SetBornTo int    `json:"set_born_to" validate:"gte=-3000,lte=3000"`
}

// EditAuthor sets an author's birth year. Unlike addBook, an unknown name
// here is a NotFound error, not an invitation to create.
func (s *CatalogService) EditAuthor(ctx context.Context, principal *domain.User, req EditAuthorRequest) (*domain.Author, error) {
	if principal == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	author, err := s.store.Authors.GetByIndex(ctx, "name", req.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("author %q not found", req.Name)
		}
		return nil, fmt.Errorf("lookup author %q: %w", req.Name, err)
	}

	born := req.SetBornTo
	author.Born = &born
	author.Touch()

	if err := s.store.Authors.Update(ctx, author.ID, author); err != nil {
		return nil, fmt.Errorf("update author: %w", err)
	}

	s.publisher.Publish(events.NewAuthorUpdatedEvent(author))

	s.logger.Info("author updated",
		slog.String("author_id", author.ID),
		slog.Int("born", born),
		slog.String("user_id", principal.ID))

	return author, nil
}

// AddFavorite sets the principal's favorite genre and returns the updated user.
func (s *CatalogService) AddFavorite(ctx context.Context, principal *domain.User, genre string) (*domain.User, error) {
	if principal == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}

	if genre == "" {
		return nil, domainerrors.Validation("genre is required")
	}

	user, err := s.store.Users.Get(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	user.FavoriteGenre = genre
	user.Touch()

	if err := s.store.Users.Update(ctx, user.ID, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("favorite genre set",
		slog.String("user_id", user.ID),
		slog.String("genre", genre))

	user.PasswordHash = ""
	return user, nil
}

// resolveBook embeds a book's author, using the per-call cache to avoid
// re-reading the same author for every book in a result set.
func (s *CatalogService) resolveBook(ctx context.Context, book *domain.Book, cache map[string]*domain.Author) (*domain.ResolvedBook, error) {
	author, ok := cache[book.AuthorID]
	if !ok {
		var err error
		author, err = s.store.Authors.Get(ctx, book.AuthorID)
		if err != nil {
			// A dangling author reference is a broken invariant, surface it loudly.
			return nil, fmt.Errorf("book %s references missing author %s: %w", book.ID, book.AuthorID, err)
		}
		cache[book.AuthorID] = author
	}

	return &domain.ResolvedBook{
		Book:   *book,
		Author: author,
	}, nil
}
