package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/librarium/librarium-server/internal/domain"
	"github.com/librarium/librarium-server/internal/service"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "allBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns books with authors embedded, optionally filtered by author name and/or genre. An unknown author yields an empty list.",
		Tags:        []string{"Catalog"},
	}, s.handleAllBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "allAuthors",
		Method:      http.MethodGet,
		Path:        "/api/v1/authors",
		Summary:     "List authors",
		Description: "Returns all authors with their current book counts",
		Tags:        []string{"Catalog"},
	}, s.handleAllAuthors)

	huma.Register(s.api, huma.Operation{
		OperationID: "catalogStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Catalog statistics",
		Description: "Returns total book and author counts",
		Tags:        []string{"Catalog"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/api/v1/me",
		Summary:     "Current user",
		Description: "Returns the authenticated user, or null when unauthenticated",
		Tags:        []string{"Catalog"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleMe)

	huma.Register(s.api, huma.Operation{
		OperationID: "addBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/books",
		Summary:     "Add book",
		Description: "Adds a book, creating its author on demand. Requires authentication.",
		Tags:        []string{"Catalog"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAddBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "editAuthor",
		Method:      http.MethodPatch,
		Path:        "/api/v1/authors",
		Summary:     "Edit author",
		Description: "Sets an author's birth year by name. Requires authentication.",
		Tags:        []string{"Catalog"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleEditAuthor)

	huma.Register(s.api, huma.Operation{
		OperationID: "addFavorite",
		Method:      http.MethodPut,
		Path:        "/api/v1/me/favorite-genre",
		Summary:     "Set favorite genre",
		Description: "Sets the authenticated user's favorite genre",
		Tags:        []string{"Catalog"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAddFavorite)
}

// === DTOs ===

// AuthorResponse contains author data in API responses.
type AuthorResponse struct {
	ID        string    `json:"id" doc:"Author ID"`
	Name      string    `json:"name" doc:"Author name"`
	Born      *int      `json:"born,omitempty" doc:"Birth year, if known"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time `json:"updated_at" doc:"Last update time"`
}

// AuthorWithCountResponse is an author with its derived book count.
type AuthorWithCountResponse struct {
	AuthorResponse
	BookCount int `json:"book_count" doc:"Number of books by this author"`
}

// BookResponse contains book data with the author embedded.
type BookResponse struct {
	ID        string         `json:"id" doc:"Book ID"`
	Title     string         `json:"title" doc:"Book title"`
	Published int            `json:"published" doc:"Publication year"`
	Genres    []string       `json:"genres" doc:"Genres"`
	Author    AuthorResponse `json:"author" doc:"Embedded author"`
	CreatedAt time.Time      `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time      `json:"updated_at" doc:"Last update time"`
}

// AllBooksInput contains the optional filters for listing books.
type AllBooksInput struct {
	AuthorName string `query:"author" doc:"Filter by author name"`
	Genre      string `query:"genre" doc:"Filter by genre membership"`
}

// BooksResponse contains a list of books.
type BooksResponse struct {
	Books []BookResponse `json:"books" doc:"List of books"`
}

// BooksOutput wraps the books response for Huma.
type BooksOutput struct {
	Body BooksResponse
}

// AuthorsResponse contains a list of authors with book counts.
type AuthorsResponse struct {
	Authors []AuthorWithCountResponse `json:"authors" doc:"List of authors"`
}

// AuthorsOutput wraps the authors response for Huma.
type AuthorsOutput struct {
	Body AuthorsResponse
}

// StatsResponse contains catalog totals.
type StatsResponse struct {
	BookCount   int `json:"book_count" doc:"Total number of books"`
	AuthorCount int `json:"author_count" doc:"Total number of authors"`
}

// StatsOutput wraps the stats response for Huma.
type StatsOutput struct {
	Body StatsResponse
}

// MeInput carries the optional bearer token for the me query.
type MeInput struct {
	Authorization string `header:"Authorization"`
}

// MeResponse contains the current user, or null when unauthenticated.
type MeResponse struct {
	User *UserResponse `json:"user" doc:"Current user, null if unauthenticated"`
}

// MeOutput wraps the me response for Huma.
type MeOutput struct {
	Body MeResponse
}

// AddBookRequest is the request body for adding a book.
type AddBookRequest struct {
	Title     string   `json:"title" validate:"required,min=1,max=500" doc:"Book title"`
	Published int      `json:"published" validate:"gte=-3000,lte=3000" doc:"Publication year"`
	Author    string   `json:"author" validate:"required,min=1,max=200" doc:"Author name, created on demand if unknown"`
	Genres    []string `json:"genres,omitempty" validate:"dive,min=1,max=100" doc:"Genres"`
}

// AddBookInput wraps the add book request for Huma.
type AddBookInput struct {
	Authorization string `header:"Authorization"`
	Body          AddBookRequest
}

// BookOutput wraps a single book response for Huma.
type BookOutput struct {
	Body BookResponse
}

// EditAuthorRequest is the request body for editing an author.
type EditAuthorRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=200" doc:"Author name"`
	SetBornTo int    `json:"set_born_to" validate:"gte=-3000,lte=3000" doc:"Birth year to set"`
}

// EditAuthorInput wraps the edit author request for Huma.
type EditAuthorInput struct {
	Authorization string `header:"Authorization"`
	Body          EditAuthorRequest
}

// AuthorOutput wraps a single author response for Huma.
type AuthorOutput struct {
	Body AuthorResponse
}

// AddFavoriteRequest is the request body for setting a favorite genre.
type AddFavoriteRequest struct {
	Genre string `json:"genre" validate:"required,min=1,max=100" doc:"Favorite genre"`
}

// AddFavoriteInput wraps the add favorite request for Huma.
type AddFavoriteInput struct {
	Authorization string `header:"Authorization"`
	Body          AddFavoriteRequest
}

// === Handlers ===

func (s *Server) handleAllBooks(ctx context.Context, input *AllBooksInput) (*BooksOutput, error) {
	books, err := s.services.Catalog.AllBooks(ctx, service.BookFilter{
		AuthorName: input.AuthorName,
		Genre:      input.Genre,
	})
	if err != nil {
		return nil, err
	}

	resp := make([]BookResponse, len(books))
	for i, b := range books {
		resp[i] = toBookResponse(b)
	}

	return &BooksOutput{Body: BooksResponse{Books: resp}}, nil
}

func (s *Server) handleAllAuthors(ctx context.Context, _ *struct{}) (*AuthorsOutput, error) {
	authors, err := s.services.Catalog.AllAuthors(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]AuthorWithCountResponse, len(authors))
	for i, a := range authors {
		resp[i] = AuthorWithCountResponse{
			AuthorResponse: toAuthorResponse(&a.Author),
			BookCount:      a.BookCount,
		}
	}

	return &AuthorsOutput{Body: AuthorsResponse{Authors: resp}}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	bookCount, err := s.services.Catalog.BookCount(ctx)
	if err != nil {
		return nil, err
	}

	authorCount, err := s.services.Catalog.AuthorCount(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsOutput{
		Body: StatsResponse{
			BookCount:   bookCount,
			AuthorCount: authorCount,
		},
	}, nil
}

func (s *Server) handleMe(ctx context.Context, input *MeInput) (*MeOutput, error) {
	principal := s.resolvePrincipal(ctx, input.Authorization)
	if principal == nil {
		// Unauthenticated is a valid answer, not an error.
		return &MeOutput{Body: MeResponse{User: nil}}, nil
	}

	user := toUserResponse(principal)
	return &MeOutput{Body: MeResponse{User: &user}}, nil
}

func (s *Server) handleAddBook(ctx context.Context, input *AddBookInput) (*BookOutput, error) {
	principal := s.resolvePrincipal(ctx, input.Authorization)

	book, err := s.services.Catalog.AddBook(ctx, principal, service.AddBookRequest{
		Title:     input.Body.Title,
		Published: input.Body.Published,
		Author:    input.Body.Author,
		Genres:    input.Body.Genres,
	})
	if err != nil {
		return nil, err
	}

	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleEditAuthor(ctx context.Context, input *EditAuthorInput) (*AuthorOutput, error) {
	principal := s.resolvePrincipal(ctx, input.Authorization)

	author, err := s.services.Catalog.EditAuthor(ctx, principal, service.EditAuthorRequest{
		Name:      input.Body.Name,
		SetBornTo: input.Body.SetBornTo,
	})
	if err != nil {
		return nil, err
	}

	return &AuthorOutput{Body: toAuthorResponse(author)}, nil
}

func (s *Server) handleAddFavorite(ctx context.Context, input *AddFavoriteInput) (*UserOutput, error) {
	principal := s.resolvePrincipal(ctx, input.Authorization)

	user, err := s.services.Catalog.AddFavorite(ctx, principal, input.Body.Genre)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: toUserResponse(user)}, nil
}

// === Converters ===

func toAuthorResponse(a *domain.Author) AuthorResponse {
	return AuthorResponse{
		ID:        a.ID,
		Name:      a.Name,
		Born:      a.Born,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toBookResponse(b *domain.ResolvedBook) BookResponse {
	return BookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Published: b.Published,
		Genres:    b.Genres,
		Author:    toAuthorResponse(b.Author),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
