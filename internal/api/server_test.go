package api

import (
	"context"
	"encoding/hex"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarium/librarium-server/internal/auth"
	"github.com/librarium/librarium-server/internal/config"
	"github.com/librarium/librarium-server/internal/events"
	"github.com/librarium/librarium-server/internal/service"
	"github.com/librarium/librarium-server/internal/store"
	"github.com/librarium/librarium-server/internal/validation"
)

// testServer wraps the API server with a humatest client.
type testServer struct {
	*Server
	api humatest.TestAPI
}

// setupTestServer creates a test server with all dependencies on a
// throwaway database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tmpDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(tmpDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{
			Name:        "Test Server",
			Port:        "4000",
			CORSOrigins: []string{"*"},
		},
		Auth: config.AuthConfig{
			AccessTokenDuration: 15 * time.Minute,
		},
	}

	authKey, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)
	cfg.Auth.AccessTokenKey = authKey

	tokenService, err := auth.NewTokenService(hex.EncodeToString(authKey), cfg.Auth.AccessTokenDuration)
	require.NoError(t, err)

	publisher := events.NewPublisher(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Start(ctx)
	t.Cleanup(cancel)

	validator := validation.New()

	services := &Services{
		Auth:    service.NewAuthService(st, tokenService, validator, logger),
		Catalog: service.NewCatalogService(st, publisher, validator, logger),
	}

	sseHandler := events.NewHandler(publisher, logger)

	server := NewServer(cfg, st, services, sseHandler, logger)

	return &testServer{
		Server: server,
		api:    humatest.Wrap(t, server.api),
	}
}

// createUserAndLogin registers a user through the API and returns a
// bearer token for it.
func (ts *testServer) createUserAndLogin(t *testing.T, username, password string) string {
	t.Helper()

	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var login LoginResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	return login.Token
}

func (ts *testServer) addBook(t *testing.T, token string, body map[string]any) BookResponse {
	t.Helper()

	resp := ts.api.Post("/api/v1/books", "Authorization: Bearer "+token, body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var book BookResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &book))
	return book
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")

	assert.Equal(t, http.StatusOK, resp.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestCreateUser_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username":       "reader",
		"password":       "correct horse battery",
		"favorite_genre": "classic",
	})

	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var user UserResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &user))

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "reader", user.Username)
	assert.Equal(t, "classic", user.FavoriteGenre)
	assert.NotContains(t, resp.Body.String(), "password")
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username": "reader",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/users", map[string]any{
		"username": "reader",
		"password": "another password here",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
	assert.Equal(t, "VALIDATION", apiErr.Code)
}

func TestCreateUser_ShortPassword(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username": "reader",
		"password": "short",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", map[string]any{
		"username": "reader",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "reader", password: "wrong password here"},
		{name: "unknown user", username: "nobody", password: "correct horse battery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/api/v1/auth/login", map[string]any{
				"username": tt.username,
				"password": tt.password,
			})

			assert.Equal(t, http.StatusUnauthorized, resp.Code)

			var apiErr APIError
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
			assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
		})
	}
}

func TestAddBook_RequiresToken(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/books", map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
	})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAddBook_GarbageTokenIsUnauthorized(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/books", "Authorization: Bearer not-a-token", map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
	})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAddBook_Success(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "librarian", "correct horse battery")

	book := ts.addBook(t, token, map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
		"genres":    []string{"classic", "crime"},
	})

	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "Crime and punishment", book.Title)
	assert.Equal(t, 1866, book.Published)
	assert.Equal(t, []string{"classic", "crime"}, book.Genres)
	assert.Equal(t, "Fyodor Dostoevsky", book.Author.Name)
	assert.NotEmpty(t, book.Author.ID)
}

func TestAllBooks_Filters(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "librarian", "correct horse battery")

	ts.addBook(t, token, map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
		"genres":    []string{"classic", "crime"},
	})
	ts.addBook(t, token, map[string]any{
		"title":     "The Demon",
		"published": 1872,
		"author":    "Fyodor Dostoevsky",
		"genres":    []string{"classic", "revolution"},
	})
	ts.addBook(t, token, map[string]any{
		"title":     "Practical Motorcycle Maintenance",
		"published": 1998,
		"author":    "Someone Else",
		"genres":    []string{"crime"},
	})

	tests := []struct {
		name       string
		query      string
		wantTitles int
	}{
		{name: "no filter", query: "", wantTitles: 3},
		{name: "by author", query: "?author=Fyodor%20Dostoevsky", wantTitles: 2},
		{name: "by genre", query: "?genre=crime", wantTitles: 2},
		{name: "author and genre", query: "?author=Fyodor%20Dostoevsky&genre=crime", wantTitles: 1},
		{name: "unknown author is empty not error", query: "?author=Nobody", wantTitles: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Get("/api/v1/books" + tt.query)
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

			var books BooksResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &books))
			assert.Len(t, books.Books, tt.wantTitles)
		})
	}
}

func TestAllAuthors_IncludesBookCount(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "librarian", "correct horse battery")

	ts.addBook(t, token, map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
	})
	ts.addBook(t, token, map[string]any{
		"title":     "The Demon",
		"published": 1872,
		"author":    "Fyodor Dostoevsky",
	})

	resp := ts.api.Get("/api/v1/authors")
	require.Equal(t, http.StatusOK, resp.Code)

	var authors AuthorsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &authors))
	require.Len(t, authors.Authors, 1)
	assert.Equal(t, "Fyodor Dostoevsky", authors.Authors[0].Name)
	assert.Equal(t, 2, authors.Authors[0].BookCount)
}

func TestEditAuthor(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "librarian", "correct horse battery")

	ts.addBook(t, token, map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
	})

	t.Run("requires token", func(t *testing.T) {
		resp := ts.api.Patch("/api/v1/authors", map[string]any{
			"name":        "Fyodor Dostoevsky",
			"set_born_to": 1821,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("unknown author is not found", func(t *testing.T) {
		resp := ts.api.Patch("/api/v1/authors", "Authorization: Bearer "+token, map[string]any{
			"name":        "Nobody",
			"set_born_to": 1900,
		})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("sets birth year", func(t *testing.T) {
		resp := ts.api.Patch("/api/v1/authors", "Authorization: Bearer "+token, map[string]any{
			"name":        "Fyodor Dostoevsky",
			"set_born_to": 1821,
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var author AuthorResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &author))
		require.NotNil(t, author.Born)
		assert.Equal(t, 1821, *author.Born)
	})
}

func TestMe(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("unauthenticated is null not error", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/me")
		require.Equal(t, http.StatusOK, resp.Code)

		var me MeResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &me))
		assert.Nil(t, me.User)
	})

	t.Run("authenticated returns current user", func(t *testing.T) {
		token := ts.createUserAndLogin(t, "reader", "correct horse battery")

		resp := ts.api.Get("/api/v1/me", "Authorization: Bearer "+token)
		require.Equal(t, http.StatusOK, resp.Code)

		var me MeResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &me))
		require.NotNil(t, me.User)
		assert.Equal(t, "reader", me.User.Username)
	})
}

func TestAddFavorite(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "reader", "correct horse battery")

	t.Run("requires token", func(t *testing.T) {
		resp := ts.api.Put("/api/v1/me/favorite-genre", map[string]any{
			"genre": "crime",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("sets genre", func(t *testing.T) {
		resp := ts.api.Put("/api/v1/me/favorite-genre", "Authorization: Bearer "+token, map[string]any{
			"genre": "crime",
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var user UserResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &user))
		assert.Equal(t, "crime", user.FavoriteGenre)
	})
}

func TestStats(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.createUserAndLogin(t, "librarian", "correct horse battery")

	ts.addBook(t, token, map[string]any{
		"title":     "Crime and punishment",
		"published": 1866,
		"author":    "Fyodor Dostoevsky",
	})
	ts.addBook(t, token, map[string]any{
		"title":     "The Idiot",
		"published": 1869,
		"author":    "Fyodor Dostoevsky",
	})

	resp := ts.api.Get("/api/v1/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.BookCount)
	assert.Equal(t, 1, stats.AuthorCount)
}

func TestLogin_RateLimited(t *testing.T) {
	ts := setupTestServer(t)

	// Burst of 10 attempts per client, all from the same address.
	for range 10 {
		resp := ts.api.Post("/api/v1/auth/login",
			"X-Real-IP: 203.0.113.7",
			map[string]any{
				"username": "nobody",
				"password": "wrong password here",
			})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	resp := ts.api.Post("/api/v1/auth/login",
		"X-Real-IP: 203.0.113.7",
		map[string]any{
			"username": "nobody",
			"password": "wrong password here",
		})

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}
