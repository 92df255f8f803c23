// Package main provides a tool to seed the database with a starter catalog.
//
// Usage:
//
//	DB_PATH=~/Librarium/db go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/librarium/librarium-server/internal/domain"
	"github.com/librarium/librarium-server/internal/id"
	"github.com/librarium/librarium-server/internal/store"
)

type seedAuthor struct {
	name string
	born int // 0 means unknown
}

type seedBook struct {
	title     string
	author    string
	published int
	genres    []string
}

var seedAuthors = []seedAuthor{
	{name: "Robert Martin", born: 1952},
	{name: "Martin Fowler", born: 1963},
	{name: "Fyodor Dostoevsky", born: 1821},
	{name: "Joshua Kerievsky"},
	{name: "Sandi Metz"},
}

var seedBooks = []seedBook{
	{title: "Clean Code", author: "Robert Martin", published: 2008, genres: []string{"refactoring"}},
	{title: "Agile software development", author: "Robert Martin", published: 2002, genres: []string{"agile", "patterns", "design"}},
	{title: "Refactoring, edition 2", author: "Martin Fowler", published: 2018, genres: []string{"refactoring"}},
	{title: "Refactoring to patterns", author: "Joshua Kerievsky", published: 2008, genres: []string{"refactoring", "patterns"}},
	{title: "Practical Object-Oriented Design, An Agile Primer Using Ruby", author: "Sandi Metz", published: 2012, genres: []string{"refactoring", "design"}},
	{title: "Crime and punishment", author: "Fyodor Dostoevsky", published: 1866, genres: []string{"classic", "crime"}},
	{title: "The Demon", author: "Fyodor Dostoevsky", published: 1872, genres: []string{"classic", "revolution"}},
}

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Librarium/db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s, err := store.New(dbPath, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close() //nolint:errcheck // Exiting anyway

	ctx := context.Background()

	authorIDs := make(map[string]string, len(seedAuthors))
	for _, sa := range seedAuthors {
		authorID, err := ensureAuthor(ctx, s, sa)
		if err != nil {
			log.Fatalf("Failed to seed author %q: %v", sa.name, err)
		}
		authorIDs[sa.name] = authorID
	}

	created := 0
	for _, sb := range seedBooks {
		book := &domain.Book{
			Title:     sb.title,
			Published: sb.published,
			AuthorID:  authorIDs[sb.author],
			Genres:    sb.genres,
		}
		book.ID = id.MustGenerate("book")
		book.InitTimestamps()

		if err := s.Books.Create(ctx, book.ID, book); err != nil {
			log.Fatalf("Failed to seed book %q: %v", sb.title, err)
		}
		created++
	}

	fmt.Printf("Seeded %d authors and %d books\n", len(authorIDs), created)
}

// ensureAuthor creates the author if missing and returns its id either way.
func ensureAuthor(ctx context.Context, s *store.Store, sa seedAuthor) (string, error) {
	if existing, err := s.Authors.GetByIndex(ctx, "name", sa.name); err == nil {
		fmt.Printf("Author %q already exists, reusing\n", sa.name)
		return existing.ID, nil
	}

	author := &domain.Author{Name: sa.name}
	if sa.born != 0 {
		born := sa.born
		author.Born = &born
	}
	author.ID = id.MustGenerate("author")
	author.InitTimestamps()

	if err := s.Authors.Create(ctx, author.ID, author); err != nil {
		return "", err
	}
	return author.ID, nil
}
