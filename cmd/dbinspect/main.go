// Package main provides a read-only inspection tool for the catalog database.
//
// It prints entity counts and verifies that every book's author reference
// resolves to a live author record.
//
// Usage:
//
//	DB_PATH=~/Librarium/db go run ./cmd/dbinspect
package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/librarium/librarium-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Librarium/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Read-only handle, exiting anyway

	fmt.Println("=== Catalog Inspection ===")
	fmt.Println()

	authors := make(map[string]*domain.Author)
	var books []*domain.Book
	userCount := 0

	err = db.View(func(txn *badger.Txn) error {
		if err := scanPrefix(txn, "author:", func(val []byte) error {
			var author domain.Author
			if err := json.Unmarshal(val, &author); err != nil {
				return err
			}
			authors[author.ID] = &author
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, "book:", func(val []byte) error {
			var book domain.Book
			if err := json.Unmarshal(val, &book); err != nil {
				return err
			}
			books = append(books, &book)
			return nil
		}); err != nil {
			return err
		}

		return scanPrefix(txn, "user:", func([]byte) error {
			userCount++
			return nil
		})
	})
	if err != nil {
		log.Fatalf("Failed to scan database: %v", err)
	}

	fmt.Printf("Authors: %d\n", len(authors))
	fmt.Printf("Books:   %d\n", len(books))
	fmt.Printf("Users:   %d\n", userCount)
	fmt.Println()

	// Per-author book counts and dangling reference check.
	counts := make(map[string]int)
	dangling := 0
	for _, book := range books {
		if _, ok := authors[book.AuthorID]; !ok {
			fmt.Printf("DANGLING: book %q (%s) references missing author %s\n",
				book.Title, book.ID, book.AuthorID)
			dangling++
			continue
		}
		counts[book.AuthorID]++
	}

	for id, author := range authors {
		born := "unknown"
		if author.Born != nil {
			born = fmt.Sprintf("%d", *author.Born)
		}
		fmt.Printf("Author: %s (born %s) - %d books\n", author.Name, born, counts[id])
	}

	fmt.Println()
	if dangling == 0 {
		fmt.Println("Referential integrity: OK (no dangling author references)")
	} else {
		fmt.Printf("Referential integrity: BROKEN (%d dangling references)\n", dangling)
		os.Exit(1)
	}
}

// scanPrefix iterates entity values under a key prefix. Secondary index keys
// share the entity prefix but hold raw ids, not JSON, so they are skipped.
func scanPrefix(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		if strings.HasPrefix(string(item.Key()), prefix+"idx:") {
			continue
		}
		if err := item.Value(fn); err != nil {
			return err
		}
	}
	return nil
}
