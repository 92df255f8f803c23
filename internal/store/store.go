// Package store provides the persistence layer for catalog entities,
// backed by an embedded Badger database.
package store

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/text/unicode/norm"

	"github.com/librarium/librarium-server/internal/domain"
)

// Store wraps a Badger database instance and exposes typed entity access.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Catalog entities. Each carries its own key prefix and secondary
	// indexes; uniqueness (author name, username) is enforced inside the
	// entity's write transaction.
	Authors *Entity[domain.Author]
	Books   *Entity[domain.Book]
	Users   *Entity[domain.User]
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.initAuthors()
	store.initBooks()
	store.initUsers()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// initAuthors initializes the Authors entity.
//
// The unique name index doubles as the storage-level constraint that keeps
// concurrent author auto-vivification from producing two authors with the
// same name: the second insert fails with ErrAlreadyExists inside the write
// transaction and the caller re-reads the winner.
func (s *Store) initAuthors() {
	s.Authors = NewEntity[domain.Author](s, "author:").
		WithIndex("name", func(a *domain.Author) []string {
			return []string{a.Name}
		})
}

// initBooks initializes the Books entity.
// Books carry no unique secondary index; author/genre filtering is a scan
// over the (small) book set, resolved against author IDs by the caller.
func (s *Store) initBooks() {
	s.Books = NewEntity[domain.Book](s, "book:")
}

// initUsers initializes the Users entity.
// Usernames are indexed case-insensitively so "Reader" and "reader" cannot
// coexist as separate accounts.
func (s *Store) initUsers() {
	s.Users = NewEntity[domain.User](s, "user:").
		WithIndexTransform("username",
			func(u *domain.User) []string {
				return []string{normalizeUsername(u.Username)}
			},
			normalizeUsername,
		)
}

// normalizeUsername canonicalizes a username for index storage and lookup.
// NFKC folding first, so visually equivalent Unicode forms of the same name
// collide on the uniqueness index instead of coexisting.
func normalizeUsername(username string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(username)))
}
