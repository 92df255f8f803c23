// Package domain defines the catalog's core entity types.
package domain

// Author represents a book author in the catalog.
//
// Born is a pointer because a birth year may genuinely be unknown: authors
// created on demand while adding a book start without one, and editAuthor
// fills it in later.
type Author struct {
	Record
	Name string `json:"name"`
	Born *int   `json:"born,omitempty"`
}

// ResolvedAuthor is an Author with its derived book count attached.
// BookCount is never stored; it is computed against the book set at query
// time so it is always current relative to the store.
type ResolvedAuthor struct {
	Author
	BookCount int `json:"book_count"`
}
