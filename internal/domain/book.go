package domain

// Book represents a single book in the catalog.
//
// Books reference their author by ID, never by name. Name linkage breaks
// referential integrity across renames and duplicate names, so AuthorID is
// the only stored link and filtering by author always resolves the name to
// an ID first.
type Book struct {
	Record
	Title     string   `json:"title"`
	Published int      `json:"published"`
	AuthorID  string   `json:"author_id"`
	Genres    []string `json:"genres"`
}

// HasGenre reports whether the book's genre set contains the given genre.
// Genres are a set semantically: membership matters, order does not.
func (b *Book) HasGenre(genre string) bool {
	for _, g := range b.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// ResolvedBook is a Book with its author embedded, as returned by the API
// and carried in book.added events.
type ResolvedBook struct {
	Book
	Author *Author `json:"author"`
}
