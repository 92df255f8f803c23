package domain

// User represents an account that can authenticate and mutate the catalog.
//
// Users are created once via createUser, mutated only by addFavorite, and
// never deleted.
type User struct {
	Record
	Username      string `json:"username"`
	PasswordHash  string `json:"password_hash,omitempty"` // Stored hashed, filter from API responses
	FavoriteGenre string `json:"favorite_genre,omitempty"`
}
