package models

import "time"

// Book is a catalogue entry with the number of copies on the shelf.
type Book struct {
	ID        string    `db:"id" json:"id"`
	ISBN      string    `db:"isbn" json:"isbn"`
	Title     string    `db:"title" json:"title"`
	Author    string    `db:"author" json:"author"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports whether at least one copy can be lent.
func (b Book) Available() bool {
	return b.Stock > 0
}

// BookFilter captures filtering criteria for listing books.
type BookFilter struct {
	Search        string
	Title         string
	Author        string
	AvailableOnly bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// BookAvailability is returned by the availability endpoint.
type BookAvailability struct {
	BookID    string `json:"book_id"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}
