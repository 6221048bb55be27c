// Package catalog serves the library catalog of authors and their books.
package catalog

import "fmt"

// Book is a catalog entry written by one author.
type Book struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	PublicationYear int    `json:"publication_year"`
	AuthorID        int64  `json:"author"`
	AuthorName      string `json:"author_name"`
	CreatedBy       *int64 `json:"-"`
}

// Author is a writer together with the books credited to them.
type Author struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Books     []Book `json:"books"`
	BookCount int    `json:"book_count"`
	CreatedBy *int64 `json:"-"`
}

// SetBooks attaches books and keeps BookCount in step.
func (a *Author) SetBooks(books []Book) {
	if books == nil {
		books = []Book{}
	}
	a.Books = books
	a.BookCount = len(books)
}

// BookInput is the full representation accepted on create and replace.
type BookInput struct {
	Title           string `json:"title" validate:"required,notblank,max=200,safetext"`
	PublicationYear int    `json:"publication_year" validate:"required,notfuture"`
	AuthorID        int64  `json:"author" validate:"required,gt=0"`
}

// BookPatch is the partial representation accepted on PATCH.
type BookPatch struct {
	Title           *string `json:"title"`
	PublicationYear *int    `json:"publication_year"`
	AuthorID        *int64  `json:"author"`
}

// Apply overlays the patch on an existing book.
func (p BookPatch) Apply(b *Book) BookInput {
	in := BookInput{Title: b.Title, PublicationYear: b.PublicationYear, AuthorID: b.AuthorID}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.PublicationYear != nil {
		in.PublicationYear = *p.PublicationYear
	}
	if p.AuthorID != nil {
		in.AuthorID = *p.AuthorID
	}
	return in
}

// AuthorInput is the representation accepted on author writes.
type AuthorInput struct {
	Name string `json:"name" validate:"required,notblank,max=100,safetext"`
}

// BookMutation is the envelope returned by book create and update.
type BookMutation struct {
	Message string `json:"message"`
	Book    *Book  `json:"book"`
}

// AuthorMutation is the envelope returned by author create and update.
type AuthorMutation struct {
	Message string  `json:"message"`
	Author  *Author `json:"author"`
}

// DeletedMessage names the deleted book and its author.
func (b *Book) DeletedMessage() string {
	return fmt.Sprintf(`Book "%s" by %s deleted successfully`, b.Title, b.AuthorName)
}

// DeletedMessage names the deleted author.
func (a *Author) DeletedMessage() string {
	return fmt.Sprintf(`Author "%s" deleted successfully`, a.Name)
}
