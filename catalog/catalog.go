// Package catalog provides the book domain model and storage interface.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Store errors
var (
	// ErrBookNotFound indicates the book does not exist
	ErrBookNotFound = errors.New("book not found")

	// ErrInvalidBook indicates the book data failed validation
	ErrInvalidBook = errors.New("invalid book")

	// ErrStoreOperationFailed indicates a store operation failed
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// Book is one catalog record.
type Book struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Genre         string   `json:"genre"`
	Rating        *float64 `json:"rating,omitempty"`
	AverageRating float64  `json:"average_rating"`
	TotalRatings  int      `json:"total_ratings"`
}

// BookInput is the payload for creating or updating a book.
type BookInput struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	Genre  string   `json:"genre"`
	Rating *float64 `json:"rating,omitempty"`
}

// Field length limits for book input.
const (
	maxTitleLen  = 200
	maxAuthorLen = 100
	maxGenreLen  = 50
)

// Validate checks the input against the field constraints.
func (in BookInput) Validate() error {
	if in.Title == "" || len(in.Title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidBook, maxTitleLen)
	}
	if in.Author == "" || len(in.Author) > maxAuthorLen {
		return fmt.Errorf("%w: author must be 1-%d characters", ErrInvalidBook, maxAuthorLen)
	}
	if in.Genre == "" || len(in.Genre) > maxGenreLen {
		return fmt.Errorf("%w: genre must be 1-%d characters", ErrInvalidBook, maxGenreLen)
	}
	if in.Rating != nil {
		return ValidateRating(*in.Rating)
	}
	return nil
}

// ValidateRating checks that a rating value is within the accepted range.
func ValidateRating(rating float64) error {
	if rating < 0 || rating > 10 {
		return fmt.Errorf("%w: rating must be between 0 and 10", ErrInvalidBook)
	}
	return nil
}

// Store defines the storage interface for the book catalog.
type Store interface {
	// List returns all books.
	List(ctx context.Context) ([]Book, error)

	// Get returns a book by ID, or ErrBookNotFound.
	Get(ctx context.Context, id int64) (*Book, error)

	// Create stores a new book and returns it with its assigned ID.
	Create(ctx context.Context, in BookInput) (*Book, error)

	// Update replaces a book's data, or returns ErrBookNotFound.
	Update(ctx context.Context, id int64, in BookInput) (*Book, error)

	// Delete removes a book, or returns ErrBookNotFound.
	Delete(ctx context.Context, id int64) error

	// Rate records a rating for a book and folds it into the running
	// average, or returns ErrBookNotFound. The updated book is returned.
	Rate(ctx context.Context, id int64, rating float64) (*Book, error)

	// ToggleFavorite flips the favorite mark a user holds on a book and
	// reports the new state, or returns ErrBookNotFound.
	ToggleFavorite(ctx context.Context, id int64, username string) (bool, error)

	// TopRated returns up to limit rated books ordered by average rating.
	TopRated(ctx context.Context, limit int) ([]Book, error)
}
