// Package mysql provides a MySQL implementation of the catalog.Store interface.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booklib/catalog"
)

// MySQLStore implements the catalog.Store interface using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// Ensure MySQLStore implements catalog.Store
var _ catalog.Store = (*MySQLStore)(nil)

// New creates a new MySQLStore with the given database connection.
func New(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const bookColumns = "id, title, author, genre, rating, average_rating, total_ratings"

// List returns all books ordered by ID.
func (s *MySQLStore) List(ctx context.Context) ([]catalog.Book, error) {
	query := "SELECT " + bookColumns + " FROM books ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list books: %v", catalog.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	return scanBooks(rows)
}

// Get returns a book by ID.
func (s *MySQLStore) Get(ctx context.Context, id int64) (*catalog.Book, error) {
	query := "SELECT " + bookColumns + " FROM books WHERE id = ?"

	book, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrBookNotFound
		}
		return nil, fmt.Errorf("%w: get book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}
	return book, nil
}

// Create stores a new book and returns it with its assigned ID.
func (s *MySQLStore) Create(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO books (title, author, genre, rating, average_rating, total_ratings)
		VALUES (?, ?, ?, ?, 0, 0)
	`

	result, err := s.db.ExecContext(ctx, query, in.Title, in.Author, in.Genre, ratingArg(in.Rating))
	if err != nil {
		return nil, fmt.Errorf("%w: create book: %v", catalog.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &catalog.Book{
		ID:     id,
		Title:  in.Title,
		Author: in.Author,
		Genre:  in.Genre,
		Rating: in.Rating,
	}, nil
}

// Update replaces a book's data.
func (s *MySQLStore) Update(ctx context.Context, id int64, in catalog.BookInput) (*catalog.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE books SET title = ?, author = ?, genre = ?, rating = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, in.Title, in.Author, in.Genre, ratingArg(in.Rating), id)
	if err != nil {
		return nil, fmt.Errorf("%w: update book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		// The row may exist with identical values; distinguish via Get.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, id)
}

// Delete removes a book.
func (s *MySQLStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrBookNotFound
	}
	return nil
}

// Rate folds a new rating into the book's running average.
func (s *MySQLStore) Rate(ctx context.Context, id int64, rating float64) (*catalog.Book, error) {
	if err := catalog.ValidateRating(rating); err != nil {
		return nil, err
	}

	query := `
		UPDATE books
		SET average_rating = (average_rating * total_ratings + ?) / (total_ratings + 1),
		    total_ratings = total_ratings + 1
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, rating, id)
	if err != nil {
		return nil, fmt.Errorf("%w: rate book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, catalog.ErrBookNotFound
	}

	return s.Get(ctx, id)
}

// ToggleFavorite flips the favorite mark a user holds on a book.
// It returns true when the book is favorited after the call.
func (s *MySQLStore) ToggleFavorite(ctx context.Context, id int64, username string) (bool, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM book_favorites WHERE book_id = ? AND username = ?", id, username)
	if err != nil {
		return false, fmt.Errorf("%w: unfavorite book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if affected > 0 {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO book_favorites (book_id, username) VALUES (?, ?)", id, username); err != nil {
		return false, fmt.Errorf("%w: favorite book %d: %v", catalog.ErrStoreOperationFailed, id, err)
	}
	return true, nil
}

// TopRated returns up to limit rated books ordered by average rating.
// Books with no ratings are excluded.
func (s *MySQLStore) TopRated(ctx context.Context, limit int) ([]catalog.Book, error) {
	query := "SELECT " + bookColumns + ` FROM books
		WHERE total_ratings > 0
		ORDER BY average_rating DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: top rated: %v", catalog.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	return scanBooks(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBook scans a single book row.
func scanBook(row rowScanner) (*catalog.Book, error) {
	var (
		book   catalog.Book
		rating sql.NullFloat64
	)
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.Genre,
		&rating, &book.AverageRating, &book.TotalRatings)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		book.Rating = &rating.Float64
	}
	return &book, nil
}

// scanBooks scans all rows of a book query.
func scanBooks(rows *sql.Rows) ([]catalog.Book, error) {
	var books []catalog.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// ratingArg converts an optional rating to a driver argument.
func ratingArg(rating *float64) any {
	if rating == nil {
		return nil
	}
	return *rating
}
