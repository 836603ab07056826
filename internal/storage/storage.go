package storage

import (
	"context"
	"errors"
	"time"

	"librarysystem/internal/models"
)

var (
	// ErrNotFound is returned when an identifier does not resolve in the targeted collection.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique field (book ISBN, user email) is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrOutOfStock is returned when a copy is taken from a book with no available copies.
	ErrOutOfStock = errors.New("book is not available for borrowing")

	// ErrAlreadyReturned is returned when a return is recorded on a closed borrowing.
	ErrAlreadyReturned = errors.New("book is already returned")
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Book operations
	CreateBook(ctx context.Context, book models.Book) (string, error)
	GetBook(ctx context.Context, id string) (models.Book, error)
	ListAvailableBooks(ctx context.Context) ([]models.Book, error)

	// TakeCopy decrements the available counter of a book, but only while it is positive.
	// Returns ErrOutOfStock when no copy is left and ErrNotFound for unknown books.
	TakeCopy(ctx context.Context, bookID string) error
	// PutBackCopy increments the available counter of a book.
	PutBackCopy(ctx context.Context, bookID string) error

	// User operations
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, id string) (models.User, error)

	// Borrowing operations
	CreateBorrowing(ctx context.Context, borrowing models.Borrowing) (string, error)
	GetBorrowing(ctx context.Context, id string) (models.Borrowing, error)

	// MarkReturned sets the return date, but only while it is unset.
	// Returns ErrAlreadyReturned for closed borrowings and ErrNotFound for unknown ones.
	MarkReturned(ctx context.Context, id string, at time.Time) error
	// ClearReturned unsets the return date again. Used to undo a return that could not be completed.
	ClearReturned(ctx context.Context, id string) error

	// ListBorrowingsByUser returns all borrowings of a user ordered by borrow date, then id
	ListBorrowingsByUser(ctx context.Context, userID string) ([]models.Borrowing, error)
	// ListOverdueBorrowings returns open borrowings with a due date strictly before now, ordered by due date, then id
	ListOverdueBorrowings(ctx context.Context, now time.Time) ([]models.Borrowing, error)
	CountActiveBorrowings(ctx context.Context, userID string) (int, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
