// Package library implements the borrowing lifecycle and the read-only queries on top of a Storage.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"librarysystem/internal/journal"
	"librarysystem/internal/models"
	"librarysystem/internal/storage"
)

const (
	// DefaultLoanDays is used when no duration is given
	DefaultLoanDays = 14

	// MaxLoanDays bounds the duration so the due date stays a real calendar date
	MaxLoanDays = 36500

	// MaxActiveBorrowings is how many books one user may hold at a time
	MaxActiveBorrowings = 5
)

var (
	// ErrInvalidInput is returned for empty required fields and out of range numbers.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBorrowLimit is returned when the user already holds MaxActiveBorrowings books.
	ErrBorrowLimit = errors.New("user has reached maximum borrowing limit")
)

// Service runs library operations against the record store and journals what happened
type Service struct {
	db        storage.Storage
	journal   journal.Journal
	logger    *zap.Logger
	now       func() time.Time
	maxActive int
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMaxActiveBorrowings overrides MaxActiveBorrowings
func WithMaxActiveBorrowings(n int) Option {
	return func(s *Service) {
		s.maxActive = n
	}
}

// NewService creates a Service. A nil journal disables journaling.
func NewService(db storage.Storage, j journal.Journal, logger *zap.Logger, opts ...Option) *Service {
	if j == nil {
		j = journal.NopJournal{}
	}
	s := &Service{
		db:        db,
		journal:   j,
		logger:    logger,
		now:       time.Now,
		maxActive: MaxActiveBorrowings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time in UTC at the store's millisecond resolution
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// AddBook registers a new title with quantity copies, all of them available
func (s *Service) AddBook(ctx context.Context, title, author, isbn string, quantity int) (string, error) {
	title, author, isbn = strings.TrimSpace(title), strings.TrimSpace(author), strings.TrimSpace(isbn)
	if err := required(field{"title", title}, field{"author", author}, field{"ISBN", isbn}); err != nil {
		return "", err
	}
	if quantity < 0 {
		return "", fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}

	id, err := s.db.CreateBook(ctx, models.Book{
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Quantity:  quantity,
		Available: quantity,
		AddedAt:   s.clock(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("Book added", zap.String("book_id", id), zap.String("isbn", isbn), zap.Int("quantity", quantity))
	s.record(ctx, models.Activity{
		Kind:    models.ActivityBookAdded,
		BookID:  id,
		Details: map[string]string{"title": title, "isbn": isbn},
	})
	return id, nil
}

// ListAvailableBooks returns books with at least one copy on the shelf
func (s *Service) ListAvailableBooks(ctx context.Context) ([]models.Book, error) {
	return s.db.ListAvailableBooks(ctx)
}

// RegisterUser creates a library member
func (s *Service) RegisterUser(ctx context.Context, name, email, phone string) (string, error) {
	name, email, phone = strings.TrimSpace(name), strings.TrimSpace(email), strings.TrimSpace(phone)
	if err := required(field{"name", name}, field{"email", email}); err != nil {
		return "", err
	}

	id, err := s.db.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		RegisteredAt: s.clock(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("User registered", zap.String("user_id", id))
	s.record(ctx, models.Activity{
		Kind:    models.ActivityUserRegistered,
		UserID:  id,
		Details: map[string]string{"name": name},
	})
	return id, nil
}

// BorrowBook lends one copy of a book to a user for durationDays days and returns the borrowing id.
//
// The copy is taken before the borrowing is written; if the write fails the copy is put back,
// so either both changes persist or neither does.
func (s *Service) BorrowBook(ctx context.Context, userID, bookID string, durationDays int) (string, error) {
	if durationDays <= 0 {
		return "", fmt.Errorf("%w: duration must be a positive number of days", ErrInvalidInput)
	}
	if durationDays > MaxLoanDays {
		return "", fmt.Errorf("%w: duration must not exceed %d days", ErrInvalidInput, MaxLoanDays)
	}

	if _, err := s.db.GetUser(ctx, userID); err != nil {
		return "", err
	}

	active, err := s.db.CountActiveBorrowings(ctx, userID)
	if err != nil {
		return "", err
	}
	if active >= s.maxActive {
		return "", ErrBorrowLimit
	}

	if _, err := s.db.GetBook(ctx, bookID); err != nil {
		return "", err
	}

	// Conditional on available > 0, so concurrent borrowers cannot drive the counter negative
	if err := s.db.TakeCopy(ctx, bookID); err != nil {
		return "", err
	}

	now := s.clock()
	borrowing := models.Borrowing{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.AddDate(0, 0, durationDays),
	}

	id, err := s.db.CreateBorrowing(ctx, borrowing)
	if err != nil {
		if undoErr := s.db.PutBackCopy(ctx, bookID); undoErr != nil {
			s.logger.Error("Failed to put back copy after failed borrowing",
				zap.String("book_id", bookID),
				zap.Error(undoErr),
			)
			return "", errors.Join(err, undoErr)
		}
		return "", err
	}

	s.logger.Info("Book borrowed",
		zap.String("borrowing_id", id),
		zap.String("book_id", bookID),
		zap.String("user_id", userID),
		zap.Time("due_date", borrowing.DueDate),
	)
	s.record(ctx, models.Activity{
		Kind:        models.ActivityBookBorrowed,
		BookID:      bookID,
		UserID:      userID,
		BorrowingID: id,
		Details:     map[string]string{"due_date": borrowing.DueDate.Format(time.RFC3339)},
	})
	return id, nil
}

// ReturnBook closes a borrowing and puts the copy back on the shelf
func (s *Service) ReturnBook(ctx context.Context, borrowingID string) error {
	borrowing, err := s.db.GetBorrowing(ctx, borrowingID)
	if err != nil {
		return err
	}
	if borrowing.ReturnDate != nil {
		return storage.ErrAlreadyReturned
	}

	// Conditional on return_date == null, so the same borrowing can only be closed once
	now := s.clock()
	if err := s.db.MarkReturned(ctx, borrowingID, now); err != nil {
		return err
	}

	if err := s.db.PutBackCopy(ctx, borrowing.BookID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The book is gone, there is no shelf to put the copy back on
			s.logger.Warn("Returned borrowing references a missing book",
				zap.String("borrowing_id", borrowingID),
				zap.String("book_id", borrowing.BookID),
			)
		} else {
			if undoErr := s.db.ClearReturned(ctx, borrowingID); undoErr != nil {
				s.logger.Error("Failed to reopen borrowing after failed return",
					zap.String("borrowing_id", borrowingID),
					zap.Error(undoErr),
				)
				return errors.Join(err, undoErr)
			}
			return err
		}
	}

	s.logger.Info("Book returned",
		zap.String("borrowing_id", borrowingID),
		zap.String("book_id", borrowing.BookID),
		zap.Bool("overdue", borrowing.DueDate.Before(now)),
	)
	s.record(ctx, models.Activity{
		Kind:        models.ActivityBookReturned,
		BookID:      borrowing.BookID,
		UserID:      borrowing.UserID,
		BorrowingID: borrowingID,
	})
	return nil
}

// UserHistory returns every borrowing of a user, oldest first, with the book title resolved
func (s *Service) UserHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	if _, err := s.db.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	borrowings, err := s.db.ListBorrowingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string)
	entries := make([]models.HistoryEntry, 0, len(borrowings))
	for _, b := range borrowings {
		title, err := s.bookTitle(ctx, titles, b.BookID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.HistoryEntry{Borrowing: b, BookTitle: title})
	}
	return entries, nil
}

// OverdueBooks returns open borrowings whose due date has passed, with book and user resolved
func (s *Service) OverdueBooks(ctx context.Context) ([]models.OverdueEntry, error) {
	borrowings, err := s.db.ListOverdueBorrowings(ctx, s.clock())
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string)
	users := make(map[string]models.User)
	entries := make([]models.OverdueEntry, 0, len(borrowings))
	for _, b := range borrowings {
		title, err := s.bookTitle(ctx, titles, b.BookID)
		if err != nil {
			return nil, err
		}

		user, ok := users[b.UserID]
		if !ok {
			user, err = s.db.GetUser(ctx, b.UserID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
			users[b.UserID] = user
		}

		entries = append(entries, models.OverdueEntry{
			Borrowing: b,
			BookTitle: title,
			UserName:  user.Name,
			UserEmail: user.Email,
		})
	}
	return entries, nil
}

// bookTitle resolves a book title through a per-call cache. Dangling references resolve to "".
func (s *Service) bookTitle(ctx context.Context, cache map[string]string, bookID string) (string, error) {
	if title, ok := cache[bookID]; ok {
		return title, nil
	}
	book, err := s.db.GetBook(ctx, bookID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	cache[bookID] = book.Title
	return book.Title, nil
}

// record writes to the journal. Journal failures never fail the operation.
func (s *Service) record(ctx context.Context, activity models.Activity) {
	activity.OccurredAt = s.clock()
	if err := s.journal.Record(ctx, activity); err != nil {
		s.logger.Warn("Failed to record activity",
			zap.String("kind", activity.Kind),
			zap.Error(err),
		)
	}
}

type field struct {
	name  string
	value string
}

// required reports the first empty field
func required(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, f.name)
		}
	}
	return nil
}
