package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"librarysystem/internal/models"
	"librarysystem/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu         sync.RWMutex
	books      map[string]models.Book
	users      map[string]models.User
	borrowings map[string]models.Borrowing
	newID      func() string

	// failCreateBorrowing and failPutBack make the next matching call fail; tests use them to check compensation
	failCreateBorrowing error
	failPutBack         error
}

// Option configures a MockDB
type Option func(*MockDB)

// WithIDGenerator replaces the ObjectID generator, e.g. with a deterministic sequence
func WithIDGenerator(gen func() string) Option {
	return func(m *MockDB) {
		m.newID = gen
	}
}

// NewMockDB creates a new mock database
func NewMockDB(opts ...Option) *MockDB {
	m := &MockDB{
		books:      make(map[string]models.Book),
		users:      make(map[string]models.User),
		borrowings: make(map[string]models.Borrowing),
		newID: func() string {
			return primitive.NewObjectID().Hex()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SequentialIDs returns a generator producing 24-hex-digit ids 000...001, 000...002, ...
func SequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%024x", n)
	}
}

// FailNextBorrowing makes the next CreateBorrowing call return err
func (m *MockDB) FailNextBorrowing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreateBorrowing = err
}

// FailNextPutBack makes the next PutBackCopy call return err
func (m *MockDB) FailNextPutBack(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPutBack = err
}

// Initialize does nothing for mock DB, uniqueness is checked on insert
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook stores a new book and returns its generated id
func (m *MockDB) CreateBook(ctx context.Context, book models.Book) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.books {
		if b.ISBN == book.ISBN {
			return "", fmt.Errorf("book with ISBN %s %w", book.ISBN, storage.ErrDuplicate)
		}
	}

	book.ID = m.newID()
	m.books[book.ID] = book
	return book.ID, nil
}

// GetBook returns a book by id
func (m *MockDB) GetBook(ctx context.Context, id string) (models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("book %s %w", id, storage.ErrNotFound)
	}
	return book, nil
}

// ListAvailableBooks returns books with at least one copy on the shelf
func (m *MockDB) ListAvailableBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []models.Book
	for _, book := range m.books {
		if book.Available > 0 {
			books = append(books, book)
		}
	}

	// Sort by title, then id
	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID < books[j].ID
	})

	return books, nil
}

// TakeCopy decrements the available counter if a copy is left
func (m *MockDB) TakeCopy(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[bookID]
	if !ok {
		return fmt.Errorf("book %s %w", bookID, storage.ErrNotFound)
	}
	if book.Available <= 0 {
		return storage.ErrOutOfStock
	}
	book.Available--
	m.books[bookID] = book
	return nil
}

// PutBackCopy increments the available counter
func (m *MockDB) PutBackCopy(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failPutBack; err != nil {
		m.failPutBack = nil
		return err
	}

	book, ok := m.books[bookID]
	if !ok {
		return fmt.Errorf("book %s %w", bookID, storage.ErrNotFound)
	}
	book.Available++
	m.books[bookID] = book
	return nil
}

// CreateUser stores a new user and returns its generated id
func (m *MockDB) CreateUser(ctx context.Context, user models.User) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return "", fmt.Errorf("user with email %s %w", user.Email, storage.ErrDuplicate)
		}
	}

	user.ID = m.newID()
	m.users[user.ID] = user
	return user.ID, nil
}

// GetUser returns a user by id
func (m *MockDB) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s %w", id, storage.ErrNotFound)
	}
	return user, nil
}

// CreateBorrowing stores a new borrowing and returns its generated id
func (m *MockDB) CreateBorrowing(ctx context.Context, borrowing models.Borrowing) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failCreateBorrowing; err != nil {
		m.failCreateBorrowing = nil
		return "", err
	}

	borrowing.ID = m.newID()
	borrowing.ReturnDate = cloneTime(borrowing.ReturnDate)
	m.borrowings[borrowing.ID] = borrowing
	return borrowing.ID, nil
}

// GetBorrowing returns a borrowing by id
func (m *MockDB) GetBorrowing(ctx context.Context, id string) (models.Borrowing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	borrowing, ok := m.borrowings[id]
	if !ok {
		return models.Borrowing{}, fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
	}
	borrowing.ReturnDate = cloneTime(borrowing.ReturnDate)
	return borrowing, nil
}

// MarkReturned sets the return date of an open borrowing
func (m *MockDB) MarkReturned(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	borrowing, ok := m.borrowings[id]
	if !ok {
		return fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
	}
	if borrowing.ReturnDate != nil {
		return storage.ErrAlreadyReturned
	}
	borrowing.ReturnDate = &at
	m.borrowings[id] = borrowing
	return nil
}

// ClearReturned reopens a borrowing
func (m *MockDB) ClearReturned(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	borrowing, ok := m.borrowings[id]
	if !ok {
		return fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
	}
	borrowing.ReturnDate = nil
	m.borrowings[id] = borrowing
	return nil
}

// ListBorrowingsByUser returns the borrowings of a user, oldest first
func (m *MockDB) ListBorrowingsByUser(ctx context.Context, userID string) ([]models.Borrowing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var borrowings []models.Borrowing
	for _, b := range m.borrowings {
		if b.UserID == userID {
			b.ReturnDate = cloneTime(b.ReturnDate)
			borrowings = append(borrowings, b)
		}
	}

	sort.Slice(borrowings, func(i, j int) bool {
		if !borrowings[i].BorrowDate.Equal(borrowings[j].BorrowDate) {
			return borrowings[i].BorrowDate.Before(borrowings[j].BorrowDate)
		}
		return borrowings[i].ID < borrowings[j].ID
	})

	return borrowings, nil
}

// ListOverdueBorrowings returns open borrowings due strictly before now
func (m *MockDB) ListOverdueBorrowings(ctx context.Context, now time.Time) ([]models.Borrowing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var borrowings []models.Borrowing
	for _, b := range m.borrowings {
		if b.IsOverdue(now) {
			borrowings = append(borrowings, b)
		}
	}

	sort.Slice(borrowings, func(i, j int) bool {
		if !borrowings[i].DueDate.Equal(borrowings[j].DueDate) {
			return borrowings[i].DueDate.Before(borrowings[j].DueDate)
		}
		return borrowings[i].ID < borrowings[j].ID
	})

	return borrowings, nil
}

// CountActiveBorrowings returns how many books a user currently holds
func (m *MockDB) CountActiveBorrowings(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int
	for _, b := range m.borrowings {
		if b.UserID == userID && b.ReturnDate == nil {
			count++
		}
	}
	return count, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
