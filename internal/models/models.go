package models

import "time"

// Book represents a title held by the library
type Book struct {
	ID        string
	Title     string
	Author    string
	ISBN      string
	Quantity  int // total copies owned
	Available int // copies currently on the shelf
	AddedAt   time.Time
}

// User represents a registered library member
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	RegisteredAt time.Time
}

// Borrowing status values
const (
	StatusActive   = "active"
	StatusReturned = "returned"
)

// Borrowing links one user to one book for a bounded loan period.
// UserID and BookID are plain references; nothing guarantees they still resolve.
type Borrowing struct {
	ID         string
	UserID     string
	BookID     string
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time // nil while the book is out
}

// Status reports whether the borrowing is still open
func (b Borrowing) Status() string {
	if b.ReturnDate == nil {
		return StatusActive
	}
	return StatusReturned
}

// IsOverdue reports whether the book is still out and the due date is strictly before now
func (b Borrowing) IsOverdue(now time.Time) bool {
	return b.ReturnDate == nil && b.DueDate.Before(now)
}

// HistoryEntry is a borrowing as shown in a user's history
type HistoryEntry struct {
	Borrowing
	BookTitle string
}

// OverdueEntry is an open borrowing past its due date together with who holds the book
type OverdueEntry struct {
	Borrowing
	BookTitle string
	UserName  string
	UserEmail string
}

// Activity kinds recorded in the journal
const (
	ActivityBookAdded      = "book_added"
	ActivityUserRegistered = "user_registered"
	ActivityBookBorrowed   = "book_borrowed"
	ActivityBookReturned   = "book_returned"
)

// Activity is a single journal entry
type Activity struct {
	ID          string            `json:"event_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Kind        string            `json:"kind"`
	BookID      string            `json:"book_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	BorrowingID string            `json:"borrowing_id,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}
