package console

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"librarysystem/internal/library"
	"librarysystem/internal/models"
)

// handleAddBook asks for the book fields and adds it to the catalog
func (c *Console) handleAddBook(ctx context.Context) error {
	answers, err := c.prompts("Enter book title: ", "Enter author name: ", "Enter ISBN: ", "Enter quantity: ")
	if err != nil {
		return err
	}

	quantity, err := parseCount("quantity", answers[3])
	if err != nil {
		return err
	}

	id, err := c.lib.AddBook(ctx, answers[0], answers[1], answers[2], quantity)
	if err != nil {
		return err
	}

	c.printf("\nBook added successfully! ID: %s\n", id)
	return nil
}

// handleAvailableBooks lists every book with a copy on the shelf
func (c *Console) handleAvailableBooks(ctx context.Context) error {
	books, err := c.lib.ListAvailableBooks(ctx)
	if err != nil {
		return err
	}

	if len(books) == 0 {
		c.println("\nNo books available!")
		return nil
	}

	var text strings.Builder
	text.WriteString("\nAvailable Books:\n")
	for _, book := range books {
		text.WriteString(formatBook(book))
	}
	c.printf("%s", text.String())
	return nil
}

// handleRegisterUser asks for the member fields and registers them
func (c *Console) handleRegisterUser(ctx context.Context) error {
	answers, err := c.prompts("Enter user name: ", "Enter user email: ", "Enter user phone: ")
	if err != nil {
		return err
	}

	id, err := c.lib.RegisterUser(ctx, answers[0], answers[1], answers[2])
	if err != nil {
		return err
	}

	c.printf("\nUser registered successfully! ID: %s\n", id)
	return nil
}

// handleBorrow lends a book; an empty duration means the default loan period
func (c *Console) handleBorrow(ctx context.Context) error {
	answers, err := c.prompts("Enter user ID: ", "Enter book ID: ",
		fmt.Sprintf("Enter duration in days (default %d): ", library.DefaultLoanDays))
	if err != nil {
		return err
	}

	duration := library.DefaultLoanDays
	if answers[2] != "" {
		duration, err = parseCount("duration", answers[2])
		if err != nil {
			return err
		}
	}

	id, err := c.lib.BorrowBook(ctx, answers[0], answers[1], duration)
	if err != nil {
		return err
	}

	c.printf("\nBook borrowed successfully! Borrowing ID: %s\n", id)
	return nil
}

// handleReturn closes a borrowing
func (c *Console) handleReturn(ctx context.Context) error {
	borrowingID, err := c.prompt("Enter borrowing ID: ")
	if err != nil {
		return err
	}

	if err := c.lib.ReturnBook(ctx, borrowingID); err != nil {
		return err
	}

	c.println("\nBook returned successfully!")
	return nil
}

// handleHistory shows all borrowings of one user
func (c *Console) handleHistory(ctx context.Context) error {
	userID, err := c.prompt("Enter user ID: ")
	if err != nil {
		return err
	}

	history, err := c.lib.UserHistory(ctx, userID)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		c.println("\nNo borrowing history found!")
		return nil
	}

	var text strings.Builder
	text.WriteString("\nBorrowing History:\n")
	for _, entry := range history {
		returned := "Not returned"
		if entry.ReturnDate != nil {
			returned = formatTime(*entry.ReturnDate)
		}
		text.WriteString(fmt.Sprintf("\nBorrowing ID: %s\nBook: %s\nBorrow Date: %s\nDue Date: %s\nReturn Date: %s\nStatus: %s\n",
			entry.ID,
			orUnknown(entry.BookTitle),
			formatTime(entry.BorrowDate),
			formatTime(entry.DueDate),
			returned,
			entry.Status()))
	}
	c.printf("%s", text.String())
	return nil
}

// handleOverdue lists overdue borrowings and passes them to the notifier
func (c *Console) handleOverdue(ctx context.Context) error {
	overdue, err := c.lib.OverdueBooks(ctx)
	if err != nil {
		return err
	}

	if len(overdue) == 0 {
		c.println("\nNo overdue books!")
		return nil
	}

	var text strings.Builder
	text.WriteString("\nOverdue Books:\n")
	for _, entry := range overdue {
		text.WriteString(fmt.Sprintf("\nBorrowing ID: %s\nBook: %s\nUser: %s\nEmail: %s\nDue Date: %s\n",
			entry.ID,
			orUnknown(entry.BookTitle),
			orUnknown(entry.UserName),
			entry.UserEmail,
			formatTime(entry.DueDate)))
	}
	c.printf("%s", text.String())

	if err := c.notifier.NotifyOverdue(ctx, overdue); err != nil {
		c.logger.Warn("Failed to send overdue notification", zap.Int("count", len(overdue)), zap.Error(err))
		c.printf("\nWarning: overdue notification failed: %v\n", err)
	}
	return nil
}

func formatBook(book models.Book) string {
	return fmt.Sprintf("\nID: %s\nTitle: %s\nAuthor: %s\nISBN: %s\nAvailable: %d/%d\n",
		book.ID, book.Title, book.Author, book.ISBN, book.Available, book.Quantity)
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
