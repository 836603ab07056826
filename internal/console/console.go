// Package console is the interactive menu of the library system.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"librarysystem/internal/library"
	"librarysystem/internal/models"
	"librarysystem/internal/notify"
	"librarysystem/internal/storage"
)

const (
	timeLayout = "2006-01-02 15:04:05"

	// maxLineLength is the longest answer accepted; longer lines are discarded
	maxLineLength = 64 * 1024
)

// Library is the set of operations the menu can invoke
type Library interface {
	AddBook(ctx context.Context, title, author, isbn string, quantity int) (string, error)
	ListAvailableBooks(ctx context.Context) ([]models.Book, error)
	RegisterUser(ctx context.Context, name, email, phone string) (string, error)
	BorrowBook(ctx context.Context, userID, bookID string, durationDays int) (string, error)
	ReturnBook(ctx context.Context, borrowingID string) error
	UserHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
	OverdueBooks(ctx context.Context) ([]models.OverdueEntry, error)
}

var (
	// errEndOfInput stops the loop when the input closes in the middle of a prompt
	errEndOfInput = errors.New("end of input")

	errLineTooLong = fmt.Errorf("%w: line too long", library.ErrInvalidInput)
)

// knownErrors are reported as "Error: ..." instead of as unexpected failures
var knownErrors = []error{
	storage.ErrNotFound,
	storage.ErrDuplicate,
	storage.ErrOutOfStock,
	storage.ErrAlreadyReturned,
	library.ErrInvalidInput,
	library.ErrBorrowLimit,
}

// Console reads menu choices line by line and prints the results
type Console struct {
	lib      Library
	notifier notify.Notifier
	in       *bufio.Reader
	out      io.Writer
	logger   *zap.Logger

	// readErr is the input failure that ended the session, if it was not a plain end of input
	readErr error
}

// NewConsole creates a console reading from in and writing to out
func NewConsole(lib Library, notifier notify.Notifier, in io.Reader, out io.Writer, logger *zap.Logger) *Console {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Console{
		lib:      lib,
		notifier: notifier,
		in:       bufio.NewReader(in),
		out:      out,
		logger:   logger,
	}
}

// Run shows the menu until Exit is chosen or the input ends
func (c *Console) Run(ctx context.Context) error {
	for {
		c.printMenu()
		choice, err := c.prompt("Enter your choice (1-8): ")
		if errors.Is(err, errLineTooLong) {
			c.printf("\nError: %v\n", err)
			continue
		}
		if err != nil {
			c.println("\nThank you for using the Library Management System!")
			return c.readErr
		}

		if choice == "8" {
			c.println("\nThank you for using the Library Management System!")
			return nil
		}

		if err := c.handleChoice(ctx, choice); errors.Is(err, errEndOfInput) {
			c.println("\nThank you for using the Library Management System!")
			return c.readErr
		}
	}
}

func (c *Console) printMenu() {
	c.println(`
Library Management System
1. Add Book
2. View Available Books
3. Register User
4. Borrow Book
5. Return Book
6. View User History
7. View Overdue Books
8. Exit`)
}

// handleChoice runs one menu action and reports its outcome
func (c *Console) handleChoice(ctx context.Context, choice string) (err error) {
	// Recover from panics so one broken action does not end the session
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in menu action", zap.String("choice", choice), zap.Any("panic", r))
			c.printf("\nAn unexpected error occurred: %v\n", r)
			err = nil
		}
	}()

	switch choice {
	case "1":
		err = c.handleAddBook(ctx)
	case "2":
		err = c.handleAvailableBooks(ctx)
	case "3":
		err = c.handleRegisterUser(ctx)
	case "4":
		err = c.handleBorrow(ctx)
	case "5":
		err = c.handleReturn(ctx)
	case "6":
		err = c.handleHistory(ctx)
	case "7":
		err = c.handleOverdue(ctx)
	default:
		c.println("\nInvalid choice! Please try again.")
		return nil
	}

	if err == nil || errors.Is(err, errEndOfInput) {
		return err
	}

	if isKnown(err) {
		c.logger.Info("Menu action rejected", zap.String("choice", choice), zap.Error(err))
		c.printf("\nError: %v\n", err)
	} else {
		c.logger.Error("Menu action failed", zap.String("choice", choice), zap.Error(err))
		c.printf("\nAn unexpected error occurred: %v\n", err)
	}
	return nil
}

func isKnown(err error) bool {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// prompt prints a prompt and reads one trimmed line
func (c *Console) prompt(text string) (string, error) {
	c.printf("%s", text)
	line, err := c.readLine()
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return "", err
		}
		if !errors.Is(err, io.EOF) {
			c.logger.Error("Failed to read input", zap.Error(err))
			c.readErr = err
		}
		return "", errEndOfInput
	}
	return strings.TrimSpace(line), nil
}

// readLine reads up to the next newline. A line over maxLineLength is consumed whole and
// reported as errLineTooLong, so the next read starts on the following line.
func (c *Console) readLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := c.in.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > maxLineLength {
				tooLong, line = true, nil
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && (len(line) > 0 || tooLong)) {
			return "", err
		}
		break
	}

	if tooLong {
		return "", errLineTooLong
	}
	return string(line), nil
}

// prompts asks several questions in order. A line that is too long does not stop the
// remaining questions, so the input stays in step with the prompts.
func (c *Console) prompts(texts ...string) ([]string, error) {
	answers := make([]string, 0, len(texts))
	var tooLong error
	for _, text := range texts {
		answer, err := c.prompt(text)
		if errors.Is(err, errLineTooLong) {
			tooLong = err
		} else if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	if tooLong != nil {
		return nil, tooLong
	}
	return answers, nil
}

func (c *Console) println(text string) {
	fmt.Fprintln(c.out, text)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// parseCount parses a whole number typed by the user
func parseCount(field, text string) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %q", library.ErrInvalidInput, field, text)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}
