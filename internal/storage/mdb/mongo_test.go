package mdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoTC "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"librarysystem/internal/models"
	"librarysystem/internal/storage"
)

// setupTestDB creates a test MongoDB instance using testcontainers
func setupTestDB(t *testing.T) (*MongoDB, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongoTC.Run(ctx, "mongo:7.0")
	require.NoError(t, err, "Failed to start MongoDB container")

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := NewMongoDB(ctx, uri, "library_test")
	require.NoError(t, err, "Failed to connect to MongoDB")

	require.NoError(t, db.Initialize(ctx), "Failed to create indexes")

	cleanup := func() {
		db.Close()
		mongoContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestMongoDB_Books(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	added := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := db.CreateBook(ctx, models.Book{
		Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "1234567890",
		Quantity: 1, Available: 1, AddedAt: added,
	})
	require.NoError(t, err)
	assert.Len(t, id, 24)

	book, err := db.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "The Great Gatsby", book.Title)
	assert.Equal(t, 1, book.Available)
	assert.True(t, added.Equal(book.AddedAt))

	// Unique ISBN
	_, err = db.CreateBook(ctx, models.Book{Title: "Other", ISBN: "1234567890"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// Take the only copy, then the shelf is empty
	require.NoError(t, db.TakeCopy(ctx, id))
	assert.ErrorIs(t, db.TakeCopy(ctx, id), storage.ErrOutOfStock)

	books, err := db.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	require.NoError(t, db.PutBackCopy(ctx, id))
	books, err = db.ListAvailableBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, id, books[0].ID)
}

func TestMongoDB_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	missing := "65f000000000000000000000"

	_, err := db.GetBook(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.GetUser(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.GetBorrowing(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, db.TakeCopy(ctx, missing), storage.ErrNotFound)
	assert.ErrorIs(t, db.PutBackCopy(ctx, missing), storage.ErrNotFound)
	assert.ErrorIs(t, db.MarkReturned(ctx, missing, time.Now()), storage.ErrNotFound)
}

func TestMongoDB_Users(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	id, err := db.CreateUser(ctx, models.User{Name: "John Doe", Email: "john.doe@example.com", Phone: "1234567890"})
	require.NoError(t, err)

	user, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", user.Name)
	assert.Equal(t, "1234567890", user.Phone)

	_, err = db.CreateUser(ctx, models.User{Name: "Johnny", Email: "john.doe@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestMongoDB_Borrowings(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	u1, u2 := "65f0000000000000000000a1", "65f0000000000000000000a2"
	b1, b2 := "65f0000000000000000000b1", "65f0000000000000000000b2"

	first, err := db.CreateBorrowing(ctx, models.Borrowing{
		UserID: u1, BookID: b1, BorrowDate: base, DueDate: base.AddDate(0, 0, 14),
	})
	require.NoError(t, err)
	second, err := db.CreateBorrowing(ctx, models.Borrowing{
		UserID: u1, BookID: b2, BorrowDate: base.Add(time.Hour), DueDate: base.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	_, err = db.CreateBorrowing(ctx, models.Borrowing{
		UserID: u2, BookID: b1, BorrowDate: base, DueDate: base.AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	history, err := db.ListBorrowingsByUser(ctx, u1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, second, history[1].ID)
	assert.Nil(t, history[0].ReturnDate)
	assert.Equal(t, u1, history[0].UserID)
	assert.Equal(t, b1, history[0].BookID)

	// References are stored as ObjectIDs, not as their hex text
	firstOID, err := primitive.ObjectIDFromHex(first)
	require.NoError(t, err)
	var raw bson.M
	require.NoError(t, db.borrowings.FindOne(ctx, bson.M{"_id": firstOID}).Decode(&raw))
	assert.IsType(t, primitive.ObjectID{}, raw["user_id"])
	assert.IsType(t, primitive.ObjectID{}, raw["book_id"])

	_, err = db.CreateBorrowing(ctx, models.Borrowing{UserID: "u1", BookID: b1, BorrowDate: base, DueDate: base})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err = db.ListBorrowingsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	count, err := db.CountActiveBorrowings(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	overdue, err := db.ListOverdueBorrowings(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, second, overdue[0].ID)

	returned := base.AddDate(0, 0, 2)
	require.NoError(t, db.MarkReturned(ctx, second, returned))
	assert.ErrorIs(t, db.MarkReturned(ctx, second, returned), storage.ErrAlreadyReturned)

	borrowing, err := db.GetBorrowing(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, borrowing.ReturnDate)
	assert.True(t, returned.Equal(*borrowing.ReturnDate))
	assert.Equal(t, models.StatusReturned, borrowing.Status())

	overdue, err = db.ListOverdueBorrowings(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, overdue)

	require.NoError(t, db.ClearReturned(ctx, second))
	count, err = db.CountActiveBorrowings(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMongoDB_Close(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, db.Close())

	// Second close should not fail
	assert.NoError(t, db.Close())
}
