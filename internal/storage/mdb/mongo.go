package mdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"librarysystem/internal/models"
	"librarysystem/internal/storage"
)

const (
	collBooks      = "books"
	collUsers      = "users"
	collBorrowings = "borrowings"

	connectTimeout = 10 * time.Second
)

type bookDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Author    string             `bson:"author"`
	ISBN      string             `bson:"isbn"`
	Quantity  int                `bson:"quantity"`
	Available int                `bson:"available"`
	AddedDate time.Time          `bson:"added_date"`
}

type userDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Phone            string             `bson:"phone"`
	RegistrationDate time.Time          `bson:"registration_date"`
}

type borrowingDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     primitive.ObjectID `bson:"user_id"`
	BookID     primitive.ObjectID `bson:"book_id"`
	BorrowDate time.Time          `bson:"borrow_date"`
	DueDate    time.Time          `bson:"due_date"`
	ReturnDate *time.Time         `bson:"return_date"`
}

// MongoDB stores books, users and borrowings in three collections of one database
type MongoDB struct {
	client     *mongo.Client
	books      *mongo.Collection
	users      *mongo.Collection
	borrowings *mongo.Collection
}

// NewMongoDB connects to the server at uri and uses the given database
func NewMongoDB(ctx context.Context, uri, database string) (*MongoDB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	return &MongoDB{
		client:     client,
		books:      db.Collection(collBooks),
		users:      db.Collection(collUsers),
		borrowings: db.Collection(collBorrowings),
	}, nil
}

// Initialize creates the indexes the store relies on
func (db *MongoDB) Initialize(ctx context.Context) error {
	if _, err := db.books.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "isbn", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create books index: %w", err)
	}

	if _, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	if _, err := db.borrowings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "book_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "borrow_date", Value: 1}}},
		{Keys: bson.D{{Key: "return_date", Value: 1}, {Key: "due_date", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create borrowings indexes: %w", err)
	}

	return nil
}

// CreateBook inserts a book and returns its generated id
func (db *MongoDB) CreateBook(ctx context.Context, book models.Book) (string, error) {
	doc := bookDoc{
		Title:     book.Title,
		Author:    book.Author,
		ISBN:      book.ISBN,
		Quantity:  book.Quantity,
		Available: book.Available,
		AddedDate: book.AddedAt,
	}

	res, err := db.books.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("book with ISBN %s %w", book.ISBN, storage.ErrDuplicate)
		}
		return "", fmt.Errorf("failed to create book: %w", err)
	}
	return insertedID(res), nil
}

// GetBook returns a book by id
func (db *MongoDB) GetBook(ctx context.Context, id string) (models.Book, error) {
	oid, err := objectID("book", id)
	if err != nil {
		return models.Book{}, err
	}

	var doc bookDoc
	if err := db.books.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Book{}, fmt.Errorf("book %s %w", id, storage.ErrNotFound)
		}
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return doc.toModel(), nil
}

// ListAvailableBooks returns books with at least one copy on the shelf
func (db *MongoDB) ListAvailableBooks(ctx context.Context) ([]models.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := db.books.Find(ctx, bson.M{"available": bson.M{"$gt": 0}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list available books: %w", err)
	}

	var docs []bookDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode books: %w", err)
	}

	books := make([]models.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, doc.toModel())
	}
	return books, nil
}

// TakeCopy decrements the available counter in a single conditional update
func (db *MongoDB) TakeCopy(ctx context.Context, bookID string) error {
	oid, err := objectID("book", bookID)
	if err != nil {
		return err
	}

	res, err := db.books.UpdateOne(ctx,
		bson.M{"_id": oid, "available": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"available": -1}},
	)
	if err != nil {
		return fmt.Errorf("failed to take copy: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: either the book is gone or the shelf is empty
	n, err := db.books.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to check book: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %s %w", bookID, storage.ErrNotFound)
	}
	return storage.ErrOutOfStock
}

// PutBackCopy increments the available counter
func (db *MongoDB) PutBackCopy(ctx context.Context, bookID string) error {
	oid, err := objectID("book", bookID)
	if err != nil {
		return err
	}

	res, err := db.books.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"available": 1}})
	if err != nil {
		return fmt.Errorf("failed to put back copy: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("book %s %w", bookID, storage.ErrNotFound)
	}
	return nil
}

// CreateUser inserts a user and returns its generated id
func (db *MongoDB) CreateUser(ctx context.Context, user models.User) (string, error) {
	doc := userDoc{
		Name:             user.Name,
		Email:            user.Email,
		Phone:            user.Phone,
		RegistrationDate: user.RegisteredAt,
	}

	res, err := db.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("user with email %s %w", user.Email, storage.ErrDuplicate)
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return insertedID(res), nil
}

// GetUser returns a user by id
func (db *MongoDB) GetUser(ctx context.Context, id string) (models.User, error) {
	oid, err := objectID("user", id)
	if err != nil {
		return models.User{}, err
	}

	var doc userDoc
	if err := db.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, fmt.Errorf("user %s %w", id, storage.ErrNotFound)
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return models.User{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		Phone:        doc.Phone,
		RegisteredAt: doc.RegistrationDate,
	}, nil
}

// CreateBorrowing inserts a borrowing and returns its generated id
func (db *MongoDB) CreateBorrowing(ctx context.Context, borrowing models.Borrowing) (string, error) {
	userID, err := objectID("user", borrowing.UserID)
	if err != nil {
		return "", err
	}
	bookID, err := objectID("book", borrowing.BookID)
	if err != nil {
		return "", err
	}

	doc := borrowingDoc{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: borrowing.BorrowDate,
		DueDate:    borrowing.DueDate,
		ReturnDate: borrowing.ReturnDate,
	}

	res, err := db.borrowings.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create borrowing: %w", err)
	}
	return insertedID(res), nil
}

// GetBorrowing returns a borrowing by id
func (db *MongoDB) GetBorrowing(ctx context.Context, id string) (models.Borrowing, error) {
	oid, err := objectID("borrowing", id)
	if err != nil {
		return models.Borrowing{}, err
	}

	var doc borrowingDoc
	if err := db.borrowings.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Borrowing{}, fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
		}
		return models.Borrowing{}, fmt.Errorf("failed to get borrowing: %w", err)
	}
	return doc.toModel(), nil
}

// MarkReturned sets the return date only while it is still null
func (db *MongoDB) MarkReturned(ctx context.Context, id string, at time.Time) error {
	oid, err := objectID("borrowing", id)
	if err != nil {
		return err
	}

	res, err := db.borrowings.UpdateOne(ctx,
		bson.M{"_id": oid, "return_date": nil},
		bson.M{"$set": bson.M{"return_date": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark borrowing returned: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := db.borrowings.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to check borrowing: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
	}
	return storage.ErrAlreadyReturned
}

// ClearReturned resets the return date to null
func (db *MongoDB) ClearReturned(ctx context.Context, id string) error {
	oid, err := objectID("borrowing", id)
	if err != nil {
		return err
	}

	res, err := db.borrowings.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"return_date": nil}})
	if err != nil {
		return fmt.Errorf("failed to clear return date: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("borrowing %s %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListBorrowingsByUser returns all borrowings of a user, oldest first
func (db *MongoDB) ListBorrowingsByUser(ctx context.Context, userID string) ([]models.Borrowing, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Borrowing{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "borrow_date", Value: 1}, {Key: "_id", Value: 1}})
	return db.findBorrowings(ctx, bson.M{"user_id": oid}, opts)
}

// ListOverdueBorrowings returns open borrowings whose due date is strictly before now
func (db *MongoDB) ListOverdueBorrowings(ctx context.Context, now time.Time) ([]models.Borrowing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	filter := bson.M{
		"return_date": nil,
		"due_date":    bson.M{"$lt": now},
	}
	return db.findBorrowings(ctx, filter, opts)
}

// CountActiveBorrowings counts the open borrowings of a user
func (db *MongoDB) CountActiveBorrowings(ctx context.Context, userID string) (int, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, nil
	}

	n, err := db.borrowings.CountDocuments(ctx, bson.M{"user_id": oid, "return_date": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count active borrowings: %w", err)
	}
	return int(n), nil
}

func (db *MongoDB) findBorrowings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Borrowing, error) {
	cur, err := db.borrowings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrowings: %w", err)
	}

	var docs []borrowingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode borrowings: %w", err)
	}

	borrowings := make([]models.Borrowing, 0, len(docs))
	for _, doc := range docs {
		borrowings = append(borrowings, doc.toModel())
	}
	return borrowings, nil
}

// Close disconnects the client
func (db *MongoDB) Close() error {
	if db.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	err := db.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

func (d bookDoc) toModel() models.Book {
	return models.Book{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Author:    d.Author,
		ISBN:      d.ISBN,
		Quantity:  d.Quantity,
		Available: d.Available,
		AddedAt:   d.AddedDate.UTC(),
	}
}

func (d borrowingDoc) toModel() models.Borrowing {
	b := models.Borrowing{
		ID:         d.ID.Hex(),
		UserID:     d.UserID.Hex(),
		BookID:     d.BookID.Hex(),
		BorrowDate: d.BorrowDate.UTC(),
		DueDate:    d.DueDate.UTC(),
	}
	if d.ReturnDate != nil {
		t := d.ReturnDate.UTC()
		b.ReturnDate = &t
	}
	return b
}

// objectID parses a hex identifier. A malformed one cannot resolve, so it is reported as not found.
func objectID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s %s %w", kind, id, storage.ErrNotFound)
	}
	return oid, nil
}

func insertedID(res *mongo.InsertOneResult) string {
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(res.InsertedID)
}
