package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/cache"
	"boipaben/server/internal/config"
	"boipaben/server/internal/models"
	"boipaben/server/internal/visibility"
)

// IBookService defines the interface for book listing operations. Every
// public read funnels through the visibility filter; there is exactly one
// place the window comparison lives.
type IBookService interface {
	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	GetByID(ctx context.Context, bookID primitive.ObjectID, vc visibility.Context, now time.Time) (*models.Book, error)
	ListVisible(ctx context.Context, vc visibility.Context, extra bson.M, limit int64, now time.Time) ([]models.Book, error)
	Latest(ctx context.Context, vc visibility.Context, limit int64, now time.Time) ([]models.Book, error)
	ByCategory(ctx context.Context, vc visibility.Context, category string, limit int64, now time.Time) ([]models.Book, error)
	Search(ctx context.Context, vc visibility.Context, query string, limit int64, now time.Time) ([]models.Book, error)
	Similar(ctx context.Context, bookID primitive.ObjectID, limit int64, now time.Time) ([]models.Book, error)
	SellerBooks(ctx context.Context, sellerEmail string) ([]models.Book, error)
	Update(ctx context.Context, bookID primitive.ObjectID, sellerEmail string, updates map[string]interface{}) (*models.Book, error)
	Delete(ctx context.Context, bookID primitive.ObjectID, sellerEmail string) error
	SetCoverImage(ctx context.Context, bookID primitive.ObjectID, coverURL string) error
}

const booksCollection = "books"

// bookService implements IBookService.
type bookService struct {
	db    *mongo.Database
	cfg   *config.Config
	cache cache.Store
}

// NewBookService creates a new BookService. The cache may be nil; read paths
// then skip the latest-listing cache entirely.
func NewBookService(db *mongo.Database, cfg *config.Config, cacheStore cache.Store) IBookService {
	return &bookService{db: db, cfg: cfg, cache: cacheStore}
}

// Create inserts a new listing. Availability fields are forced to their
// initial state regardless of what the caller populated.
func (s *bookService) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	now := time.Now().UTC()
	book.ID = primitive.NewObjectID()
	book.Availability = models.AvailabilityAvailable
	book.SoldAt = nil
	book.HiddenFromPublic = false
	book.CreatedAt = now
	book.UpdatedAt = now

	if _, err := s.db.Collection(booksCollection).InsertOne(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to insert book %q for seller %s: %w", book.Title, book.SellerEmail, err)
	}
	return book, nil
}

// GetByID returns a single book if it is visible to the viewer.
func (s *bookService) GetByID(ctx context.Context, bookID primitive.ObjectID, vc visibility.Context, now time.Time) (*models.Book, error) {
	filter := visibility.Filter(vc, now)
	filter["_id"] = bookID

	var book models.Book
	err := s.db.Collection(booksCollection).FindOne(ctx, filter).Decode(&book)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding book %s: %w", bookID.Hex(), err)
	}
	return &book, nil
}

// ListVisible is the single query funnel for public listings: the visibility
// filter for the viewing context, merged with any caller-supplied criteria.
func (s *bookService) ListVisible(ctx context.Context, vc visibility.Context, extra bson.M, limit int64, now time.Time) ([]models.Book, error) {
	// $and keeps caller criteria from colliding with the visibility filter's
	// own $or clause.
	filter := visibility.Filter(vc, now)
	if len(extra) > 0 {
		filter = bson.M{"$and": bson.A{filter, extra}}
	}

	if limit <= 0 || limit > int64(s.cfg.ListingPageMax) {
		limit = int64(s.cfg.ListingPageMax)
	}
	opts := options.Find().
		SetLimit(limit).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.db.Collection(booksCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute book listing query: %w", err)
	}
	defer cursor.Close(ctx)

	var books []models.Book
	if err = cursor.All(ctx, &books); err != nil {
		return nil, fmt.Errorf("failed to decode book listing results: %w", err)
	}
	return books, nil
}

const latestCacheKey = "books:latest"

// Latest returns the newest visible listings. The anonymous view is served
// from the TTL cache when warm; authenticated and owner views always hit the
// store since their result sets can differ.
func (s *bookService) Latest(ctx context.Context, vc visibility.Context, limit int64, now time.Time) ([]models.Book, error) {
	cacheable := s.cache != nil && !vc.IsOwner() && vc.Email() == ""

	if cacheable {
		var cached []models.Book
		if err := s.cache.GetJSON(ctx, latestCacheKey, &cached); err == nil && int64(len(cached)) >= limit {
			return cached[:limit], nil
		}
	}

	books, err := s.ListVisible(ctx, vc, nil, limit, now)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetJSON(ctx, latestCacheKey, books, s.cfg.LatestCacheTTL); err != nil {
			log.Printf("Failed to cache latest books: %v", err)
		}
	}
	return books, nil
}

// ByCategory lists visible books in one category.
func (s *bookService) ByCategory(ctx context.Context, vc visibility.Context, category string, limit int64, now time.Time) ([]models.Book, error) {
	return s.ListVisible(ctx, vc, bson.M{"category": category}, limit, now)
}

// Search matches the query case-insensitively against title and author.
func (s *bookService) Search(ctx context.Context, vc visibility.Context, query string, limit int64, now time.Time) ([]models.Book, error) {
	// QuoteMeta keeps user input literal inside the Mongo regex.
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return s.ListVisible(ctx, vc, bson.M{"$or": bson.A{
		bson.M{"title": pattern},
		bson.M{"author": pattern},
	}}, limit, now)
}

// Similar lists visible books sharing the given book's category, excluding
// the book itself. The reference book is looked up without a visibility
// check: "more like this" works from a sold book's detail page too.
func (s *bookService) Similar(ctx context.Context, bookID primitive.ObjectID, limit int64, now time.Time) ([]models.Book, error) {
	var ref models.Book
	err := s.db.Collection(booksCollection).FindOne(ctx, bson.M{"_id": bookID}).Decode(&ref)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding reference book %s: %w", bookID.Hex(), err)
	}

	return s.ListVisible(ctx, visibility.PublicAnonymous(), bson.M{
		"category": ref.Category,
		"_id":      bson.M{"$ne": bookID},
	}, limit, now)
}

// SellerBooks returns the seller's complete inventory, sold or not. This is
// the dashboard view; the owner bypass means no window comparison applies.
func (s *bookService) SellerBooks(ctx context.Context, sellerEmail string) ([]models.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(booksCollection).Find(ctx, visibility.Filter(visibility.OwnerView(sellerEmail), time.Time{}), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list books for seller %s: %w", sellerEmail, err)
	}
	defer cursor.Close(ctx)

	var books []models.Book
	if err = cursor.All(ctx, &books); err != nil {
		return nil, fmt.Errorf("failed to decode seller books: %w", err)
	}
	return books, nil
}

// Update modifies mutable fields of an available book owned by the caller.
// Availability, sold_at and hidden_from_public are not updatable here under
// any circumstances; those fields belong to the sale recorder and the sweep.
func (s *bookService) Update(ctx context.Context, bookID primitive.ObjectID, sellerEmail string, updates map[string]interface{}) (*models.Book, error) {
	allowed := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "author", "category", "condition", "description", "price", "shipping_fee", "city", "phone":
			allowed[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated", key)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowed["updated_at"] = time.Now().UTC()

	filter := bson.M{
		"_id":          bookID,
		"seller_email": sellerEmail,
		"availability": models.AvailabilityAvailable,
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Book
	err := s.db.Collection(booksCollection).FindOneAndUpdate(ctx, filter, bson.M{"$set": allowed}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update book %s: %w", bookID.Hex(), err)
	}
	return nil, s.diagnoseMutationFailure(ctx, bookID, sellerEmail)
}

// Delete removes an available book owned by the caller. Sold books are kept
// forever; they are the durable half of the order history.
func (s *bookService) Delete(ctx context.Context, bookID primitive.ObjectID, sellerEmail string) error {
	filter := bson.M{
		"_id":          bookID,
		"seller_email": sellerEmail,
		"availability": models.AvailabilityAvailable,
	}
	result, err := s.db.Collection(booksCollection).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("db error deleting book %s: %w", bookID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return s.diagnoseMutationFailure(ctx, bookID, sellerEmail)
	}
	return nil
}

// diagnoseMutationFailure re-reads a book whose guarded mutation matched
// nothing and reports which precondition failed.
func (s *bookService) diagnoseMutationFailure(ctx context.Context, bookID primitive.ObjectID, sellerEmail string) error {
	var book models.Book
	err := s.db.Collection(booksCollection).FindOne(ctx, bson.M{"_id": bookID}).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking book %s: %w", bookID.Hex(), err)
	}
	if book.Availability == models.AvailabilitySold {
		return ErrSoldBookImmutable
	}
	if book.SellerEmail != sellerEmail {
		return ErrNotOwner
	}
	return fmt.Errorf("book %s cannot be modified (condition not met)", bookID.Hex())
}

// SetCoverImage stamps the processed cover URL onto a book. Called by the
// image task after normalization; sold books accept it too since the upload
// may race a sale harmlessly.
func (s *bookService) SetCoverImage(ctx context.Context, bookID primitive.ObjectID, coverURL string) error {
	result, err := s.db.Collection(booksCollection).UpdateOne(ctx,
		bson.M{"_id": bookID},
		bson.M{"$set": bson.M{"cover_url": coverURL, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error setting cover for book %s: %w", bookID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
