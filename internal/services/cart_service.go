package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/db"
	"boipaben/server/internal/models"
	"boipaben/server/internal/visibility"
)

// ICartService manages a buyer's cart. Holding a book in a cart reserves
// nothing; the sale recorder's availability guard is the only arbiter, so the
// visibility check at add time is a courtesy, not a lock.
type ICartService interface {
	Add(ctx context.Context, bookID primitive.ObjectID, buyerEmail string, now time.Time) (*models.CartItem, error)
	Items(ctx context.Context, buyerEmail string) ([]models.CartItem, error)
	Remove(ctx context.Context, itemID primitive.ObjectID, buyerEmail string) error
}

// cartService implements ICartService.
type cartService struct {
	db *mongo.Database
}

// NewCartService creates a new CartService.
func NewCartService(database *mongo.Database) ICartService {
	return &cartService{db: database}
}

// Add puts one copy of a book in the buyer's cart. The book must be publicly
// visible and still available; sellers cannot cart their own listings.
func (s *cartService) Add(ctx context.Context, bookID primitive.ObjectID, buyerEmail string, now time.Time) (*models.CartItem, error) {
	filter := visibility.Filter(visibility.PublicAuthenticated(buyerEmail), now)
	filter["_id"] = bookID
	filter["availability"] = models.AvailabilityAvailable

	var book models.Book
	err := s.db.Collection(booksCollection).FindOne(ctx, filter).Decode(&book)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding book %s for cart: %w", bookID.Hex(), err)
	}
	if book.SellerEmail == buyerEmail {
		return nil, fmt.Errorf("cannot add your own listing to the cart")
	}

	item := &models.CartItem{
		ID:          primitive.NewObjectID(),
		BookID:      book.ID,
		BuyerEmail:  buyerEmail,
		Title:       book.Title,
		Author:      book.Author,
		Price:       book.Price,
		ShippingFee: book.ShippingFee,
		CoverURL:    book.CoverURL,
		SellerEmail: book.SellerEmail,
		AddedAt:     now,
	}

	if _, err := s.db.Collection(cartItemsCollection).InsertOne(ctx, item); err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyInCart
		}
		return nil, fmt.Errorf("failed to insert cart item for %s: %w", buyerEmail, err)
	}
	return item, nil
}

func (s *cartService) Items(ctx context.Context, buyerEmail string) ([]models.CartItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: -1}})
	cursor, err := s.db.Collection(cartItemsCollection).Find(ctx, bson.M{"buyer_email": buyerEmail}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart for %s: %w", buyerEmail, err)
	}
	defer cursor.Close(ctx)

	var items []models.CartItem
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return items, nil
}

func (s *cartService) Remove(ctx context.Context, itemID primitive.ObjectID, buyerEmail string) error {
	result, err := s.db.Collection(cartItemsCollection).DeleteOne(ctx, bson.M{
		"_id":         itemID,
		"buyer_email": buyerEmail,
	})
	if err != nil {
		return fmt.Errorf("db error removing cart item %s: %w", itemID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
