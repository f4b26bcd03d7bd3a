package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/db"
	"boipaben/server/internal/models"
)

// Buyer identifies who is completing a purchase, taken from the identity
// provider's token claims.
type Buyer struct {
	Email string
	Name  string
}

// ISaleService is the single entry point that marks books sold. Both payment
// paths (gateway confirmation and cash on delivery) land here, so the
// atomicity and idempotency guarantees are implemented once.
type ISaleService interface {
	// RecordSale atomically flips every book in the batch to sold, removes the
	// buyer's matching cart entries and persists the order. externalRef is the
	// gateway's session reference for card payments and empty for cash on
	// delivery; when present it makes the call idempotent. The returned bool
	// is true when this call found the work already done.
	RecordSale(ctx context.Context, bookIDs []primitive.ObjectID, buyer Buyer, method string, externalRef string, address string, now time.Time) (*models.Order, bool, error)

	// OrderByExternalRef looks up an order by its gateway reference, for
	// status checks after a timed-out confirmation.
	OrderByExternalRef(ctx context.Context, externalRef string) (*models.Order, error)

	// BuyerOrders lists a buyer's order history, newest first.
	BuyerOrders(ctx context.Context, buyerEmail string) ([]models.Order, error)
}

const (
	ordersCollection    = "orders"
	cartItemsCollection = "cart_items"
)

// saleService implements ISaleService.
type saleService struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewSaleService creates a new SaleService. The client is needed alongside
// the database handle because transactions start sessions on the client.
func NewSaleService(client *mongo.Client, database *mongo.Database) ISaleService {
	return &saleService{client: client, db: database}
}

func (s *saleService) RecordSale(ctx context.Context, bookIDs []primitive.ObjectID, buyer Buyer, method string, externalRef string, address string, now time.Time) (*models.Order, bool, error) {
	if len(bookIDs) == 0 {
		return nil, false, fmt.Errorf("empty book batch")
	}

	// Fast idempotency path: a retried or double-delivered gateway
	// confirmation finds its order and stops here.
	if externalRef != "" {
		if existing, err := s.OrderByExternalRef(ctx, externalRef); err == nil {
			return existing, true, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, classifyStoreError(err)
		}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, false, classifyStoreError(fmt.Errorf("failed to start session: %w", err))
	}
	defer session.EndSession(ctx)

	var order *models.Order
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		o, txnErr := s.recordSaleTxn(sc, bookIDs, buyer, method, externalRef, address, now)
		if txnErr != nil {
			return nil, txnErr
		}
		order = o
		return nil, nil
	})
	if err == nil {
		return order, false, nil
	}

	// The unique index on external_ref closes the race two concurrent
	// confirmations can still hit between the pre-check and the insert:
	// the loser's insert aborts with a duplicate key, and the order it
	// raced against is the answer.
	if externalRef != "" && db.IsDuplicateKeyError(err) {
		if existing, lookupErr := s.OrderByExternalRef(ctx, externalRef); lookupErr == nil {
			return existing, true, nil
		}
	}

	if _, ok := IsConflict(err); ok {
		// Two concurrent deliveries of the same confirmation can both miss
		// the pre-check; the loser then trips the availability guard instead
		// of the duplicate key, because its own batch is already sold. If an
		// order for this ref exists now, that sale is the one that beat us
		// and the conflict is not real.
		if externalRef != "" {
			if existing, lookupErr := s.OrderByExternalRef(ctx, externalRef); lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	return nil, false, classifyStoreError(err)
}

// recordSaleTxn runs the sale inside an open transaction: guard-check the
// batch, flip availability, insert the order, clear the cart. Any error
// aborts the whole transaction.
func (s *saleService) recordSaleTxn(sc mongo.SessionContext, bookIDs []primitive.ObjectID, buyer Buyer, method, externalRef, address string, now time.Time) (*models.Order, error) {
	books := s.db.Collection(booksCollection)

	// Load the batch to build the order snapshot and to name missing or
	// already-sold books in the conflict error.
	cursor, err := books.Find(sc, bson.M{"_id": bson.M{"$in": bookIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to load sale batch: %w", err)
	}
	var batch []models.Book
	if err = cursor.All(sc, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode sale batch: %w", err)
	}

	found := make(map[primitive.ObjectID]*models.Book, len(batch))
	for i := range batch {
		found[batch[i].ID] = &batch[i]
	}

	var unavailable []primitive.ObjectID
	for _, id := range bookIDs {
		b, ok := found[id]
		if !ok || b.Availability != models.AvailabilityAvailable {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &ConflictError{BookIDs: unavailable}
	}

	// Compare-and-set: the availability guard in the filter is what rejects
	// a concurrent sale that committed between our read and this write.
	result, err := books.UpdateMany(sc,
		bson.M{"_id": bson.M{"$in": bookIDs}, "availability": models.AvailabilityAvailable},
		bson.M{"$set": bson.M{
			"availability": models.AvailabilitySold,
			"sold_at":      now,
			"updated_at":   now,
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark books sold: %w", err)
	}
	if result.ModifiedCount != int64(len(bookIDs)) {
		// Lost the race; aborting rolls back the partial flip.
		return nil, &ConflictError{BookIDs: bookIDs}
	}

	order := &models.Order{
		ID:         primitive.NewObjectID(),
		BuyerEmail: buyer.Email,
		BuyerName:  buyer.Name,
		Method:     method,
		Address:    address,
		CreatedAt:  now,
	}
	if externalRef != "" {
		order.ExternalRef = externalRef
	}
	for _, id := range bookIDs {
		b := found[id]
		order.Items = append(order.Items, models.OrderItem{
			BookID:      b.ID,
			Title:       b.Title,
			Price:       b.Price,
			ShippingFee: b.ShippingFee,
			SellerEmail: b.SellerEmail,
		})
		order.Amount += b.Price + b.ShippingFee
	}

	if _, err = s.db.Collection(ordersCollection).InsertOne(sc, order); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if _, err = s.db.Collection(cartItemsCollection).DeleteMany(sc, bson.M{
		"buyer_email": buyer.Email,
		"book_id":     bson.M{"$in": bookIDs},
	}); err != nil {
		return nil, fmt.Errorf("failed to clear cart entries: %w", err)
	}

	return order, nil
}

func (s *saleService) OrderByExternalRef(ctx context.Context, externalRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"external_ref": externalRef}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding order by ref %s: %w", externalRef, err)
	}
	return &order, nil
}

func (s *saleService) BuyerOrders(ctx context.Context, buyerEmail string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(ordersCollection).Find(ctx, bson.M{"buyer_email": buyerEmail}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for %s: %w", buyerEmail, err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// classifyStoreError folds store failures into the service taxonomy:
// transient ones (retryable with the same external ref) become
// ErrTransientStore, everything else is logged in full and wrapped.
func classifyStoreError(err error) error {
	if db.IsTransientTxnError(err) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	log.Printf("Persistent store failure in sale recorder: %v", err)
	return fmt.Errorf("sale could not be recorded: %w", err)
}
