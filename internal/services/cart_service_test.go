package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/db"
	"boipaben/server/internal/models"
	"boipaben/server/internal/utils"
)

func setupCartService(t *testing.T) (ICartService, *mongo.Database) {
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(utils.GetTestMongoURI()))
	require.NoError(t, err)

	database := client.Database("boipaben_test_cart")
	for _, collection := range []string{booksCollection, cartItemsCollection, "orders", "reports"} {
		_ = database.Collection(collection).Drop(ctx)
	}
	require.NoError(t, db.EnsureIndexes(ctx, database))

	return NewCartService(database), database
}

func TestAddToCartSnapshotsTheBook(t *testing.T) {
	svc, database := setupCartService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	book := seedBook(t, database, models.Book{
		Title: "Deshe Bideshe", Author: "Mujtaba Ali", Price: 150, ShippingFee: 30,
		SellerEmail: "seller@example.com",
	})

	item, err := svc.Add(ctx, book.ID, "buyer@example.com", now)
	require.NoError(t, err)
	assert.Equal(t, book.ID, item.BookID)
	assert.Equal(t, "Deshe Bideshe", item.Title)
	assert.Equal(t, float64(150), item.Price)
	assert.Equal(t, "seller@example.com", item.SellerEmail)
}

func TestAddToCartRejections(t *testing.T) {
	svc, database := setupCartService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	book := seedBook(t, database, models.Book{Title: "Wanted", SellerEmail: "seller@example.com"})
	sold := seedBook(t, database, models.Book{
		Title: "Just Sold", SellerEmail: "seller@example.com",
		Availability: models.AvailabilitySold, SoldAt: soldAgo(now, time.Hour),
	})

	t.Run("duplicate add", func(t *testing.T) {
		_, err := svc.Add(ctx, book.ID, "buyer@example.com", now)
		require.NoError(t, err)
		_, err = svc.Add(ctx, book.ID, "buyer@example.com", now)
		assert.ErrorIs(t, err, ErrAlreadyInCart)
	})

	t.Run("same book, different buyer is fine", func(t *testing.T) {
		_, err := svc.Add(ctx, book.ID, "other@example.com", now)
		require.NoError(t, err)
	})

	t.Run("sold book", func(t *testing.T) {
		// Still publicly visible, but no longer available to buy.
		_, err := svc.Add(ctx, sold.ID, "buyer@example.com", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("own listing", func(t *testing.T) {
		_, err := svc.Add(ctx, book.ID, "seller@example.com", now)
		assert.Error(t, err)
	})

	t.Run("unknown book", func(t *testing.T) {
		_, err := svc.Add(ctx, primitive.NewObjectID(), "buyer@example.com", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCartItemsAndRemoveAreBuyerScoped(t *testing.T) {
	svc, database := setupCartService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := seedBook(t, database, models.Book{Title: "First Pick", SellerEmail: "s@x.com"})
	second := seedBook(t, database, models.Book{Title: "Second Pick", SellerEmail: "s@x.com"})

	_, err := svc.Add(ctx, first.ID, "buyer@example.com", now.Add(-time.Minute))
	require.NoError(t, err)
	added, err := svc.Add(ctx, second.ID, "buyer@example.com", now)
	require.NoError(t, err)

	items, err := svc.Items(ctx, "buyer@example.com")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Second Pick", items[0].Title, "most recently added first")

	// Another buyer cannot remove someone else's cart entry.
	err = svc.Remove(ctx, added.ID, "mallory@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Remove(ctx, added.ID, "buyer@example.com"))
	items, err = svc.Items(ctx, "buyer@example.com")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "First Pick", items[0].Title)
}
