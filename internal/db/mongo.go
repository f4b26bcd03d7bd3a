package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect initializes and returns a MongoDB client and database instance.
func Connect(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, client.Database(dbName), nil
}

// Disconnect closes the MongoDB client connection.
func Disconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	return nil
}

// EnsureIndexes creates the indexes the write paths rely on. Safe to call on
// every startup; Mongo treats existing identical indexes as a no-op.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	// Orders are deduplicated by the payment gateway's session reference. The
	// partial filter keeps cash orders (no external ref) out of the unique index.
	_, err := database.Collection("orders").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "external_ref", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"external_ref": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return fmt.Errorf("failed to create orders.external_ref index: %w", err)
	}

	// One cart entry per buyer per book.
	_, err = database.Collection("cart_items").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "buyer_email", Value: 1}, {Key: "book_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart_items index: %w", err)
	}

	// One report per reporter per book.
	_, err = database.Collection("reports").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "reporter_email", Value: 1}, {Key: "book_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create reports index: %w", err)
	}

	// Supports the sweep's sold_at range scan and the public listing filter.
	_, err = database.Collection("books").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "availability", Value: 1}, {Key: "sold_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create books availability index: %w", err)
	}

	log.Println("MongoDB indexes ensured.")
	return nil
}
