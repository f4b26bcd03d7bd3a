package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"boipaben/server/internal/visibility"
)

// ICleanupService maintains the hidden_from_public flag on long-sold books.
// The flag is a read-path optimization only: listings recompute visibility
// from sold_at, so a missed sweep costs query work, never correctness.
type ICleanupService interface {
	// Sweep flags every sold book whose visibility window elapsed before now
	// and returns how many were updated.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// cleanupService implements ICleanupService.
type cleanupService struct {
	db *mongo.Database
}

// NewCleanupService creates a new CleanupService.
func NewCleanupService(database *mongo.Database) ICleanupService {
	return &cleanupService{db: database}
}

// Sweep is one bulk update, no per-record transactions: the flag is derived
// state and the selection filter itself guarantees it is only ever set on
// sold books, whatever interleaves with the update.
func (s *cleanupService) Sweep(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.Collection(booksCollection).UpdateMany(ctx,
		visibility.SweepFilter(now),
		bson.M{"$set": bson.M{"hidden_from_public": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("hidden-flag sweep failed: %w", err)
	}
	return result.ModifiedCount, nil
}
