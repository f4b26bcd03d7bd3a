package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/db"
	"boipaben/server/internal/models"
)

// IReportService handles listing abuse reports.
type IReportService interface {
	Report(ctx context.Context, report *models.Report) (*models.Report, error)
	ListForBook(ctx context.Context, bookID primitive.ObjectID) ([]models.Report, error)
	ListAll(ctx context.Context, limit, skip int64) ([]models.Report, error)
}

const reportsCollection = "reports"

type reportService struct {
	db *mongo.Database
}

// NewReportService creates a new ReportService.
func NewReportService(database *mongo.Database) IReportService {
	return &reportService{db: database}
}

// Report files a report against a listing. One report per (reporter, book);
// the unique index turns a repeat into ErrAlreadyReported.
func (s *reportService) Report(ctx context.Context, report *models.Report) (*models.Report, error) {
	var book models.Book
	err := s.db.Collection(booksCollection).FindOne(ctx, bson.M{"_id": report.BookID}).Decode(&book)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error checking reported book %s: %w", report.BookID.Hex(), err)
	}

	report.ID = primitive.NewObjectID()
	report.BookTitle = book.Title
	report.CreatedAt = time.Now().UTC()

	if _, err := s.db.Collection(reportsCollection).InsertOne(ctx, report); err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyReported
		}
		return nil, fmt.Errorf("failed to insert report for book %s: %w", report.BookID.Hex(), err)
	}
	return report, nil
}

func (s *reportService) ListForBook(ctx context.Context, bookID primitive.ObjectID) ([]models.Report, error) {
	return s.list(ctx, bson.M{"book_id": bookID}, 0, 0)
}

func (s *reportService) ListAll(ctx context.Context, limit, skip int64) ([]models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.list(ctx, bson.M{}, limit, skip)
}

func (s *reportService) list(ctx context.Context, filter bson.M, limit, skip int64) ([]models.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit).SetSkip(skip)
	}
	cursor, err := s.db.Collection(reportsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []models.Report
	if err = cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return reports, nil
}
