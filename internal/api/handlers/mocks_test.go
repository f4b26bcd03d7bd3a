package handlers_test

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/models"
	"boipaben/server/internal/payment"
	"boipaben/server/internal/services"
	"boipaben/server/internal/visibility"
)

// --- Mocks ---

// MockBookService
type MockBookService struct {
	mock.Mock
}

func (m *MockBookService) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	args := m.Called(ctx, book)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockBookService) GetByID(ctx context.Context, bookID primitive.ObjectID, vc visibility.Context, now time.Time) (*models.Book, error) {
	args := m.Called(ctx, bookID, vc, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockBookService) ListVisible(ctx context.Context, vc visibility.Context, extra bson.M, limit int64, now time.Time) ([]models.Book, error) {
	args := m.Called(ctx, vc, extra, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) Latest(ctx context.Context, vc visibility.Context, limit int64, now time.Time) ([]models.Book, error) {
	args := m.Called(ctx, vc, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) ByCategory(ctx context.Context, vc visibility.Context, category string, limit int64, now time.Time) ([]models.Book, error) {
	args := m.Called(ctx, vc, category, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) Search(ctx context.Context, vc visibility.Context, query string, limit int64, now time.Time) ([]models.Book, error) {
	args := m.Called(ctx, vc, query, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) Similar(ctx context.Context, bookID primitive.ObjectID, limit int64, now time.Time) ([]models.Book, error) {
	args := m.Called(ctx, bookID, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) SellerBooks(ctx context.Context, sellerEmail string) ([]models.Book, error) {
	args := m.Called(ctx, sellerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockBookService) Update(ctx context.Context, bookID primitive.ObjectID, sellerEmail string, updates map[string]interface{}) (*models.Book, error) {
	args := m.Called(ctx, bookID, sellerEmail, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockBookService) Delete(ctx context.Context, bookID primitive.ObjectID, sellerEmail string) error {
	args := m.Called(ctx, bookID, sellerEmail)
	return args.Error(0)
}

func (m *MockBookService) SetCoverImage(ctx context.Context, bookID primitive.ObjectID, coverURL string) error {
	args := m.Called(ctx, bookID, coverURL)
	return args.Error(0)
}

// MockSaleService
type MockSaleService struct {
	mock.Mock
}

func (m *MockSaleService) RecordSale(ctx context.Context, bookIDs []primitive.ObjectID, buyer services.Buyer, method string, externalRef string, address string, now time.Time) (*models.Order, bool, error) {
	args := m.Called(ctx, bookIDs, buyer, method, externalRef, address, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Order), args.Bool(1), args.Error(2)
}

func (m *MockSaleService) OrderByExternalRef(ctx context.Context, externalRef string) (*models.Order, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockSaleService) BuyerOrders(ctx context.Context, buyerEmail string) ([]models.Order, error) {
	args := m.Called(ctx, buyerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

// MockGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req payment.CreateSessionReq) (*payment.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockGateway) VerifyWebhookSignature(sigHeader string, rawBody []byte) error {
	args := m.Called(sigHeader, rawBody)
	return args.Error(0)
}

// MockCacheStore
type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockCoverStorage
type MockCoverStorage struct {
	mock.Mock
}

func (m *MockCoverStorage) GeneratePresignedPutURL(ctx context.Context, bookID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, bookID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockCoverStorage) PublicURL(objectKey string) string {
	args := m.Called(objectKey)
	return args.String(0)
}

func (m *MockCoverStorage) Client() *s3.Client {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*s3.Client)
}

// MockAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}
