package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"boipaben/server/internal/config"
	"boipaben/server/internal/tasks"
)

// --- Mocks ---

// MockEmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

// MockCleanupService
type MockCleanupService struct {
	mock.Mock
}

func (m *MockCleanupService) Sweep(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Tests ---

func TestHandleHiddenSweepTask_Success(t *testing.T) {
	mockCleanup := new(MockCleanupService)
	cfg := &config.Config{}
	p := tasks.NewTaskProcessor(cfg, nil, mockCleanup, nil, nil)

	mockCleanup.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(7), nil)

	err := p.HandleHiddenSweepTask(context.Background(), asynq.NewTask(tasks.TypeHiddenSweep, nil))

	assert.NoError(t, err)
	mockCleanup.AssertExpectations(t)
}

func TestHandleHiddenSweepTask_StoreFailureWaitsForNextRun(t *testing.T) {
	mockCleanup := new(MockCleanupService)
	cfg := &config.Config{}
	p := tasks.NewTaskProcessor(cfg, nil, mockCleanup, nil, nil)

	storeErr := errors.New("connection reset")
	mockCleanup.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), storeErr)

	err := p.HandleHiddenSweepTask(context.Background(), asynq.NewTask(tasks.TypeHiddenSweep, nil))

	assert.NoError(t, err, "a failed sweep is logged, not retried; the next scheduled run covers it")
	mockCleanup.AssertExpectations(t)
}

func TestHandleSaleNotificationTask_EmailsBuyerAndSellers(t *testing.T) {
	mockEmailSender := new(MockEmailSender)
	cfg := &config.Config{SmtpFromAddress: "noreply@boipaben.example.com"}
	p := tasks.NewTaskProcessor(cfg, mockEmailSender, nil, nil, nil)

	payloadBytes, _ := json.Marshal(tasks.SaleNotificationPayload{
		OrderID:    "665f1c0ffee5c0ffee5c0ffe",
		BuyerEmail: "buyer@example.com",
		BuyerName:  "Buyer",
		// Duplicate seller collapses to one notice.
		SellerEmails: []string{"alice@example.com", "alice@example.com", "bob@example.com"},
		Titles:       []string{"Book A", "Book B"},
		Amount:       240,
	})
	task := asynq.NewTask(tasks.TypeSaleNotification, payloadBytes)

	mockEmailSender.On("Send",
		mock.Anything,
		[]string{"buyer@example.com"},
		"Order Confirmed",
		mock.MatchedBy(func(rawMsg []byte) bool {
			msg := string(rawMsg)
			return strings.Contains(msg, "From: noreply@boipaben.example.com") &&
				strings.Contains(msg, "Book A, Book B") &&
				strings.Contains(msg, "240")
		}),
	).Return(nil).Once()

	for _, seller := range []string{"alice@example.com", "bob@example.com"} {
		mockEmailSender.On("Send",
			mock.Anything,
			[]string{seller},
			"Your Book Sold",
			mock.MatchedBy(func(rawMsg []byte) bool {
				return strings.Contains(string(rawMsg), "665f1c0ffee5c0ffee5c0ffe")
			}),
		).Return(nil).Once()
	}

	err := p.HandleSaleNotificationTask(context.Background(), task)

	assert.NoError(t, err)
	mockEmailSender.AssertExpectations(t)
}

func TestHandleSaleNotificationTask_BadPayloadSkipsRetry(t *testing.T) {
	mockEmailSender := new(MockEmailSender)
	p := tasks.NewTaskProcessor(&config.Config{}, mockEmailSender, nil, nil, nil)

	task := asynq.NewTask(tasks.TypeSaleNotification, []byte("not json"))
	err := p.HandleSaleNotificationTask(context.Background(), task)

	assert.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads never retry")
	mockEmailSender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleSaleNotificationTask_SenderFailurePropagates(t *testing.T) {
	mockEmailSender := new(MockEmailSender)
	cfg := &config.Config{SmtpFromAddress: "noreply@boipaben.example.com"}
	p := tasks.NewTaskProcessor(cfg, mockEmailSender, nil, nil, nil)

	payloadBytes, _ := json.Marshal(tasks.SaleNotificationPayload{
		OrderID:    "abc",
		BuyerEmail: "buyer@example.com",
		Titles:     []string{"Book"},
		Amount:     100,
	})
	task := asynq.NewTask(tasks.TypeSaleNotification, payloadBytes)

	smtpErr := fmt.Errorf("smtp error: relay refused")
	mockEmailSender.On("Send", mock.Anything, []string{"buyer@example.com"}, "Order Confirmed", mock.Anything).
		Return(smtpErr)

	err := p.HandleSaleNotificationTask(context.Background(), task)

	assert.ErrorIs(t, err, smtpErr)
}

func TestHandleCoverProcessTask_InvalidBookIDSkipsRetry(t *testing.T) {
	p := tasks.NewTaskProcessor(&config.Config{}, nil, nil, nil, nil)

	payloadBytes, _ := json.Marshal(tasks.CoverTaskPayload{
		S3Key:  "covers/xyz/upload.jpg",
		BookID: "not-an-object-id",
	})
	task := asynq.NewTask(tasks.TypeCoverProcess, payloadBytes)

	err := p.HandleCoverProcessTask(context.Background(), task)

	assert.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
