package db

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

// duplicateKeyError builds an error that IsDuplicateKeyError recognizes.
func duplicateKeyError(key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.collection dup key: { : %q }", key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return nil
	}

	err := WithRetries(operation, 3, IsDuplicateKeyError)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_FailureNonRetryable(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	operation := func() error {
		opCalled++
		return expectedErr
	}

	err := WithRetries(operation, 3, IsDuplicateKeyError)
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return duplicateKeyError("colliding-ref")
	}

	maxRetries := 3
	err := WithRetries(operation, maxRetries, IsDuplicateKeyError)

	if err == nil {
		t.Fatal("Expected a duplicate key error, got nil")
	}
	if !IsDuplicateKeyError(err) {
		t.Errorf("Expected a duplicate key error, got %T: %v", err, err)
	}

	expectedOpCalls := maxRetries + 1
	if opCalled != expectedOpCalls {
		t.Errorf("Expected operation to be called %d times, got %d", expectedOpCalls, opCalled)
	}
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	inserted := map[string]bool{"ref-1": true}
	refs := []string{"ref-1", "ref-1", "ref-2"}

	var opCalled int
	operation := func() error {
		ref := refs[opCalled]
		opCalled++
		if inserted[ref] {
			return duplicateKeyError(ref)
		}
		inserted[ref] = true
		return nil
	}

	err := WithRetries(operation, 3, IsDuplicateKeyError)
	if err != nil {
		t.Fatalf("Expected collision to resolve, got: %v", err)
	}
	if opCalled != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", opCalled)
	}
	if !inserted["ref-2"] {
		t.Error("Expected ref-2 to be inserted after retries")
	}
}

func TestIsTransientTxnError(t *testing.T) {
	transient := mongo.CommandError{Code: 112, Message: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	if !IsTransientTxnError(transient) {
		t.Error("Expected labeled command error to be transient")
	}
	if IsTransientTxnError(errors.New("plain error")) {
		t.Error("Expected plain error to be non-transient")
	}
	if IsTransientTxnError(duplicateKeyError("x")) {
		t.Error("Expected duplicate key error to be non-transient")
	}
}
