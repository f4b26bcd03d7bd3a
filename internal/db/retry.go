package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// RetryableError decides whether a failed attempt should be retried.
type RetryableError func(err error) bool

const DefaultMaxRetries = 3

// Try executes an operation, retrying duplicate-key failures up to
// DefaultMaxRetries times.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsDuplicateKeyError)
}

// WithRetries executes an operation up to 1+maxRetries times, retrying only
// when retryable reports the error as transient. A short incremental backoff
// is applied between attempts.
func WithRetries(op Operation, maxRetries int, retryable RetryableError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		if !retryable(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsDuplicateKeyError reports whether a MongoDB error is a duplicate key
// violation (code 11000), either from a single write or a bulk write.
func IsDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}

// IsTransientTxnError reports whether a transaction failed in a way the driver
// marks as safe to rerun from the top (write conflicts, primary stepdowns).
func IsTransientTxnError(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.HasErrorLabel("TransientTransactionError") || ce.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}
