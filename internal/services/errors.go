package services

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel errors shared across services. Handlers map these onto HTTP
// statuses; anything not in this taxonomy is treated as an internal failure,
// logged with detail and surfaced generically.
var (
	// ErrNotFound: the requested document does not exist (or is not visible
	// to the caller, which the API treats the same way).
	ErrNotFound = errors.New("not found")

	// ErrNotOwner: the caller does not own the document they tried to modify.
	ErrNotOwner = errors.New("not the owner")

	// ErrSoldBookImmutable: sold books preserve transaction history and can
	// be neither edited nor deleted, by anyone.
	ErrSoldBookImmutable = errors.New("cannot modify a sold book")

	// ErrTransientStore: the store was temporarily unreachable or the
	// transaction aborted on contention. Callers may retry the whole call
	// with the same external reference.
	ErrTransientStore = errors.New("transient store failure")

	// ErrAlreadyInCart: the buyer already holds this book in their cart.
	ErrAlreadyInCart = errors.New("book already in cart")

	// ErrAlreadyReported: the reporter has already flagged this book.
	ErrAlreadyReported = errors.New("book already reported by this user")
)

// ConflictError reports which books in a sale batch could not be sold, either
// because a concurrent buyer got there first or because they do not exist.
// The whole batch is rejected; nothing was committed.
type ConflictError struct {
	BookIDs []primitive.ObjectID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.BookIDs))
	for i, id := range e.BookIDs {
		ids[i] = id.Hex()
	}
	return fmt.Sprintf("books no longer available: %s", strings.Join(ids, ", "))
}

// IsConflict reports whether err is a sale conflict and returns it if so.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
