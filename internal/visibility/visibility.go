// Package visibility decides whether a book appears in a listing for a given
// viewer. The decision exists in two forms that must stay in agreement: a pure
// predicate over a loaded document (IsVisible) and a Mongo filter fragment
// that selects the same set store-side (Filter). Both compute from
// availability and sold_at; the hidden_from_public flag the sweep maintains is
// an index hint, never an input here.
package visibility

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"boipaben/server/internal/models"
)

// Window is how long a sold book remains publicly visible after its sale,
// so recent buyers and browsing users see it marked "sold" rather than have
// it vanish mid-session. A sold book whose sold_at is exactly Window old is
// already out of the window.
const Window = 12 * time.Hour

type contextKind int

const (
	kindPublicAnonymous contextKind = iota
	kindPublicAuthenticated
	kindOwnerView
)

// Context is the viewer's standpoint for one request. The zero value is the
// anonymous public view.
type Context struct {
	kind  contextKind
	email string
}

// PublicAnonymous is the view of a signed-out visitor.
func PublicAnonymous() Context {
	return Context{kind: kindPublicAnonymous}
}

// PublicAuthenticated is the view of a signed-in user browsing the storefront.
// It sees exactly what the anonymous view sees; the email only identifies the
// viewer for auditing callers.
func PublicAuthenticated(email string) Context {
	return Context{kind: kindPublicAuthenticated, email: email}
}

// OwnerView is a seller looking at their own inventory. The view is scoped
// to books whose seller_email matches and shows all of them regardless of
// sale state; other sellers' books are not part of this view at all. Callers
// presenting shared pages to a signed-in user want PublicAuthenticated, not
// this.
func OwnerView(email string) Context {
	return Context{kind: kindOwnerView, email: email}
}

// IsOwner reports whether this context is an owner view.
func (c Context) IsOwner() bool { return c.kind == kindOwnerView }

// Email returns the viewer's email, empty for the anonymous view.
func (c Context) Email() string { return c.email }

// IsVisible reports whether the book appears in listings for this viewer at
// the given instant. now is always supplied by the caller; the policy never
// reads the wall clock.
func IsVisible(b *models.Book, vc Context, now time.Time) bool {
	if vc.kind == kindOwnerView {
		// The inventory view: every owned book regardless of sale state,
		// nothing owned by anyone else. Mirrors Filter's seller_email-only
		// clause for this context.
		return b.SellerEmail == vc.email
	}
	if b.Availability == models.AvailabilityAvailable {
		return true
	}
	if b.Availability != models.AvailabilitySold {
		return false
	}
	if b.SoldAt == nil {
		// Sold without a timestamp violates the write-path invariant; fail
		// closed rather than leave a stale sold book public forever.
		return false
	}
	return now.Sub(*b.SoldAt) < Window
}

// Filter returns the Mongo filter selecting exactly the books IsVisible
// accepts for this viewer at this instant, so list queries need no
// application-side post-filter.
func Filter(vc Context, now time.Time) bson.M {
	if vc.kind == kindOwnerView {
		// No availability constraint at all for the owner's own books.
		return bson.M{"seller_email": vc.email}
	}
	// $gt excludes the exact boundary and, because comparisons against a
	// missing or null sold_at are false, also excludes sold books with no
	// timestamp, mirroring IsVisible's fail-closed branch.
	return bson.M{"$or": bson.A{
		bson.M{"availability": models.AvailabilityAvailable},
		bson.M{
			"availability": models.AvailabilitySold,
			"sold_at":      bson.M{"$gt": now.Add(-Window)},
		},
	}}
}

// SweepFilter selects the books an hidden-flag sweep at the given instant
// should mark: sold, out of the window, and not yet flagged. It is the
// set-complement companion of Filter's sold branch; the strict $lt keeps a
// book sold exactly Window ago out of this sweep until the next run, while
// Filter's strict $gt already hides it from readers.
func SweepFilter(now time.Time) bson.M {
	return bson.M{
		"availability":       models.AvailabilitySold,
		"sold_at":            bson.M{"$lt": now.Add(-Window)},
		"hidden_from_public": bson.M{"$ne": true},
	}
}
