package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Availability states for a book. A book transitions available -> sold exactly
// once, through the sale recorder; there is no way back.
const (
	AvailabilityAvailable = "available"
	AvailabilitySold      = "sold"
)

// Book is a sellable used-book listing.
//
// availability, sold_at and hidden_from_public are written only by the sale
// recorder and the cleanup sweep respectively. sold_at is set if and only if
// the book is sold. hidden_from_public is a derived flag the sweep maintains
// for sold books whose visibility window has elapsed; it may lag reality by up
// to one sweep interval and every read path recomputes from sold_at instead
// of trusting it.
type Book struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Author      string             `bson:"author" json:"author"`
	Category    string             `bson:"category" json:"category"`
	Condition   string             `bson:"condition" json:"condition"` // e.g. "like_new", "good", "acceptable"
	Description string             `bson:"description" json:"description"`
	Price       float64            `bson:"price" json:"price"`
	ShippingFee float64            `bson:"shipping_fee" json:"shipping_fee"`
	CoverURL    string             `bson:"cover_url,omitempty" json:"cover_url,omitempty"`

	SellerEmail string `bson:"seller_email" json:"seller_email"`
	SellerName  string `bson:"seller_name" json:"seller_name"`
	City        string `bson:"city,omitempty" json:"city,omitempty"`
	Phone       string `bson:"phone,omitempty" json:"phone,omitempty"`

	Availability     string     `bson:"availability" json:"availability"`
	SoldAt           *time.Time `bson:"sold_at,omitempty" json:"sold_at,omitempty"`
	HiddenFromPublic bool       `bson:"hidden_from_public" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
