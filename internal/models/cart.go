package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem holds one book in a buyer's cart. Book details are denormalized so
// the cart page renders without a join; the sale recorder re-reads the book
// itself before committing, so staleness here is cosmetic only.
type CartItem struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BookID     primitive.ObjectID `bson:"book_id" json:"book_id"`
	BuyerEmail string             `bson:"buyer_email" json:"buyer_email"`

	Title       string  `bson:"title" json:"title"`
	Author      string  `bson:"author" json:"author"`
	Price       float64 `bson:"price" json:"price"`
	ShippingFee float64 `bson:"shipping_fee" json:"shipping_fee"`
	CoverURL    string  `bson:"cover_url,omitempty" json:"cover_url,omitempty"`
	SellerEmail string  `bson:"seller_email" json:"seller_email"`

	AddedAt time.Time `bson:"added_at" json:"added_at"`
}
