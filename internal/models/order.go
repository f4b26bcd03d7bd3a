package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment methods recorded on an order.
const (
	OrderMethodCard           = "card"
	OrderMethodCashOnDelivery = "cash_on_delivery"
)

// OrderItem is a snapshot of one sold book inside an order.
type OrderItem struct {
	BookID      primitive.ObjectID `bson:"book_id" json:"book_id"`
	Title       string             `bson:"title" json:"title"`
	Price       float64            `bson:"price" json:"price"`
	ShippingFee float64            `bson:"shipping_fee" json:"shipping_fee"`
	SellerEmail string             `bson:"seller_email" json:"seller_email"`
}

// Order is the persisted record of a completed sale. For card payments
// ExternalRef holds the gateway's checkout session reference and is covered by
// a unique partial index, which is what makes a double-delivered payment
// confirmation collapse into a single order.
type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BuyerEmail  string             `bson:"buyer_email" json:"buyer_email"`
	BuyerName   string             `bson:"buyer_name,omitempty" json:"buyer_name,omitempty"`
	Items       []OrderItem        `bson:"items" json:"items"`
	Amount      float64            `bson:"amount" json:"amount"`
	Method      string             `bson:"method" json:"method"`
	ExternalRef string             `bson:"external_ref,omitempty" json:"external_ref,omitempty"`
	Address     string             `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
