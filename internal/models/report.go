package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Report flags a book listing for moderation. A reporter can report a given
// book once; the unique index on (reporter_email, book_id) enforces it.
type Report struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BookID        primitive.ObjectID `bson:"book_id" json:"book_id"`
	BookTitle     string             `bson:"book_title" json:"book_title"`
	ReporterEmail string             `bson:"reporter_email" json:"reporter_email"`
	Reason        string             `bson:"reason" json:"reason"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
