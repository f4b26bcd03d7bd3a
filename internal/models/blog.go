package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reaction values for a blog post.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// BlogPost is a community blog entry.
type BlogPost struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Content     string             `bson:"content" json:"content"`
	ImageURL    string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	AuthorEmail string             `bson:"author_email" json:"author_email"`
	AuthorName  string             `bson:"author_name" json:"author_name"`

	// Reactions maps user email to ReactionLike / ReactionDislike. A user has
	// at most one reaction; reacting again with the other value flips it.
	Reactions map[string]string `bson:"reactions,omitempty" json:"-"`
	Likes     int               `bson:"likes" json:"likes"`
	Dislikes  int               `bson:"dislikes" json:"dislikes"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BlogComment is a comment on a blog post.
type BlogComment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PostID      primitive.ObjectID `bson:"post_id" json:"post_id"`
	AuthorEmail string             `bson:"author_email" json:"author_email"`
	AuthorName  string             `bson:"author_name" json:"author_name"`
	Content     string             `bson:"content" json:"content"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
