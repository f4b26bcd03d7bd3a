package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipaben/server/internal/models"
)

// IBlogService defines the community blog operations.
type IBlogService interface {
	CreatePost(ctx context.Context, post *models.BlogPost) (*models.BlogPost, error)
	ListPosts(ctx context.Context, limit, skip int64) ([]models.BlogPost, error)
	GetPost(ctx context.Context, postID primitive.ObjectID) (*models.BlogPost, error)
	UpdatePost(ctx context.Context, postID primitive.ObjectID, authorEmail string, updates map[string]interface{}) (*models.BlogPost, error)
	DeletePost(ctx context.Context, postID primitive.ObjectID, authorEmail string) error
	React(ctx context.Context, postID primitive.ObjectID, userEmail, reaction string) (*models.BlogPost, error)
	AddComment(ctx context.Context, comment *models.BlogComment) (*models.BlogComment, error)
	Comments(ctx context.Context, postID primitive.ObjectID) ([]models.BlogComment, error)
}

const (
	blogPostsCollection    = "blog_posts"
	blogCommentsCollection = "blog_comments"
)

// blogService implements IBlogService.
type blogService struct {
	db *mongo.Database
}

// NewBlogService creates a new BlogService.
func NewBlogService(database *mongo.Database) IBlogService {
	return &blogService{db: database}
}

func (s *blogService) CreatePost(ctx context.Context, post *models.BlogPost) (*models.BlogPost, error) {
	now := time.Now().UTC()
	post.ID = primitive.NewObjectID()
	post.Reactions = map[string]string{}
	post.Likes = 0
	post.Dislikes = 0
	post.CreatedAt = now
	post.UpdatedAt = now

	if _, err := s.db.Collection(blogPostsCollection).InsertOne(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to insert blog post by %s: %w", post.AuthorEmail, err)
	}
	return post, nil
}

func (s *blogService) ListPosts(ctx context.Context, limit, skip int64) ([]models.BlogPost, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	opts := options.Find().
		SetLimit(limit).
		SetSkip(skip).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.db.Collection(blogPostsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list blog posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.BlogPost
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode blog posts: %w", err)
	}
	return posts, nil
}

func (s *blogService) GetPost(ctx context.Context, postID primitive.ObjectID) (*models.BlogPost, error) {
	var post models.BlogPost
	err := s.db.Collection(blogPostsCollection).FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding blog post %s: %w", postID.Hex(), err)
	}
	return &post, nil
}

// UpdatePost edits a post's content fields. Author only.
func (s *blogService) UpdatePost(ctx context.Context, postID primitive.ObjectID, authorEmail string, updates map[string]interface{}) (*models.BlogPost, error) {
	allowed := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "content", "image_url":
			allowed[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated", key)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowed["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.BlogPost
	err := s.db.Collection(blogPostsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": postID, "author_email": authorEmail},
		bson.M{"$set": allowed}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update blog post %s: %w", postID.Hex(), err)
	}
	return nil, s.diagnosePostFailure(ctx, postID, authorEmail)
}

func (s *blogService) DeletePost(ctx context.Context, postID primitive.ObjectID, authorEmail string) error {
	result, err := s.db.Collection(blogPostsCollection).DeleteOne(ctx, bson.M{
		"_id":          postID,
		"author_email": authorEmail,
	})
	if err != nil {
		return fmt.Errorf("db error deleting blog post %s: %w", postID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return s.diagnosePostFailure(ctx, postID, authorEmail)
	}
	// Comments on a deleted post go with it.
	if _, err := s.db.Collection(blogCommentsCollection).DeleteMany(ctx, bson.M{"post_id": postID}); err != nil {
		return fmt.Errorf("failed to delete comments for post %s: %w", postID.Hex(), err)
	}
	return nil
}

func (s *blogService) diagnosePostFailure(ctx context.Context, postID primitive.ObjectID, authorEmail string) error {
	var post models.BlogPost
	err := s.db.Collection(blogPostsCollection).FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking blog post %s: %w", postID.Hex(), err)
	}
	if post.AuthorEmail != authorEmail {
		return ErrNotOwner
	}
	return fmt.Errorf("blog post %s cannot be modified (condition not met)", postID.Hex())
}

// React records a like or dislike. One reaction per user; repeating the same
// reaction is a no-op, the other value flips it. Counters are recomputed from
// the reactions map so they cannot drift.
func (s *blogService) React(ctx context.Context, postID primitive.ObjectID, userEmail, reaction string) (*models.BlogPost, error) {
	if reaction != models.ReactionLike && reaction != models.ReactionDislike {
		return nil, fmt.Errorf("unknown reaction %q", reaction)
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Reactions == nil {
		post.Reactions = map[string]string{}
	}
	post.Reactions[userEmail] = reaction

	likes, dislikes := 0, 0
	for _, r := range post.Reactions {
		switch r {
		case models.ReactionLike:
			likes++
		case models.ReactionDislike:
			dislikes++
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.BlogPost
	err = s.db.Collection(blogPostsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": postID},
		bson.M{"$set": bson.M{
			"reactions": post.Reactions,
			"likes":     likes,
			"dislikes":  dislikes,
		}}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to record reaction on post %s: %w", postID.Hex(), err)
	}
	return &updated, nil
}

func (s *blogService) AddComment(ctx context.Context, comment *models.BlogComment) (*models.BlogComment, error) {
	// The post must exist; comments on deleted posts are rejected.
	if _, err := s.GetPost(ctx, comment.PostID); err != nil {
		return nil, err
	}

	comment.ID = primitive.NewObjectID()
	comment.CreatedAt = time.Now().UTC()
	if _, err := s.db.Collection(blogCommentsCollection).InsertOne(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to insert comment on post %s: %w", comment.PostID.Hex(), err)
	}
	return comment, nil
}

func (s *blogService) Comments(ctx context.Context, postID primitive.ObjectID) ([]models.BlogComment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(blogCommentsCollection).Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments for post %s: %w", postID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var comments []models.BlogComment
	if err = cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}
	return comments, nil
}
