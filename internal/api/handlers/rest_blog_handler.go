package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/models"
	"boipaben/server/internal/services"
)

// RestBlogHandler handles REST requests for the community blog.
type RestBlogHandler struct {
	blogService services.IBlogService
}

// NewRestBlogHandler creates a new RestBlogHandler.
func NewRestBlogHandler(blogService services.IBlogService) *RestBlogHandler {
	return &RestBlogHandler{blogService: blogService}
}

func postIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// List handles GET /v1/blog
func (h *RestBlogHandler) List(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)

	posts, err := h.blogService.ListPosts(c.Request.Context(), limit, skip)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": posts})
}

// Get handles GET /v1/blog/:id
func (h *RestBlogHandler) Get(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	post, err := h.blogService.GetPost(c.Request.Context(), postID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": post})
}

type createPostRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	ImageURL string `json:"image_url"`
}

// Create handles POST /v1/blog (authenticated)
func (h *RestBlogHandler) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.blogService.CreatePost(c.Request.Context(), &models.BlogPost{
		Title:       req.Title,
		Content:     req.Content,
		ImageURL:    req.ImageURL,
		AuthorEmail: middleware.UserEmail(c),
		AuthorName:  middleware.UserName(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": post})
}

// Update handles PUT /v1/blog/:id (authenticated)
func (h *RestBlogHandler) Update(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.blogService.UpdatePost(c.Request.Context(), postID, middleware.UserEmail(c), updates)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": post})
}

// Delete handles DELETE /v1/blog/:id (authenticated)
func (h *RestBlogHandler) Delete(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	if err := h.blogService.DeletePost(c.Request.Context(), postID, middleware.UserEmail(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "deleted"})
}

type reactRequest struct {
	Reaction string `json:"reaction" binding:"required,oneof=like dislike"`
}

// React handles POST /v1/blog/:id/react (authenticated)
func (h *RestBlogHandler) React(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.blogService.React(c.Request.Context(), postID, middleware.UserEmail(c), req.Reaction)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": post})
}

type addCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// AddComment handles POST /v1/blog/:id/comments (authenticated)
func (h *RestBlogHandler) AddComment(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.blogService.AddComment(c.Request.Context(), &models.BlogComment{
		PostID:      postID,
		AuthorEmail: middleware.UserEmail(c),
		AuthorName:  middleware.UserName(c),
		Content:     req.Content,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": comment})
}

// Comments handles GET /v1/blog/:id/comments
func (h *RestBlogHandler) Comments(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	comments, err := h.blogService.Comments(c.Request.Context(), postID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": comments})
}
