package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/models"
	"boipaben/server/internal/services"
	"boipaben/server/internal/storage"
	"boipaben/server/internal/tasks"
	"boipaben/server/internal/visibility"
)

// RestBookHandler handles REST requests for book listings.
type RestBookHandler struct {
	bookService  services.IBookService
	coverStorage storage.ICoverStorage
	taskClient   IAsynqClient
}

// NewRestBookHandler creates a new RestBookHandler.
func NewRestBookHandler(bookService services.IBookService, coverStorage storage.ICoverStorage, taskClient IAsynqClient) *RestBookHandler {
	return &RestBookHandler{
		bookService:  bookService,
		coverStorage: coverStorage,
		taskClient:   taskClient,
	}
}

func parseLimit(c *gin.Context, fallback int64) int64 {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", ""), 10, 64)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// ListLatest handles GET /v1/books
func (h *RestBookHandler) ListLatest(c *gin.Context) {
	books, err := h.bookService.Latest(c.Request.Context(), viewerContext(c), parseLimit(c, 20), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

// ListByCategory handles GET /v1/books/category/:category
func (h *RestBookHandler) ListByCategory(c *gin.Context) {
	books, err := h.bookService.ByCategory(c.Request.Context(), viewerContext(c), c.Param("category"), parseLimit(c, 50), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

// Search handles GET /v1/books/search?q=
func (h *RestBookHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}
	books, err := h.bookService.Search(c.Request.Context(), viewerContext(c), query, parseLimit(c, 50), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

// GetByID handles GET /v1/books/:id
func (h *RestBookHandler) GetByID(c *gin.Context) {
	bookID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	// A seller looking at their own listing sees it regardless of the
	// visibility window; try the owner view first when signed in.
	now := time.Now().UTC()
	if email := middleware.UserEmail(c); email != "" {
		if book, err := h.bookService.GetByID(c.Request.Context(), bookID, visibility.OwnerView(email), now); err == nil {
			c.JSON(http.StatusOK, gin.H{"data": book})
			return
		}
	}

	book, err := h.bookService.GetByID(c.Request.Context(), bookID, viewerContext(c), now)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": book})
}

// Similar handles GET /v1/books/:id/similar
func (h *RestBookHandler) Similar(c *gin.Context) {
	bookID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}
	books, err := h.bookService.Similar(c.Request.Context(), bookID, parseLimit(c, 8), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

type createBookRequest struct {
	Title       string  `json:"title" binding:"required"`
	Author      string  `json:"author" binding:"required"`
	Category    string  `json:"category" binding:"required"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	ShippingFee float64 `json:"shipping_fee" binding:"gte=0"`
	City        string  `json:"city"`
	Phone       string  `json:"phone"`
}

// Create handles POST /v1/books (authenticated)
func (h *RestBookHandler) Create(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book := &models.Book{
		Title:       req.Title,
		Author:      req.Author,
		Category:    req.Category,
		Condition:   req.Condition,
		Description: req.Description,
		Price:       req.Price,
		ShippingFee: req.ShippingFee,
		City:        req.City,
		Phone:       req.Phone,
		SellerEmail: middleware.UserEmail(c),
		SellerName:  middleware.UserName(c),
	}

	created, err := h.bookService.Create(c.Request.Context(), book)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// MyBooks handles GET /v1/my/books (authenticated)
func (h *RestBookHandler) MyBooks(c *gin.Context) {
	books, err := h.bookService.SellerBooks(c.Request.Context(), middleware.UserEmail(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books})
}

// Update handles PUT /v1/books/:id (authenticated)
func (h *RestBookHandler) Update(c *gin.Context) {
	bookID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.bookService.Update(c.Request.Context(), bookID, middleware.UserEmail(c), updates)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// Delete handles DELETE /v1/books/:id (authenticated)
func (h *RestBookHandler) Delete(c *gin.Context) {
	bookID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	if err := h.bookService.Delete(c.Request.Context(), bookID, middleware.UserEmail(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "deleted"})
}

type coverUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// RequestCoverUpload handles POST /v1/books/:id/cover (authenticated).
// Returns a pre-signed PUT URL; the client uploads directly to the bucket,
// then the image worker normalizes the object and stamps it onto the book.
func (h *RestBookHandler) RequestCoverUpload(c *gin.Context) {
	bookID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	var req coverUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Ownership check: only the seller attaches covers, and only while the
	// book exists.
	if _, err := h.bookService.GetByID(c.Request.Context(), bookID,
		visibility.OwnerView(middleware.UserEmail(c)), time.Now().UTC()); err != nil {
		respondServiceError(c, err)
		return
	}

	uploadURL, objectKey, err := h.coverStorage.GeneratePresignedPutURL(c.Request.Context(), bookID.Hex(), req.Filename, req.ContentType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	payload, _ := json.Marshal(tasks.CoverTaskPayload{S3Key: objectKey, BookID: bookID.Hex()})
	task := asynq.NewTask(tasks.TypeCoverProcess, payload)
	// Give the browser time to finish the upload before the worker looks.
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task,
		asynq.Queue("images"), asynq.ProcessIn(time.Minute)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": uploadURL,
		"object_key": objectKey,
	})
}
