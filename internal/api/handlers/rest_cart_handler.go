package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/services"
)

// RestCartHandler handles REST requests for the buyer's cart. Every route
// here sits behind AuthMiddleware.
type RestCartHandler struct {
	cartService services.ICartService
}

// NewRestCartHandler creates a new RestCartHandler.
func NewRestCartHandler(cartService services.ICartService) *RestCartHandler {
	return &RestCartHandler{cartService: cartService}
}

type addToCartRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

// Add handles POST /v1/cart
func (h *RestCartHandler) Add(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookID, err := primitive.ObjectIDFromHex(req.BookID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	item, err := h.cartService.Add(c.Request.Context(), bookID, middleware.UserEmail(c), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// List handles GET /v1/cart
func (h *RestCartHandler) List(c *gin.Context) {
	items, err := h.cartService.Items(c.Request.Context(), middleware.UserEmail(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// Remove handles DELETE /v1/cart/:id
func (h *RestCartHandler) Remove(c *gin.Context) {
	itemID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	if err := h.cartService.Remove(c.Request.Context(), itemID, middleware.UserEmail(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "removed"})
}
