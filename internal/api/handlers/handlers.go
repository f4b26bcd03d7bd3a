package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/services"
	"boipaben/server/internal/visibility"
)

// IAsynqClient defines the interface for the Asynq client methods used by
// handlers. This allows easier mocking than using the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// viewerContext builds the visibility context for the request: authenticated
// email when present, anonymous otherwise. Owner views are constructed
// explicitly by the endpoints that serve dashboards, never inferred here.
func viewerContext(c *gin.Context) visibility.Context {
	if email := middleware.UserEmail(c); email != "" {
		return visibility.PublicAuthenticated(email)
	}
	return visibility.PublicAnonymous()
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is logged and surfaced generically.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this resource"})
	case errors.Is(err, services.ErrSoldBookImmutable):
		c.JSON(http.StatusConflict, gin.H{"error": "Sold books cannot be modified"})
	case errors.Is(err, services.ErrAlreadyInCart):
		c.JSON(http.StatusConflict, gin.H{"error": "Book is already in your cart"})
	case errors.Is(err, services.ErrAlreadyReported):
		c.JSON(http.StatusConflict, gin.H{"error": "You have already reported this book"})
	case errors.Is(err, services.ErrTransientStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporary failure, please retry"})
	default:
		if conflict, ok := services.IsConflict(err); ok {
			ids := make([]string, len(conflict.BookIDs))
			for i, id := range conflict.BookIDs {
				ids[i] = id.Hex()
			}
			c.JSON(http.StatusConflict, gin.H{
				"error":           "Some books are no longer available",
				"unavailable_ids": ids,
			})
			return
		}
		log.Printf("Unhandled service error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
