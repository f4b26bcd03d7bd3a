package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/models"
	"boipaben/server/internal/services"
)

// RestReportHandler handles listing abuse reports.
type RestReportHandler struct {
	reportService services.IReportService
}

// NewRestReportHandler creates a new RestReportHandler.
func NewRestReportHandler(reportService services.IReportService) *RestReportHandler {
	return &RestReportHandler{reportService: reportService}
}

type createReportRequest struct {
	BookID string `json:"book_id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// Create handles POST /v1/reports (authenticated)
func (h *RestReportHandler) Create(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookID, err := primitive.ObjectIDFromHex(req.BookID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	report, err := h.reportService.Report(c.Request.Context(), &models.Report{
		BookID:        bookID,
		ReporterEmail: middleware.UserEmail(c),
		Reason:        req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": report})
}
