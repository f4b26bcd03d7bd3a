package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/cache"
	"boipaben/server/internal/config"
	"boipaben/server/internal/models"
	"boipaben/server/internal/payment"
	"boipaben/server/internal/services"
	"boipaben/server/internal/tasks"
	"boipaben/server/internal/visibility"
)

// CheckoutHandler handles both purchase paths: card via the payment gateway
// and cash on delivery. Both converge on the sale service; the handler only
// differs in how the confirmation arrives.
type CheckoutHandler struct {
	cfg         *config.Config
	bookService services.IBookService
	saleService services.ISaleService
	gateway     payment.Gateway
	store       cache.Store
	taskClient  IAsynqClient
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(
	cfg *config.Config,
	bookService services.IBookService,
	saleService services.ISaleService,
	gateway payment.Gateway,
	store cache.Store,
	taskClient IAsynqClient,
) *CheckoutHandler {
	return &CheckoutHandler{
		cfg:         cfg,
		bookService: bookService,
		saleService: saleService,
		gateway:     gateway,
		store:       store,
		taskClient:  taskClient,
	}
}

// pendingCheckout is what the webhook needs to finish a card sale. It lives
// in Redis under the gateway's session ref until the confirmation lands;
// gateway sessions expire well inside the TTL.
type pendingCheckout struct {
	BookIDs    []string `json:"book_ids"`
	BuyerEmail string   `json:"buyer_email"`
	BuyerName  string   `json:"buyer_name"`
	Address    string   `json:"address"`
}

const pendingCheckoutTTL = 24 * time.Hour

func pendingCheckoutKey(ref string) string {
	return "checkout:pending:" + ref
}

type checkoutRequest struct {
	BookIDs []string `json:"book_ids" binding:"required,min=1"`
	Address string   `json:"address" binding:"required"`
}

// loadBatch resolves and validates the requested books for the buyer: each
// must be visible, available, and not the buyer's own listing.
func (h *CheckoutHandler) loadBatch(c *gin.Context, req checkoutRequest) ([]primitive.ObjectID, []models.Book, bool) {
	buyerEmail := middleware.UserEmail(c)
	now := time.Now().UTC()

	ids := make([]primitive.ObjectID, 0, len(req.BookIDs))
	books := make([]models.Book, 0, len(req.BookIDs))
	for _, raw := range req.BookIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid book ID %q", raw)})
			return nil, nil, false
		}

		book, err := h.bookService.GetByID(c.Request.Context(), id, visibility.PublicAuthenticated(buyerEmail), now)
		if err != nil {
			respondServiceError(c, err)
			return nil, nil, false
		}
		if book.Availability != models.AvailabilityAvailable {
			c.JSON(http.StatusConflict, gin.H{"error": "Some books are no longer available", "unavailable_ids": []string{raw}})
			return nil, nil, false
		}
		if book.SellerEmail == buyerEmail {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot buy your own listing"})
			return nil, nil, false
		}

		ids = append(ids, id)
		books = append(books, *book)
	}
	return ids, books, true
}

// CreateSession handles POST /v1/checkout/session (authenticated). Opens a
// gateway checkout session for the batch; nothing is sold until the webhook
// confirms payment.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, books, ok := h.loadBatch(c, req)
	if !ok {
		return
	}

	var amount float64
	items := make([]payment.CheckoutItem, 0, len(books))
	for _, b := range books {
		lineAmount := b.Price + b.ShippingFee
		amount += lineAmount
		items = append(items, payment.CheckoutItem{Name: b.Title, Amount: lineAmount})
	}

	session, err := h.gateway.CreateSession(c.Request.Context(), payment.CreateSessionReq{
		PayerEmail: middleware.UserEmail(c),
		Items:      items,
		Amount:     amount,
		SuccessURL: h.cfg.CheckoutSuccessURL,
		CancelURL:  h.cfg.CheckoutCancelURL,
	})
	if err != nil {
		log.Printf("Gateway session creation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		return
	}

	pending := pendingCheckout{
		BookIDs:    req.BookIDs,
		BuyerEmail: middleware.UserEmail(c),
		BuyerName:  middleware.UserName(c),
		Address:    req.Address,
	}
	for i, id := range ids {
		pending.BookIDs[i] = id.Hex()
	}
	if err := h.store.SetJSON(c.Request.Context(), pendingCheckoutKey(session.Ref), pending, pendingCheckoutTTL); err != nil {
		log.Printf("Failed to stash pending checkout %s: %v", session.Ref, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ref":          session.Ref,
		"checkout_url": session.CheckoutURL,
		"amount":       amount,
	})
}

// Webhook handles POST /v1/checkout/webhook. The gateway posts here on
// payment completion; the signature is verified against the raw body before
// anything is trusted. Redelivered confirmations are absorbed by the sale
// service's external-ref idempotency, so this endpoint is safe to retry.
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	if err := h.gateway.VerifyWebhookSignature(c.GetHeader("X-Signature"), rawBody); err != nil {
		log.Printf("Webhook signature rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event payment.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event"})
		return
	}
	if event.Status != payment.EventStatusPaid {
		// Expirations and cancellations need no action; the books were never
		// reserved.
		c.JSON(http.StatusOK, gin.H{"data": "ignored"})
		return
	}

	var pending pendingCheckout
	if err := h.store.GetJSON(c.Request.Context(), pendingCheckoutKey(event.SessionRef), &pending); err != nil {
		// The session may already be recorded (entry deleted on success), or
		// it genuinely expired. The order lookup distinguishes the two.
		if existing, lookupErr := h.saleService.OrderByExternalRef(c.Request.Context(), event.SessionRef); lookupErr == nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": existing.ID.Hex(), "already_processed": true}})
			return
		}
		log.Printf("Paid webhook for unknown session %s: %v", event.SessionRef, err)
		c.JSON(http.StatusOK, gin.H{"data": "unknown session"})
		return
	}

	ids := make([]primitive.ObjectID, 0, len(pending.BookIDs))
	for _, raw := range pending.BookIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			log.Printf("Corrupt pending checkout %s: bad book ID %q", event.SessionRef, raw)
			c.JSON(http.StatusOK, gin.H{"data": "corrupt session"})
			return
		}
		ids = append(ids, id)
	}

	order, already, err := h.saleService.RecordSale(c.Request.Context(), ids,
		services.Buyer{Email: pending.BuyerEmail, Name: pending.BuyerName},
		models.OrderMethodCard, event.SessionRef, pending.Address, time.Now().UTC())
	if err != nil {
		if errors.Is(err, services.ErrTransientStore) {
			// Non-2xx makes the gateway redeliver; the external ref makes the
			// retry harmless.
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporary failure, please retry"})
			return
		}
		if _, ok := services.IsConflict(err); ok {
			// Paid but unsellable: someone else's sale landed first. This
			// needs a human (refund), not a gateway retry.
			log.Printf("ALERT: paid session %s conflicts with an earlier sale: %v", event.SessionRef, err)
			c.JSON(http.StatusOK, gin.H{"data": "conflict recorded"})
			return
		}
		log.Printf("Webhook sale recording failed for %s: %v", event.SessionRef, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !already {
		_ = h.store.Delete(c.Request.Context(), pendingCheckoutKey(event.SessionRef))
		h.enqueueSaleNotification(c, order)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": order.ID.Hex(), "already_processed": already}})
}

// CashOnDelivery handles POST /v1/checkout/cod (authenticated). No gateway
// involved; the sale records immediately.
func (h *CheckoutHandler) CashOnDelivery(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, _, ok := h.loadBatch(c, req)
	if !ok {
		return
	}

	order, _, err := h.saleService.RecordSale(c.Request.Context(), ids,
		services.Buyer{Email: middleware.UserEmail(c), Name: middleware.UserName(c)},
		models.OrderMethodCashOnDelivery, "", req.Address, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.enqueueSaleNotification(c, order)
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// Status handles GET /v1/checkout/status/:ref (authenticated). Lets the
// success page poll for the order when the webhook races the redirect.
func (h *CheckoutHandler) Status(c *gin.Context) {
	order, err := h.saleService.OrderByExternalRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if order.BuyerEmail != middleware.UserEmail(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// MyOrders handles GET /v1/my/orders (authenticated).
func (h *CheckoutHandler) MyOrders(c *gin.Context) {
	orders, err := h.saleService.BuyerOrders(c.Request.Context(), middleware.UserEmail(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (h *CheckoutHandler) enqueueSaleNotification(c *gin.Context, order *models.Order) {
	sellers := make([]string, 0, len(order.Items))
	titles := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		sellers = append(sellers, item.SellerEmail)
		titles = append(titles, item.Title)
	}

	payload, _ := json.Marshal(tasks.SaleNotificationPayload{
		OrderID:      order.ID.Hex(),
		BuyerEmail:   order.BuyerEmail,
		BuyerName:    order.BuyerName,
		SellerEmails: sellers,
		Titles:       titles,
		Amount:       order.Amount,
	})
	task := asynq.NewTask(tasks.TypeSaleNotification, payload)
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task, asynq.Queue("default")); err != nil {
		// The sale is committed; a lost email never fails the request.
		log.Printf("Failed to enqueue sale notification for order %s: %v", order.ID.Hex(), err)
	}
}
