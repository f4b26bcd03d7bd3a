package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"boipaben/server/internal/api/handlers"
	"boipaben/server/internal/api/middleware"
	"boipaben/server/internal/cache"
	"boipaben/server/internal/config"
	"boipaben/server/internal/payment"
	"boipaben/server/internal/services"
	"boipaben/server/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, client *mongo.Client, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient) *gin.Engine {
	cacheStore := cache.NewStore(rdb)

	bookService := services.NewBookService(db, cfg, cacheStore)
	saleService := services.NewSaleService(client, db)
	cartService := services.NewCartService(db)
	blogService := services.NewBlogService(db)
	reportService := services.NewReportService(db)

	coverStorage, err := storage.NewCoverStorage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize cover storage for API: %v", err)
	}
	gateway := payment.NewHTTPGateway(cfg)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	bookHandler := handlers.NewRestBookHandler(bookService, coverStorage, taskClient)
	cartHandler := handlers.NewRestCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(cfg, bookService, saleService, gateway, cacheStore, taskClient)
	blogHandler := handlers.NewRestBlogHandler(blogService)
	reportHandler := handlers.NewRestReportHandler(reportService)

	v1 := r.Group("/v1")
	{
		// Public routes. Optional auth so signed-in users get their own
		// visibility context on shared pages.
		public := v1.Group("/")
		public.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
		{
			public.GET("/books", bookHandler.ListLatest)
			public.GET("/books/search", bookHandler.Search)
			public.GET("/books/category/:category", bookHandler.ListByCategory)
			public.GET("/books/:id", bookHandler.GetByID)
			public.GET("/books/:id/similar", bookHandler.Similar)

			public.GET("/blog", blogHandler.List)
			public.GET("/blog/:id", blogHandler.Get)
			public.GET("/blog/:id/comments", blogHandler.Comments)
		}

		// The gateway authenticates with its signature, not a user token.
		v1.POST("/checkout/webhook", checkoutHandler.Webhook)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes.
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/books", bookHandler.Create)
			authRequired.PUT("/books/:id", bookHandler.Update)
			authRequired.DELETE("/books/:id", bookHandler.Delete)
			authRequired.POST("/books/:id/cover", bookHandler.RequestCoverUpload)
			authRequired.GET("/my/books", bookHandler.MyBooks)

			authRequired.POST("/cart", cartHandler.Add)
			authRequired.GET("/cart", cartHandler.List)
			authRequired.DELETE("/cart/:id", cartHandler.Remove)

			authRequired.POST("/checkout/session", checkoutHandler.CreateSession)
			authRequired.POST("/checkout/cod", checkoutHandler.CashOnDelivery)
			authRequired.GET("/checkout/status/:ref", checkoutHandler.Status)
			authRequired.GET("/my/orders", checkoutHandler.MyOrders)

			authRequired.POST("/blog", blogHandler.Create)
			authRequired.PUT("/blog/:id", blogHandler.Update)
			authRequired.DELETE("/blog/:id", blogHandler.Delete)
			authRequired.POST("/blog/:id/react", blogHandler.React)
			authRequired.POST("/blog/:id/comments", blogHandler.AddComment)

			authRequired.POST("/reports", reportHandler.Create)
		}
	}

	return r
}
