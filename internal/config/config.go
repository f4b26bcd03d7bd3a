package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT (tokens issued by the external identity provider)
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Payment gateway
	PaymentAPIBaseURL    string
	PaymentAPIKey        string
	PaymentWebhookSecret string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string

	// Cleanup
	CleanupInterval time.Duration

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3 (book cover images)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	CoverBaseS3URL     string
	CoverMaxDimension  int
	CoverMaxSizeMB     int

	// App Defaults
	AppName        string
	ListingPageMax int
	LatestCacheTTL time.Duration

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "boipaben")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.PaymentAPIBaseURL = getEnv("PAYMENT_API_BASE_URL", "https://api.payment.example.com/v1")
	cfg.PaymentAPIKey = getEnv("PAYMENT_API_KEY", "")
	cfg.PaymentWebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", "")
	cfg.CheckoutSuccessURL = getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/payment/success")
	cfg.CheckoutCancelURL = getEnv("CHECKOUT_CANCEL_URL", "http://localhost:5173/cart")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@boipaben.example.com")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.CoverBaseS3URL = getEnv("COVER_BASE_S3_URL", "")
	cfg.AppName = getEnv("APP_NAME", "BoiPaben")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	// Any interval up to the visibility window is safe here: the read path
	// recomputes visibility from sold_at, so a late sweep only grows the
	// timestamp scan, it cannot leak sold books.
	cleanupIntervalSeconds, err := strconv.ParseInt(getEnv("CLEANUP_INTERVAL_SECONDS", "43200"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_INTERVAL_SECONDS: %w", err)
	}
	cfg.CleanupInterval = time.Duration(cleanupIntervalSeconds) * time.Second

	cfg.CoverMaxDimension, err = strconv.Atoi(getEnv("COVER_MAX_DIMENSION", "1600"))
	if err != nil {
		return nil, fmt.Errorf("invalid COVER_MAX_DIMENSION: %w", err)
	}

	cfg.CoverMaxSizeMB, err = strconv.Atoi(getEnv("COVER_MAX_SIZE_MB", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid COVER_MAX_SIZE_MB: %w", err)
	}

	cfg.ListingPageMax, err = strconv.Atoi(getEnv("LISTING_PAGE_MAX", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid LISTING_PAGE_MAX: %w", err)
	}

	latestCacheTTLSeconds, err := strconv.ParseInt(getEnv("LATEST_CACHE_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LATEST_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.LatestCacheTTL = time.Duration(latestCacheTTLSeconds) * time.Second

	// Rate Limiting
	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
