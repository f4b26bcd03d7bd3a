package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // registered for image.Decode
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boipaben/server/internal/config"
	"boipaben/server/internal/email"
	"boipaben/server/internal/services"
	"boipaben/server/internal/storage"
)

// Task types handled by the background workers.
const (
	TypeHiddenSweep      = "books:hidden:sweep"
	TypeSaleNotification = "sale:notify"
	TypeCoverProcess     = "cover:process"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	cleanupService services.ICleanupService
	bookService    services.IBookService
	coverStorage   storage.ICoverStorage
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	cleanupService services.ICleanupService,
	bookService services.IBookService,
	coverStorage storage.ICoverStorage,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		cleanupService: cleanupService,
		bookService:    bookService,
		coverStorage:   coverStorage,
	}
}

// SetupServer configures an Asynq server and its handler mux for the given
// worker roles. The caller runs and shuts it down; a nil server means this
// process has no worker role.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeHiddenSweep, processor.HandleHiddenSweepTask)
		mux.HandleFunc(TypeSaleNotification, processor.HandleSaleNotificationTask)
		log.Println("Registered background task handlers.")
	}

	if isImageWorker {
		mux.HandleFunc(TypeCoverProcess, processor.HandleCoverProcessTask)
		log.Println("Registered cover processing task handlers.")
	}

	if !isBgWorker && !isImageWorker {
		log.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	return srv, mux
}

// SetupScheduler returns a started Asynq scheduler that periodically enqueues
// the hidden-flag sweep. The interval comes from config; any schedule up to
// the visibility window is safe because listings never trust the flag.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		&asynq.SchedulerOpts{Location: time.UTC},
	)

	spec := fmt.Sprintf("@every %s", cfg.CleanupInterval)
	entryID, err := scheduler.Register(spec, asynq.NewTask(TypeHiddenSweep, nil), asynq.Queue("low"))
	if err != nil {
		return nil, fmt.Errorf("failed to register hidden sweep schedule %q: %w", spec, err)
	}
	log.Printf("Registered hidden sweep schedule %q (entry %s).", spec, entryID)

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleHiddenSweepTask flags sold books whose visibility window has elapsed.
// A failed run returns the error and lets Asynq retry; the next scheduled run
// covers whatever this one missed anyway.
func (p *TaskProcessor) HandleHiddenSweepTask(ctx context.Context, t *asynq.Task) error {
	start := time.Now().UTC()
	flagged, err := p.cleanupService.Sweep(ctx, start)
	if err != nil {
		// The flag is only an optimization hint and the sweep is periodic;
		// the next scheduled run covers whatever this one missed, so a
		// failure is logged rather than retried.
		log.Printf("Hidden sweep failed: %v", err)
		return nil
	}
	log.Printf("Hidden sweep flagged %d books in %s.", flagged, time.Since(start))
	return nil
}

// SaleNotificationPayload carries everything the notification emails need so
// the handler does not reach back into the store.
type SaleNotificationPayload struct {
	OrderID      string   `json:"order_id"`
	BuyerEmail   string   `json:"buyer_email"`
	BuyerName    string   `json:"buyer_name,omitempty"`
	SellerEmails []string `json:"seller_emails"`
	Titles       []string `json:"titles"`
	Amount       float64  `json:"amount"`
}

// HandleSaleNotificationTask emails the buyer a confirmation and each seller
// a sold notice.
func (p *TaskProcessor) HandleSaleNotificationTask(ctx context.Context, t *asynq.Task) error {
	var payload SaleNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sale notification payload: %v: %w", err, asynq.SkipRetry)
	}

	titles := strings.Join(payload.Titles, ", ")

	buyerSubject := "Order Confirmed"
	buyerBody := fmt.Sprintf("Your order %s for %s (total %.2f) is confirmed.",
		payload.OrderID, titles, payload.Amount)
	if err := p.sendPlain(ctx, payload.BuyerEmail, buyerSubject, buyerBody); err != nil {
		log.Printf("Buyer confirmation email failed for order %s: %v", payload.OrderID, err)
		return err
	}

	sellerSubject := "Your Book Sold"
	seen := map[string]bool{}
	for _, seller := range payload.SellerEmails {
		if seller == "" || seen[seller] {
			continue
		}
		seen[seller] = true
		sellerBody := fmt.Sprintf("One or more of your listings sold in order %s: %s.", payload.OrderID, titles)
		if err := p.sendPlain(ctx, seller, sellerSubject, sellerBody); err != nil {
			log.Printf("Seller notice email failed for order %s to %s: %v", payload.OrderID, seller, err)
			return err
		}
	}

	return nil
}

func (p *TaskProcessor) sendPlain(ctx context.Context, to, subject, body string) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", p.cfg.SmtpFromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	return p.emailSender.Send(ctx, []string{to}, subject, []byte(sb.String()))
}

// CoverTaskPayload identifies an uploaded cover to normalize.
type CoverTaskPayload struct {
	S3Key  string `json:"s3_key"`
	BookID string `json:"book_id"`
}

// HandleCoverProcessTask downloads an uploaded cover, caps its dimensions,
// re-uploads it in place and stamps the public URL onto the book.
func (p *TaskProcessor) HandleCoverProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload CoverTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cover task payload: %v: %w", err, asynq.SkipRetry)
	}

	bookID, err := primitive.ObjectIDFromHex(payload.BookID)
	if err != nil {
		log.Printf("Invalid BookID in cover task payload: %s", payload.BookID)
		return fmt.Errorf("invalid book ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing cover task: S3Key=%s, BookID=%s", payload.S3Key, payload.BookID)
	s3Client := p.coverStorage.Client()

	getObjectOutput, err := s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download cover from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read cover data for key %s: %w", payload.S3Key, err)
	}

	maxSizeBytes := int64(p.cfg.CoverMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Cover %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("cover exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding cover for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.CoverMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim

	processedData := imgData
	contentType := aws.ToString(getObjectOutput.ContentType)

	if needsResize {
		log.Printf("Resizing cover %s (original: %dx%d, max: %d, format: %s)",
			payload.S3Key, img.Bounds().Dx(), img.Bounds().Dy(), maxDim, format)
		resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized cover: %w", err)
		}
		processedData = buf.Bytes()
		contentType = "image/jpeg"

		if int64(len(processedData)) > maxSizeBytes {
			log.Printf("Resized cover %s still exceeds max size. Skipping.", payload.S3Key)
			return fmt.Errorf("resized cover still exceeds max size: %w", asynq.SkipRetry)
		}

		if _, err := s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.cfg.AwsS3Bucket),
			Key:         aws.String(payload.S3Key),
			Body:        bytes.NewReader(processedData),
			ContentType: aws.String(contentType),
		}); err != nil {
			return fmt.Errorf("failed to upload processed cover: %w", err)
		}
	}

	if err := p.bookService.SetCoverImage(ctx, bookID, p.coverStorage.PublicURL(payload.S3Key)); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Listing deleted between upload and processing; nothing to stamp.
			log.Printf("Book %s gone before cover %s landed.", payload.BookID, payload.S3Key)
			return nil
		}
		return fmt.Errorf("failed to update book with processed cover: %w", err)
	}

	log.Printf("Cover task processed successfully: Key=%s, BookID=%s", payload.S3Key, payload.BookID)
	return nil
}
