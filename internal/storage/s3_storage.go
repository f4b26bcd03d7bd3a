package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"boipaben/server/internal/config"
)

// ICoverStorage defines the S3 operations for book cover images. Uploads go
// browser-to-bucket via pre-signed URLs; the server never proxies the bytes.
type ICoverStorage interface {
	GeneratePresignedPutURL(ctx context.Context, bookID, filename, contentType string) (string, string, error)
	PublicURL(objectKey string) string
	Client() *s3.Client
}

// coverStorage implements ICoverStorage.
type coverStorage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewCoverStorage creates a new S3-backed cover storage service.
func NewCoverStorage(cfg *config.Config) (ICoverStorage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &coverStorage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

// GeneratePresignedPutURL creates a pre-signed URL for uploading a cover.
// It returns the URL and the generated S3 object key.
func (s *coverStorage) GeneratePresignedPutURL(ctx context.Context, bookID, filename, contentType string) (string, string, error) {
	objectKey := fmt.Sprintf("covers/%s/%s_%s", bookID, uuid.NewString(), sanitizeFilename(filename))

	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	return presignedReq.URL, objectKey, nil
}

// PublicURL returns the public-facing URL for an object key.
func (s *coverStorage) PublicURL(objectKey string) string {
	return strings.TrimSuffix(s.cfg.CoverBaseS3URL, "/") + "/" + objectKey
}

// Client exposes the underlying S3 client for the image worker, which needs
// raw Get/Put access to re-process covers in place.
func (s *coverStorage) Client() *s3.Client {
	return s.s3Client
}

// sanitizeFilename strips path components and characters that have no
// business in an object key.
func sanitizeFilename(filename string) string {
	base := path.Base(filename)
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "upload"
	}
	return sb.String()
}
