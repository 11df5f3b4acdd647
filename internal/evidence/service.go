// Package evidence provides signed-URL services for site evidence imagery
// stored in R2: PUT URLs for direct uploads, and short-lived GET URLs so the
// vision capability can fetch private objects.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Allowed MIME types for evidence imagery.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
)

// Validation errors.
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed")
	ErrInvalidSiteID   = errors.New("invalid site ID")
	ErrInvalidKey      = errors.New("invalid evidence key")
)

// AllowedMIMETypes maps allowed MIME types to their file extensions.
var AllowedMIMETypes = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
}

// UploadRequest is a request for a signed evidence upload URL.
type UploadRequest struct {
	OrgID       string
	SiteID      string
	ContentType string
	SizeBytes   int64
}

// SignedURL is a presigned URL with its object key and expiry.
type SignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service generates signed URLs for evidence objects in R2.
type Service struct {
	presignClient *s3.PresignClient
	bucketName    string
	maxSizeBytes  int64
	urlExpiry     time.Duration
	timeNow       func() time.Time // For testability
}

// ServiceConfig holds configuration for the evidence service.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	MaxSizeMB        int
	URLExpiryMinutes int // Default: 5 minutes
}

// NewService creates a new evidence service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 15
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 5
	}

	// R2-compatible client configuration
	s3Client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
	})

	return &Service{
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		maxSizeBytes:  int64(cfg.MaxSizeMB) * 1024 * 1024,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:       time.Now,
	}, nil
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if _, ok := AllowedMIMETypes[contentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// ValidateFileSize checks if the file size is within limits.
func (s *Service) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes > s.maxSizeBytes {
		return ErrFileTooLarge
	}
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}
	return nil
}

// GenerateObjectKey creates a unique object key for an evidence upload.
// Pattern: evidence/{orgID}/{siteID}/uuid.ext
func GenerateObjectKey(contentType, orgID, siteID string) (string, error) {
	ext, ok := AllowedMIMETypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	org := sanitizePathComponent(orgID)
	site := sanitizePathComponent(siteID)
	if org == "" || site == "" {
		return "", ErrInvalidSiteID
	}

	return fmt.Sprintf("evidence/%s/%s/%s%s", org, site, uuid.New().String(), ext), nil
}

// sanitizePathComponent removes potentially dangerous characters from path components.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SignUpload generates a presigned PUT URL for a direct evidence upload.
func (s *Service) SignUpload(ctx context.Context, req UploadRequest) (*SignedURL, error) {
	if err := ValidateContentType(req.ContentType); err != nil {
		return nil, err
	}
	if err := s.ValidateFileSize(req.SizeBytes); err != nil {
		return nil, err
	}

	key, err := GenerateObjectKey(req.ContentType, req.OrgID, req.SiteID)
	if err != nil {
		return nil, err
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.SizeBytes),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &SignedURL{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: s.timeNow().Add(s.urlExpiry),
	}, nil
}

// SignFetch generates a presigned GET URL for an evidence object, scoped to
// the requesting org's prefix so one tenant cannot fetch another's imagery.
func (s *Service) SignFetch(ctx context.Context, orgID, key string) (*SignedURL, error) {
	org := sanitizePathComponent(orgID)
	if org == "" || !strings.HasPrefix(key, "evidence/"+org+"/") {
		return nil, ErrInvalidKey
	}

	presignedReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign fetch: %w", err)
	}

	return &SignedURL{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: s.timeNow().Add(s.urlExpiry),
	}, nil
}
