package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

// S3Client wraps the AWS S3 client for S3/TOS/R2/MinIO compatible storage
type S3Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string // base URL images are served from (bucket endpoint or CDN)
	basePath  string // prefix for all objects (e.g. "uploads/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://tos-cn-beijing.volces.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string // e.g. https://bucket.tos-cn-beijing.volces.com
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Client creates a new S3-compatible storage client
func NewS3Client(cfg S3Config) (*S3Client, error) {
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 storage client initialized")

	return &S3Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		basePath:  cfg.BasePath,
	}, nil
}

// PresignedUpload is a pre-signed direct upload grant
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Key       string `json:"key"`
}

// PresignPut generates a pre-signed PUT URL so clients upload directly to
// object storage without routing bytes through the API
func (c *S3Client) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (*PresignedUpload, error) {
	fullKey := c.basePath + key

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("presign put failed: %w", err)
	}

	return &PresignedUpload{
		UploadURL: result.URL,
		PublicURL: c.publicURL + "/" + fullKey,
		Key:       fullKey,
	}, nil
}

// Delete removes a file from storage
func (c *S3Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// KeyFromURL extracts the object key from a public URL served by this bucket
func (c *S3Client) KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid object url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("object url has no key: %s", rawURL)
	}
	return key, nil
}

// GenerateKey creates a unique storage key with a millisecond prefix,
// matching the upload naming the mobile clients expect
func GenerateKey(filename string) string {
	// Strip any path components a client might sneak in
	if idx := strings.LastIndexAny(filename, "/\\"); idx >= 0 {
		filename = filename[idx+1:]
	}
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filename)
}
