// Package storage hands out presigned S3 URLs for profile images. Clients
// upload straight to the bucket; the server only ever sees object URLs.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/google/uuid"
)

// PresignExpiry is how long an issued URL stays valid.
const PresignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	now = time.Now
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// Upload describes a pending image upload. UploadURL accepts a single PUT
// with the declared content type; ObjectURL is what gets stored on the
// profile.
type Upload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"uploadUrl"`
	ObjectURL   string    `json:"objectUrl"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ImageStore struct {
	cfg Config
}

func NewImageStore(cfg Config) *ImageStore {
	return &ImageStore{cfg: cfg}
}

// ImageKey builds a date-partitioned object key for a user's image.
func ImageKey(userID int64, ext string, t time.Time) string {
	return fmt.Sprintf("profiles/%d/%d/%02d/%s.%s", userID, t.Year(), t.Month(), uuid.New(), ext)
}

func (s *ImageStore) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
			// MinIO and most self-hosted gateways only speak path-style
			o.UsePathStyle = true
		}
	})

	return newS3PresignClient(client), nil
}

// PresignUpload returns a PUT URL for a new profile image of userID.
// Only JPEG, PNG and WebP are accepted.
func (s *ImageStore) PresignUpload(ctx context.Context, userID int64, contentType string) (*Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image type %q", common.ErrorValidation, contentType)
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}

	issued := now()
	bucket := s.cfg.Bucket
	key := ImageKey(userID, ext, issued)

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, err
	}

	return &Upload{
		Key:         key,
		UploadURL:   req.URL,
		ObjectURL:   s.ObjectURL(key),
		ContentType: contentType,
		ExpiresAt:   issued.Add(PresignExpiry),
	}, nil
}

// PresignDownload returns a short-lived GET URL for key.
func (s *ImageStore) PresignDownload(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", common.ErrorValidation)
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("storage config: %w", err)
	}

	bucket := s.cfg.Bucket
	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// ObjectURL is the unsigned, path-style URL of key.
func (s *ImageStore) ObjectURL(key string) string {
	base := strings.TrimRight(s.cfg.BaseEndpoint, "/")
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.cfg.Region)
	}
	return base + "/" + s.cfg.Bucket + "/" + key
}

// KeyFromURL extracts the object key from a URL produced by ObjectURL.
func (s *ImageStore) KeyFromURL(url string) (string, bool) {
	prefix := s.ObjectURL("")
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", false
	}
	return url[len(prefix):], true
}
