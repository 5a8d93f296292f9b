// Package s3source reads certificate images from an S3 bucket.
package s3source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

// ObjectAPI is the subset of the S3 client used by Source.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Source lists, fetches and deletes image objects under a key prefix.
type Source struct {
	api    ObjectAPI
	bucket string
	log    *slog.Logger
}

// New creates an S3-backed Source.
func New(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, log), nil
}

// NewWithAPI wraps an existing S3 API client.
func NewWithAPI(api ObjectAPI, bucket string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{api: api, bucket: bucket, log: log}
}

var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// MimeTypeForKey maps an object key to an image MIME type by extension.
// It returns "" for keys that are not JPEG or PNG images.
func MimeTypeForKey(key string) string {
	return extensionMimeTypes[strings.ToLower(path.Ext(key))]
}

// List returns every JPEG or PNG object directly under prefix. Objects in
// nested "directories" are skipped, as are non-image keys.
func (s *Source) List(ctx context.Context, prefix string) ([]models.FileRef, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var files []models.FileRef
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			mimeType := MimeTypeForKey(key)
			if mimeType == "" {
				continue
			}
			files = append(files, models.FileRef{
				ID:       key,
				Name:     path.Base(key),
				MimeType: mimeType,
				Revision: aws.ToString(obj.ETag),
			})
		}
	}

	s.log.Info("Listed S3 objects",
		slog.String("bucket", s.bucket),
		slog.String("prefix", prefix),
		slog.Int("count", len(files)),
	)
	return files, nil
}

// Fetch downloads the object bytes.
func (s *Source) Fetch(ctx context.Context, file models.FileRef) ([]byte, error) {
	result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %s: %w", file.Name, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 download read %s: %w", file.Name, err)
	}
	return data, nil
}

// Delete removes the object.
func (s *Source) Delete(ctx context.Context, file models.FileRef) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file.ID),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", file.Name, err)
	}
	return nil
}
