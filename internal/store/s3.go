package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the slice of the S3 client the uploader needs; tests swap in a
// fake.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket      string
	Region      string
	Endpoint    string // optional, for MinIO/LocalStack
	MaxRetries  int
	BackoffBase float64
	Encryption  types.ServerSideEncryption
}

func (c *Config) withDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2.0
	}
	if c.Encryption == "" {
		c.Encryption = types.ServerSideEncryptionAes256
	}
}

// Uploader places blobs and JSON documents at remote keys with bounded
// retry. Remote errors never escape as panics; exhaustion surfaces as an
// error to the caller, which owns the local artifacts.
type Uploader struct {
	api   s3API
	cfg   Config
	log   *slog.Logger
	sleep func(time.Duration)
}

// NewUploader builds an S3-backed uploader from the ambient AWS
// credential chain.
func NewUploader(ctx context.Context, cfg Config, log *slog.Logger) (*Uploader, error) {
	cfg.withDefaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("store: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	})
	return newUploader(client, cfg, log), nil
}

func newUploader(api s3API, cfg Config, log *slog.Logger) *Uploader {
	cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{api: api, cfg: cfg, log: log, sleep: time.Sleep}
}

// UploadFile uploads a local file as an opaque blob.
func (u *Uploader) UploadFile(ctx context.Context, path, key string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return u.put(ctx, body, key, "application/octet-stream")
}

// UploadJSON serializes doc and uploads it with a JSON content type.
func (u *Uploader) UploadJSON(ctx context.Context, doc any, key string) error {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document for %s: %w", key, err)
	}
	return u.put(ctx, body, key, "application/json")
}

func (u *Uploader) put(ctx context.Context, body []byte, key, contentType string) error {
	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		u.log.Info("uploading", "bucket", u.cfg.Bucket, "key", key, "attempt", attempt)
		_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(u.cfg.Bucket),
			Key:                  aws.String(key),
			Body:                 bytes.NewReader(body),
			ContentType:          aws.String(contentType),
			ServerSideEncryption: u.cfg.Encryption,
		})
		if err == nil {
			u.log.Info("uploaded", "key", key, "bytes", len(body))
			return nil
		}
		lastErr = err
		u.log.Error("upload failed", "key", key, "attempt", attempt, "max_retries", u.cfg.MaxRetries, "err", err)
		if attempt < u.cfg.MaxRetries {
			backoff := time.Duration(math.Pow(u.cfg.BackoffBase, float64(attempt)) * float64(time.Second))
			u.log.Info("retrying upload", "key", key, "backoff", backoff)
			u.sleep(backoff)
		}
	}
	return fmt.Errorf("upload %s after %d attempts: %w", key, u.cfg.MaxRetries, lastErr)
}
