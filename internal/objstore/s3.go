package objstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/avoronkov/lab_ingest/internal/config"
)

const (
	downloadMaxRetries  = 3
	downloadBackoffBase = 500 * time.Millisecond
)

// Client is the object-storage collaborator: write-only presigned URLs for
// client uploads, downloads for the pipeline, and metadata-carrying saves for
// sealed payloads. Works against any S3-compatible endpoint.
type Client struct {
	log     *slog.Logger
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
}

func New(ctx context.Context, log *slog.Logger, cfg config.S3) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{
		log:     log,
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// WriteTarget is a time-limited, content-addressed write grant. The client
// must send the listed headers verbatim or the storage provider rejects the
// upload.
type WriteTarget struct {
	URL       string
	Headers   map[string]string
	ExpiresAt time.Time
}

// IssueWriteURL presigns a PUT scoped to one key, content type and SHA-256
// checksum. sha256Hex is the hex digest declared at session creation.
func (c *Client) IssueWriteURL(ctx context.Context, key, contentType, sha256Hex string, expiry time.Duration) (*WriteTarget, error) {
	digest, err := hex.DecodeString(sha256Hex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sha256 hex: %w", err)
	}
	checksum := base64.StdEncoding.EncodeToString(digest)

	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(c.bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		ChecksumSHA256:       aws.String(checksum),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign put object: %w", err)
	}

	return &WriteTarget{
		URL: req.URL,
		Headers: map[string]string{
			"Content-Type":                 contentType,
			"x-amz-checksum-sha256":        checksum,
			"x-amz-server-side-encryption": string(types.ServerSideEncryptionAes256),
		},
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// Download fetches an object's full body, retrying transient provider errors
// with capped exponential backoff.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	backoff := retry.WithMaxRetries(downloadMaxRetries, retry.NewExponential(downloadBackoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			c.log.DebugContext(ctx, "object download attempt failed",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
			return retry.RetryableError(err)
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read object body: %w", err))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}

	return data, nil
}

// Save writes an object with its metadata in one call. A successful return
// means the provider acknowledged a durable write.
func (c *Client) Save(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}

	return nil
}
