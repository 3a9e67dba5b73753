package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/avoronkov/lab_ingest/internal/app"
	"github.com/avoronkov/lab_ingest/internal/config"
)

var version = "dev"

func cmd() *cli.Command {
	return &cli.Command{
		Name:    "lab_ingest",
		Usage:   "lab report ingestion service",
		Version: version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log, ok := ctx.Value(loggerKey{}).(*slog.Logger)
			if !ok {
				return errors.New("failed to get logger from context")
			}

			cfg := config.Load(cmd)

			return app.New(log, cfg).Run(ctx)
		},
	}
}

func flags() []cli.Flag {
	var config string

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Validator:   validateConfig,
			Usage:       "Load configuration from `FILE`",
			Destination: &config,
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Set the number of ingestion workers",
			Value:   4,
			Sources: cli.NewValueSourceChain(yaml.YAML("app.workers", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "queue-name",
			Usage:   "Set the ingestion queue name",
			Value:   "panel-ingestion",
			Sources: cli.NewValueSourceChain(yaml.YAML("app.queue_name", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:      "seal-key",
			Usage:     "Set the hex-encoded AES key for sealing uploads at rest",
			Sources:   cli.NewValueSourceChain(yaml.YAML("app.seal_key", altsrc.NewStringPtrSourcer(&config))),
			Required:  true,
			Validator: validateSealKey,
		},
		&cli.IntFlag{
			Name:    "task-max-attempts",
			Usage:   "Set the maximum delivery attempts per ingestion task",
			Value:   5,
			Sources: cli.NewValueSourceChain(yaml.YAML("app.task_max_attempts", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "task-min-backoff",
			Usage:   "Set the initial redelivery backoff",
			Value:   time.Second,
			Sources: cli.NewValueSourceChain(yaml.YAML("app.task_min_backoff", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "task-max-backoff",
			Usage:   "Set the redelivery backoff cap",
			Value:   time.Minute,
			Sources: cli.NewValueSourceChain(yaml.YAML("app.task_max_backoff", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.IntFlag{
			Name:    "max-upload-bytes",
			Usage:   "Set the maximum accepted upload size in bytes",
			Value:   25 << 20,
			Sources: cli.NewValueSourceChain(yaml.YAML("upload.max_upload_bytes", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "session-ttl",
			Usage:   "Set the upload session lifetime",
			Value:   15 * time.Minute,
			Sources: cli.NewValueSourceChain(yaml.YAML("upload.session_ttl", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "Set how often expired sessions are swept",
			Value:   time.Minute,
			Sources: cli.NewValueSourceChain(yaml.YAML("upload.sweep_interval", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "Set the S3-compatible storage endpoint",
			Sources: cli.NewValueSourceChain(yaml.YAML("s3.endpoint", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "Set the S3 region",
			Value:   "us-east-1",
			Sources: cli.NewValueSourceChain(yaml.YAML("s3.region", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:     "s3-bucket",
			Usage:    "Set the S3 bucket for uploads",
			Sources:  cli.NewValueSourceChain(yaml.YAML("s3.bucket", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "s3-access-key",
			Usage:    "Set the S3 access key",
			Sources:  cli.NewValueSourceChain(yaml.YAML("s3.access_key", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "s3-secret-key",
			Usage:    "Set the S3 secret key",
			Sources:  cli.NewValueSourceChain(yaml.YAML("s3.secret_key", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "s3-path-style",
			Usage:   "Use path-style S3 addressing (MinIO and friends)",
			Sources: cli.NewValueSourceChain(yaml.YAML("s3.path_style", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "ai-base-url",
			Usage:   "Set the AI completion API base url",
			Value:   "https://api.openai.com",
			Sources: cli.NewValueSourceChain(yaml.YAML("ai.base_url", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "Set the AI completion API key, empty disables the fallback",
			Sources: cli.NewValueSourceChain(yaml.YAML("ai.api_key", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Usage:   "Set the AI completion model",
			Value:   "gpt-4o-mini",
			Sources: cli.NewValueSourceChain(yaml.YAML("ai.model", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.IntFlag{
			Name:    "ai-max-tokens",
			Usage:   "Set the AI completion token limit",
			Value:   2048,
			Sources: cli.NewValueSourceChain(yaml.YAML("ai.max_tokens", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:     "pg-host",
			Usage:    "Set PostgreSQL host",
			Value:    "localhost",
			Sources:  cli.NewValueSourceChain(yaml.YAML("postgresql.host", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "pg-port",
			Usage:    "Set PostgreSQL port",
			Value:    "5432",
			Sources:  cli.NewValueSourceChain(yaml.YAML("postgresql.port", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "pg-username",
			Usage:    "Set PostgreSQL username",
			Sources:  cli.NewValueSourceChain(yaml.YAML("postgresql.username", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "pg-password",
			Usage:    "Set PostgreSQL password",
			Sources:  cli.NewValueSourceChain(yaml.YAML("postgresql.password", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "pg-dbname",
			Usage:    "Set PostgreSQL database name",
			Value:    "lab_ingest",
			Sources:  cli.NewValueSourceChain(yaml.YAML("postgresql.dbname", altsrc.NewStringPtrSourcer(&config))),
			Required: true,
		},
		&cli.StringFlag{
			Name:    "http-host",
			Usage:   "Set HTTP server host",
			Value:   "localhost",
			Sources: cli.NewValueSourceChain(yaml.YAML("http.host", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.StringFlag{
			Name:    "http-port",
			Usage:   "Set HTTP server port",
			Value:   "8080",
			Sources: cli.NewValueSourceChain(yaml.YAML("http.port", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "http-idle-timeout",
			Usage:   "Set HTTP server idle timeout",
			Value:   1 * time.Minute,
			Sources: cli.NewValueSourceChain(yaml.YAML("http.idle_timeout", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "http-read-timeout",
			Usage:   "Set HTTP server read timeout",
			Value:   15 * time.Second,
			Sources: cli.NewValueSourceChain(yaml.YAML("http.read_timeout", altsrc.NewStringPtrSourcer(&config))),
		},
		&cli.DurationFlag{
			Name:    "http-write-timeout",
			Usage:   "Set HTTP server write timeout",
			Value:   15 * time.Second,
			Sources: cli.NewValueSourceChain(yaml.YAML("http.write_timeout", altsrc.NewStringPtrSourcer(&config))),
		},
	}
}

func validateSealKey(key string) error {
	switch len(key) {
	case 32, 48, 64:
		for _, r := range key {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
				return fmt.Errorf("seal key must be hex-encoded")
			}
		}
		return nil
	default:
		return fmt.Errorf("seal key must be 32, 48 or 64 hex characters, got %d", len(key))
	}
}

func validateConfig(config string) error {
	info, err := os.Stat(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%q does not exist", config)
		}
		return fmt.Errorf("failed to stat %q: %w", config, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", config)
	}

	ext := filepath.Ext(info.Name())
	if ext != ".yml" && ext != ".yaml" {
		return fmt.Errorf("invalid extension %q", config)
	}

	return nil
}
