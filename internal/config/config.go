package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

type Config struct {
	App
	Upload
	S3
	AI
	PostgreSQL
	HTTP
}

type App struct {
	Workers     int
	QueueName   string
	SealKeyHex  string
	RetryPolicy RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

type Upload struct {
	MaxUploadBytes int64
	SessionTTL     time.Duration
	SweepInterval  time.Duration
}

type S3 struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type AI struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type PostgreSQL struct {
	Host     string
	Port     string
	Username string
	Password string
	DBName   string
}

type HTTP struct {
	Host         string
	Port         string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func Load(cmd *cli.Command) *Config {
	return &Config{
		App: App{
			Workers:    int(cmd.Int("workers")),
			QueueName:  cmd.String("queue-name"),
			SealKeyHex: cmd.String("seal-key"),
			RetryPolicy: RetryPolicy{
				MaxAttempts: int(cmd.Int("task-max-attempts")),
				MinBackoff:  cmd.Duration("task-min-backoff"),
				MaxBackoff:  cmd.Duration("task-max-backoff"),
			},
		},
		Upload: Upload{
			MaxUploadBytes: int64(cmd.Int("max-upload-bytes")),
			SessionTTL:     cmd.Duration("session-ttl"),
			SweepInterval:  cmd.Duration("sweep-interval"),
		},
		S3: S3{
			Endpoint:     cmd.String("s3-endpoint"),
			Region:       cmd.String("s3-region"),
			Bucket:       cmd.String("s3-bucket"),
			AccessKey:    cmd.String("s3-access-key"),
			SecretKey:    cmd.String("s3-secret-key"),
			UsePathStyle: cmd.Bool("s3-path-style"),
		},
		AI: AI{
			BaseURL:   cmd.String("ai-base-url"),
			APIKey:    cmd.String("ai-api-key"),
			Model:     cmd.String("ai-model"),
			MaxTokens: int(cmd.Int("ai-max-tokens")),
		},
		PostgreSQL: PostgreSQL{
			Host:     cmd.String("pg-host"),
			Port:     cmd.String("pg-port"),
			Username: cmd.String("pg-username"),
			Password: cmd.String("pg-password"),
			DBName:   cmd.String("pg-dbname"),
		},
		HTTP: HTTP{
			Host:         cmd.String("http-host"),
			Port:         cmd.String("http-port"),
			IdleTimeout:  cmd.Duration("http-idle-timeout"),
			ReadTimeout:  cmd.Duration("http-read-timeout"),
			WriteTimeout: cmd.Duration("http-write-timeout"),
		},
	}
}
