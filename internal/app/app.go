package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avoronkov/lab_ingest/internal/aiclient"
	"github.com/avoronkov/lab_ingest/internal/config"
	v1 "github.com/avoronkov/lab_ingest/internal/controller/http/v1"
	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/extraction"
	"github.com/avoronkov/lab_ingest/internal/objstore"
	"github.com/avoronkov/lab_ingest/internal/planlink"
	"github.com/avoronkov/lab_ingest/internal/repository/postgresql"
	"github.com/avoronkov/lab_ingest/internal/sealing"
	"github.com/avoronkov/lab_ingest/internal/tasks"
	"github.com/avoronkov/lab_ingest/internal/uploads"
)

const deliveriesBuffer = 100

type App struct {
	log *slog.Logger
	cfg *config.Config
}

func New(log *slog.Logger, cfg *config.Config) *App {
	return &App{
		log: log,
		cfg: cfg,
	}
}

func (a *App) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "starting app",
		slog.Int("workers", a.cfg.Workers),
		slog.String("queue", a.cfg.QueueName),
		slog.String("s3_bucket", a.cfg.S3.Bucket),
	)

	a.log.InfoContext(ctx, "establishing postgresql connection",
		slog.String("postgresql_host", a.cfg.PostgreSQL.Host),
		slog.String("postgresql_port", a.cfg.PostgreSQL.Port),
		slog.String("postgresql_dbname", a.cfg.PostgreSQL.DBName),
	)

	pool, err := postgresql.NewConnection(ctx, a.log, a.cfg.PostgreSQL)
	if err != nil {
		return fmt.Errorf("failed to create db connection: %w", err)
	}
	defer pool.Close()

	sealKey, err := hex.DecodeString(a.cfg.SealKeyHex)
	if err != nil {
		return fmt.Errorf("failed to decode seal key: %w", err)
	}

	codec, err := sealing.NewCodec(sealKey)
	if err != nil {
		return fmt.Errorf("failed to create sealing codec: %w", err)
	}

	storage, err := objstore.New(ctx, a.log, a.cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to create object storage client: %w", err)
	}

	sessionsRepo := postgresql.NewSessionsRepository(pool)
	uploadsRepo := postgresql.NewUploadsRepository(pool)
	measurementsRepo := postgresql.NewMeasurementsRepository(pool)
	tasksRepo := postgresql.NewTasksRepository(pool)
	plansRepo := postgresql.NewPlansRepository(pool)
	biomarkersRepo := postgresql.NewBiomarkersRepository(pool)
	txManager := postgresql.NewTxManager(pool)

	// Without an API key the AI fallback stays disabled and extraction runs
	// on parsers and heuristics alone.
	var completer extraction.Completer
	if a.cfg.AI.APIKey != "" {
		completer = aiclient.New(a.log, a.cfg.AI)
	} else {
		a.log.InfoContext(ctx, "ai fallback disabled, no api key configured")
	}

	index := extraction.NewIndex(biomarkersRepo)
	supervisor := extraction.NewSupervisor(a.log, index, completer, extraction.DefaultParsers())
	linker := planlink.NewLinker(a.log, plansRepo, uploadsRepo)

	queue := tasks.NewQueue(a.log, tasksRepo, deliveriesBuffer)
	orchestrator := tasks.NewOrchestrator(
		a.log,
		tasksRepo,
		uploadsRepo,
		measurementsRepo,
		storage,
		codec,
		supervisor,
		linker,
		txManager,
	)

	manager := uploads.NewManager(
		a.log,
		a.cfg.Upload.MaxUploadBytes,
		a.cfg.Upload.SessionTTL,
		a.cfg.QueueName,
		domain.RetryPolicy{
			MaxAttempts: a.cfg.RetryPolicy.MaxAttempts,
			MinBackoff:  a.cfg.RetryPolicy.MinBackoff,
			MaxBackoff:  a.cfg.RetryPolicy.MaxBackoff,
		},
		sessionsRepo,
		uploadsRepo,
		storage,
		queue,
	)

	sweeper := uploads.NewSweeper(a.log, a.cfg.Upload.SweepInterval, sessionsRepo)
	server := v1.NewServer(a.cfg.HTTP, manager, uploadsStore{uploadsRepo, measurementsRepo})

	if err := a.requeuePending(ctx, tasksRepo, queue); err != nil {
		return fmt.Errorf("failed to requeue pending tasks: %w", err)
	}

	return a.start(ctx, queue, orchestrator, sweeper, server)
}

// requeuePending reschedules tasks that were in flight when a previous
// instance stopped. Redelivery is safe: processing is idempotent per task.
func (a *App) requeuePending(ctx context.Context, tasksRepo *postgresql.TasksRepository, queue *tasks.Queue) error {
	pending, err := tasksRepo.PendingTasks(ctx)
	if err != nil {
		return err
	}

	for _, task := range pending {
		if err := queue.Requeue(ctx, task); err != nil {
			return err
		}
	}

	if len(pending) > 0 {
		a.log.InfoContext(ctx, "requeued pending tasks", slog.Int("count", len(pending)))
	}

	return nil
}

func (a *App) start(
	ctx context.Context,
	queue *tasks.Queue,
	orchestrator *tasks.Orchestrator,
	sweeper *uploads.Sweeper,
	server *v1.Server,
) error {
	erg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < a.cfg.Workers; i++ {
		erg.Go(func() error {
			return queue.Run(ctx, orchestrator)
		})
	}
	a.log.InfoContext(ctx, "workers started", slog.Int("count", a.cfg.Workers))

	erg.Go(func() error {
		a.log.InfoContext(ctx, "session sweeper started")
		return sweeper.Run(ctx)
	})

	erg.Go(func() error {
		a.log.InfoContext(ctx, "starting http server",
			slog.String("addr", net.JoinHostPort(a.cfg.HTTP.Host, a.cfg.HTTP.Port)),
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}

		return nil
	})

	erg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	a.log.InfoContext(ctx, "all components started")

	if err := erg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.log.ErrorContext(ctx, "app stopped with error", slog.String("err", err.Error()))

		return err
	}

	a.log.InfoContext(ctx, "app stopped gracefully")

	return nil
}

// uploadsStore joins the uploads and measurements repositories into the read
// surface the http layer needs.
type uploadsStore struct {
	*postgresql.UploadsRepository
	*postgresql.MeasurementsRepository
}
