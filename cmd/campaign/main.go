package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/config"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/handler"
	"github.com/kursadbilgin/outreach-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/outreach-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/outreach-engine/internal/infra/redis"
	"github.com/kursadbilgin/outreach-engine/internal/infra/sheets"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/queue"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"github.com/kursadbilgin/outreach-engine/internal/render"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	"github.com/kursadbilgin/outreach-engine/internal/store"
	"github.com/kursadbilgin/outreach-engine/internal/suppression"
	"github.com/kursadbilgin/outreach-engine/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("outreach-engine stopped with error", zap.Error(err))
	}
	logger.Info("outreach-engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	metrics := observability.NewMetrics()
	state := runstate.New()
	var checks []handler.Check

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
		checks = append(checks, handler.RedisCheck(rdb))
	}

	contactStore, storeChecks, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	checks = append(checks, storeChecks...)

	suppressions, err := suppression.NewClient(cfg.SuppressionURL, cfg.SuppressionTimeout, logger.Named("suppression"))
	if err != nil {
		return fmt.Errorf("suppression client initialization failed: %w", err)
	}

	renderer, err := render.NewRenderer(render.Config{
		FromEmail:          cfg.FromEmail,
		FromName:           cfg.FromName,
		TrackingBaseURL:    cfg.TrackingBaseURL,
		UnsubscribeBaseURL: cfg.UnsubscribeBaseURL,
		EventURL:           cfg.EventURL,
		CTALabel:           cfg.CTALabel,
		SignatureHTML:      cfg.SignatureHTML,
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}

	sender, archiver, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}

	var limiter ratelimit.RateLimiter
	if cfg.SendRatePerSec > 0 {
		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.SendRatePerSec)
		if err != nil {
			return fmt.Errorf("rate limiter initialization failed: %w", err)
		}
	}

	dispatcher, err := service.NewDispatcher(renderer, sender, archiver, limiter, location, logger.Named("dispatcher"))
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetCounterPolicy(domain.CounterPolicy{AdvanceOnFailure: cfg.AdvanceOnFailure})

	reconciler, err := service.NewReconciler(contactStore, suppressions, cfg.ReconcileMinInterval, logger.Named("reconciler"))
	if err != nil {
		return err
	}
	reconciler.SetMetrics(metrics)
	reconciler.SetRunState(state)

	ordering, err := service.ParseOrderingMode(cfg.Ordering)
	if err != nil {
		return err
	}
	reconcileAfter, err := service.ParseReconcileAfter(cfg.ReconcileAfter)
	if err != nil {
		return err
	}

	coordinator, err := service.NewCoordinator(contactStore, dispatcher, suppressions, service.CoordinatorConfig{
		BatchSize:      cfg.BatchSize,
		Concurrency:    cfg.WorkerConcurrency,
		BatchPause:     cfg.BatchPause,
		WriteSplit:     cfg.StoreWriteSplit,
		Ordering:       ordering,
		ReconcileAfter: reconcileAfter,
		CounterPolicy:  domain.CounterPolicy{AdvanceOnFailure: cfg.AdvanceOnFailure},
	}, logger.Named("coordinator"))
	if err != nil {
		return err
	}
	coordinator.SetMetrics(metrics)
	coordinator.SetReconciler(reconciler)

	switch cfg.ModeStore {
	case config.ModeStoreRedis:
		coordinator.SetModeStore(infraredis.NewModeStore(rdb, cfg.ModeRedisKey))
	default:
		coordinator.SetModeStore(runstate.NewFileModeStore(cfg.ModeFile))
	}

	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.OutcomeQueue)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher := queue.NewRabbitMQPublisher(mq)
		defer publisher.Close()
		coordinator.SetPublisher(publisher)
		checks = append(checks, handler.RabbitMQCheck(mq.Healthy))
	}

	window := service.TimeWindow{}
	if cfg.TimeWindow {
		window, err = service.ParseTimeWindow(cfg.TimeWindowStart, cfg.TimeWindowEnd)
		if err != nil {
			return err
		}
	}

	scheduler, err := service.NewScheduler(coordinator, state, service.SchedulerConfig{
		PollInterval:      cfg.PollInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		FallbackSleep:     cfg.FallbackSleep,
		OncePerDay:        cfg.OncePerDay,
		Window:            window,
		Location:          location,
	}, logger.Named("scheduler"))
	if err != nil {
		return err
	}
	scheduler.SetMetrics(metrics)
	scheduler.SetReconciler(reconciler)

	if cfg.RunLock {
		lock, err := infraredis.NewRunLock(rdb, "campaign-pass", cfg.RunLockTTL)
		if err != nil {
			return fmt.Errorf("run lock initialization failed: %w", err)
		}
		scheduler.SetLock(lock)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger.Named("http")),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, checks...)
	handler.RegisterStatusRoutes(app, state)
	handler.RegisterMetricsRoute(app, metrics)

	logger.Info("outreach-engine started",
		zap.Int("opsPort", cfg.OpsPort),
		zap.String("store", cfg.Store),
		zap.String("transport", sender.Name()),
		zap.String("archive", archiver.Name()),
		zap.String("ordering", string(ordering)),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.OpsPort)); err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, []handler.Check, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		closeFn := func() { _ = sqlDB.Close() }
		return repository.NewGormStore(db, cfg.StoreMaxBatch), []handler.Check{handler.PostgresCheck(sqlDB)}, closeFn, nil

	default:
		client, err := sheets.NewServiceAccountClient(ctx, cfg.GoogleCredentialsFile, cfg.SpreadsheetID, cfg.SheetsBaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sheets client initialization failed: %w", err)
		}
		st, err := sheets.NewStore(client, cfg.ContactsTab, cfg.TemplatesTab, cfg.StoreMaxBatch)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, nil, func() {}, nil
	}
}

func buildTransport(ctx context.Context, cfg *config.Config) (provider.Sender, provider.Archiver, error) {
	awsCfg := provider.AWSConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}

	var sender provider.Sender
	switch cfg.Transport {
	case config.TransportSES:
		loaded, err := provider.LoadAWSConfig(ctx, awsCfg)
		if err != nil {
			return nil, nil, err
		}
		sender = provider.NewSESSender(loaded, cfg.SESConfigurationSet)
	default:
		smtpSender, err := provider.NewSMTPSender(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("smtp sender initialization failed: %w", err)
		}
		sender = smtpSender
	}

	var archiver provider.Archiver
	switch cfg.Archive {
	case config.ArchiveNone:
		archiver = provider.NopArchiver{}
	case config.ArchiveS3:
		loaded, err := provider.LoadAWSConfig(ctx, awsCfg)
		if err != nil {
			return nil, nil, err
		}
		s3Archiver, err := provider.NewS3Archiver(loaded, provider.S3Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Prefix:    cfg.ArchiveS3Prefix,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 archiver initialization failed: %w", err)
		}
		archiver = s3Archiver
	default:
		imapArchiver, err := provider.NewIMAPArchiver(provider.IMAPConfig{
			Addr:     cfg.IMAPAddr,
			Username: cfg.IMAPUsername,
			Password: cfg.IMAPPassword,
			Mailbox:  cfg.IMAPMailbox,
			Timeout:  cfg.IMAPTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("imap archiver initialization failed: %w", err)
		}
		archiver = imapArchiver
	}

	return sender, archiver, nil
}
