package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/distribo/services/recouvrement/config"
	"example.com/distribo/services/recouvrement/internal/cache"
	"example.com/distribo/services/recouvrement/internal/messaging"
	"example.com/distribo/services/recouvrement/internal/metrics"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/search"
	"example.com/distribo/services/recouvrement/internal/services"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker: scheduled urgency recomputes, expired custom-delay cleanup and payment-event processing`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	collector := metrics.NewMetrics()

	busClient, err := messaging.NewClient(cfg.Azure)
	if err != nil {
		return err
	}
	defer busClient.Close()

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		elasticClient = nil
	}

	invoiceRepo := repositories.NewInvoiceRepository(db, readOnlyDB)
	settingsRepo := repositories.NewSettingsRepository(db, readOnlyDB)
	assignmentRepo := repositories.NewAssignmentRepository(db, readOnlyDB)

	invoiceService := services.NewInvoiceService(invoiceRepo, assignmentRepo, redisCache, elasticClient, collector, tracer)
	recoveryService := services.NewRecoveryService(invoiceRepo, settingsRepo, redisCache, busClient, invoiceService, collector, tracer)

	// Payment events from the external payment system
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.PaymentQueue).Msg("Starting payment event processor")
		return busClient.ProcessMessages(ctx, recoveryService.HandlePaymentMessage)
	})

	// Scheduled urgency recompute and expired custom-delay cleanup
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.RecomputeInterval),
			gocron.NewTask(func() {
				log.Info().Msg("Running scheduled urgency recompute")
				if _, err := recoveryService.RecomputeUrgency(ctx); err != nil {
					log.Error().Err(err).Msg("Scheduled urgency recompute failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.CleanupInterval),
			gocron.NewTask(func() {
				log.Info().Msg("Running expired custom-delay cleanup")
				if _, err := recoveryService.CleanupExpiredCustomDelays(ctx); err != nil {
					log.Error().Err(err).Msg("Expired custom-delay cleanup failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.IndexSyncInterval),
			gocron.NewTask(func() {
				indexed, err := invoiceService.SyncIndex(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Search index sync failed")
					return
				}
				log.Info().Int("indexed", indexed).Msg("Search index sync complete")
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
