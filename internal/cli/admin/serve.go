package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/api/handlers"
	"github.com/cloo-solutions/tutorfit/internal/jobs"
	"github.com/cloo-solutions/tutorfit/internal/server"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the tutorfit API server together with the learning and score recompute workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides TUTORFIT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-workers", false, "Serve the API without running background workers")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.HasSentry() {
		sampleRate := 0.1
		if cfg.SentryEnvironment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		}, logger)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := newApp(ctx, cfg, logger, !noMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	var workers []*jobs.Worker
	if noWorkers, _ := cmd.Flags().GetBool("no-workers"); !noWorkers {
		learningProcessor := jobs.NewLearningWorker(a.jobs, a.learning, cfg.LearningBatchSize, a.metrics, logger).
			WithMaxRetries(cfg.LearningMaxRetries).
			WithRecompute(a.scoring)
		workers = append(workers, jobs.NewWorker("learning", learningProcessor, cfg.LearningPollInterval, logger, jobs.WithRunOnStart()))

		if cfg.ScoreRecomputeInterval > 0 {
			recomputeProcessor := jobs.NewRecomputeWorker(a.scoring, logger)
			workers = append(workers, jobs.NewWorker("score-recompute", recomputeProcessor, cfg.ScoreRecomputeInterval, logger))
		}
	}
	for _, w := range workers {
		go w.Start(ctx)
	}

	var linker handlers.SnapshotLinker
	if a.s3 != nil {
		linker = a.s3
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:            logger,
		AssignmentHandler: handlers.NewAssignmentHandler(a.personalization),
		AdminHandler:      handlers.NewAdminHandler(a.personalization, linker),
		ClusterHandler:    handlers.NewClusterHandler(a.clusters),
		HealthHandler:     handlers.NewHealthHandler(a.pool),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
