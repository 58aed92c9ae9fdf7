package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/resper1965/ncrisis-sub000/internal/bootstrap"
	"github.com/resper1965/ncrisis-sub000/internal/config"
	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/observability/logging"
	"github.com/resper1965/ncrisis-sub000/internal/observability/metrics"
)

const serviceName = "pii-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveMetrics(gctx, cfg.WorkerMetricsPort, workerMetrics)
	})

	g.Go(func() error {
		slog.Info("archive worker subscribed", "subject", cfg.ArchiveSubject)
		return app.Queue.SubscribeArchiveJobs(gctx, func(handlerCtx context.Context, sub domain.ArchiveSubmission) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
			defer cancel()

			workerMetrics.ObserveQueueLag(serviceName, time.Since(sub.SubmittedAt))
			err := app.ArchiveUC.ProcessArchive(processCtx, sub)
			workerMetrics.RecordArchive(serviceName, err)
			return err
		})
	})

	g.Go(func() error {
		slog.Info("file workers subscribed", "subject", cfg.FileSubject, "workers", cfg.FileWorkers)
		return app.Queue.SubscribeFileJobs(gctx, func(handlerCtx context.Context, job domain.FileJob) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()

			workerMetrics.ObserveQueueLag(serviceName, time.Since(job.EnqueuedAt))
			workerMetrics.StartFile()
			start := time.Now()
			err := app.FileUC.ProcessFile(processCtx, job)
			workerMetrics.FinishFile(serviceName, time.Since(start), err)
			return err
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker error: %v", err)
	}
}

func serveMetrics(ctx context.Context, port string, m *metrics.WorkerMetrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
