package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/platform/awsconf"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/internal/service/archive"
	"github.com/diagnosis/baywheel-hotline/internal/service/cleanup"
	"github.com/diagnosis/baywheel-hotline/internal/service/maintenance"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	mw "github.com/diagnosis/baywheel-hotline/pkg/middleware"
)

func main() {
	once := flag.String("run", "", "run one job (cleanup or archive) and exit")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Require("TABLE_NAME", "ARCHIVE_BUCKET"); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	repo := dynamo.NewGuestRepo(clients.DynamoDB, dynamo.TableConfig{
		TableName:          cfg.Registry.TableName,
		BookingIndex:       cfg.Registry.BookingIndex,
		StatusExpiresIndex: cfg.Registry.StatusExpiresIndex,
	})

	// deletions are announced when the bus is reachable
	var bus events.Publisher
	if nb, err := events.NewNATSEventBus(cfg.NATS.URL, "maintenance"); err != nil {
		logger.Warn("NATS unavailable, deletions will not be announced", "error", err)
	} else {
		bus = nb
		defer nb.Close()
	}

	sweeper := cleanup.NewSweeper(repo, bus)
	archiver := archive.NewArchiver(repo, clients.S3, cfg.Archive.Bucket, cfg.Archive.Prefix)

	sched := maintenance.NewScheduler(10 * time.Minute)
	jobs := []struct {
		name, spec string
		job        maintenance.Job
	}{
		{"cleanup", cfg.Schedules.Cleanup, func(ctx context.Context) (any, error) { return sweeper.Run(ctx) }},
		{"archive", cfg.Schedules.Archive, func(ctx context.Context) (any, error) { return archiver.Run(ctx) }},
	}
	for _, j := range jobs {
		if err := sched.Add(j.name, j.spec, j.job); err != nil {
			logger.Error("Failed to schedule job", "error", err)
			os.Exit(1)
		}
	}

	if *once != "" {
		if !sched.Run(ctx, *once) {
			os.Exit(1)
		}
		return
	}

	r := chi.NewRouter()
	r.Use(mw.ServiceName("maintenance"))
	r.Use(mw.Health)
	r.Use(mw.Metrics)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Maintenance http error", "error", err)
		}
	}()

	sched.Start()
	logger.Info("Starting maintenance scheduler", "cleanup", cfg.Schedules.Cleanup, "archive", cfg.Schedules.Archive)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down maintenance scheduler...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Maintenance shutdown error", "error", err)
	}
}
